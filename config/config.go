// Package config parses and validates the engine's construction
// options (spec §6 Configuration table). Byte-size options accept
// human-readable suffixes ("1MiB", "512Ki") the way sahib-brig's CLI
// handlers parse --size flags, via github.com/dustin/go-humanize.
package config

import (
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"

	"qbd/qerrors"
)

// HeaderSize is the on-disk size, in bytes, of one paged-file header
// entry (flags + global_index), mirrored from the pagefile package,
// which does not export its own constant.
const HeaderSize = 8

// DefaultPageSize is P when page_size is unset (spec §6).
const DefaultPageSize uint32 = 1 << 20 // 1 MiB

// StoreSegment is one parsed entry of store_urls: a file path and its
// declared capacity in bytes.
type StoreSegment struct {
	Path string
	Size uint64
}

// Config holds the engine's validated construction options.
type Config struct {
	NBDPath       string
	CachePath     string
	CacheSize     uint64
	PageSize      uint32
	StoreURLs     []StoreSegment
	MetricsListen string
	DebugLevel    string
}

// Options is the raw, unvalidated input to Load, typically populated
// from CLI flags.
type Options struct {
	NBDPath       string
	CachePath     string
	CacheSize     string
	PageSize      string
	StoreURLs     []string
	MetricsListen string
	DebugLevel    string
}

// Load parses and validates opts into a Config, applying defaults for
// unset fields (spec §6).
func Load(opts Options) (*Config, error) {
	if opts.NBDPath == "" {
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "nbd_path is required")
	}
	if opts.CachePath == "" {
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "cache_path is required")
	}
	if len(opts.StoreURLs) == 0 {
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "store_urls requires at least one entry")
	}

	pageSize := DefaultPageSize
	if opts.PageSize != "" {
		n, err := humanize.ParseBytes(opts.PageSize)
		if err != nil {
			return nil, qerrors.Wrap(err, "invalid page_size")
		}
		pageSize = uint32(n)
	}
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "page_size must be a power of two")
	}

	if opts.CacheSize == "" {
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "cache_size is required")
	}
	cacheSize, err := humanize.ParseBytes(opts.CacheSize)
	if err != nil {
		return nil, qerrors.Wrap(err, "invalid cache_size")
	}
	if err := validateCacheSize(cacheSize, pageSize); err != nil {
		return nil, err
	}

	segments := make([]StoreSegment, 0, len(opts.StoreURLs))
	for _, raw := range opts.StoreURLs {
		seg, err := parseStoreURL(raw)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	debugLevel := opts.DebugLevel
	if debugLevel == "" {
		debugLevel = "off"
	}

	return &Config{
		NBDPath:       opts.NBDPath,
		CachePath:     opts.CachePath,
		CacheSize:     cacheSize,
		PageSize:      pageSize,
		StoreURLs:     segments,
		MetricsListen: opts.MetricsListen,
		DebugLevel:    debugLevel,
	}, nil
}

// validateCacheSize checks (cache_size - 24) / (P + 16) >= 1 (spec §6).
// It does not check that cache_size equals 24 + N*(P + 16) exactly;
// trailing bytes beyond the last whole slot are accepted.
func validateCacheSize(cacheSize uint64, pageSize uint32) error {
	const metaSize = 24
	const crcSize = 8

	if cacheSize <= metaSize {
		return qerrors.Wrap(qerrors.ErrInvalidFormat, "cache_size too small for meta section")
	}

	slotCost := uint64(pageSize) + HeaderSize + crcSize
	slots := (cacheSize - metaSize) / slotCost
	if slots < 1 {
		return qerrors.Wrap(qerrors.ErrInvalidFormat, "cache_size yields zero usable slots")
	}
	return nil
}

// parseStoreURL parses one store_urls entry of the form
// file:///path?size=<bytes> (spec §6).
func parseStoreURL(raw string) (StoreSegment, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return StoreSegment{}, qerrors.Wrap(err, "invalid store url")
	}
	if u.Scheme != "file" {
		return StoreSegment{}, qerrors.Wrap(qerrors.ErrInvalidFormat, "only file:// store urls are supported")
	}

	path := u.Path
	if path == "" {
		return StoreSegment{}, qerrors.Wrap(qerrors.ErrInvalidFormat, "store url missing path")
	}

	sizeStr := u.Query().Get("size")
	if sizeStr == "" {
		return StoreSegment{}, qerrors.Wrap(qerrors.ErrInvalidFormat, "store url missing size query parameter")
	}

	var size uint64
	if n, err := strconv.ParseUint(sizeStr, 10, 64); err == nil {
		size = n
	} else if n, err := humanize.ParseBytes(sizeStr); err == nil {
		size = n
	} else {
		return StoreSegment{}, qerrors.Wrap(qerrors.ErrInvalidFormat, "store url has an invalid size")
	}

	return StoreSegment{Path: path, Size: size}, nil
}
