// Package qerrors defines the error kinds observed at the engine boundary.
//
// Per-request failures (OutOfRange, IO) are reported back to the caller
// and never taint other requests. InvalidFormat is fatal at open time.
// CacheFull is unreachable in practice (eviction always frees a slot once
// the cache is non-empty) and is kept only as a defensive sentinel.
package qerrors

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidFormat is returned when a paged file's magic, version or
	// page size does not match what the engine expects. Fatal: the engine
	// refuses to mount.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange is returned when an offset or global page index falls
	// outside the addressable volume or store.
	ErrOutOfRange = errors.New("out of range")

	// ErrIO wraps an underlying read/write failure against a paged file.
	ErrIO = errors.New("io error")

	// ErrCacheFull would indicate no slot could be obtained for admission.
	// Unreachable: admit() always frees a slot via eviction when N_cache >= 1.
	ErrCacheFull = errors.New("cache full")

	// ErrInvalidSlot is returned when a local slot index is >= N.
	ErrInvalidSlot = errors.New("invalid slot")
)

// Kind returns a short, stable label for err's root cause, suitable for a
// log field or (eventually) mapping to an NBD error code. Returns "" if
// err does not match a known kind.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrCacheFull):
		return "cache_full"
	case errors.Is(err, ErrInvalidSlot):
		return "invalid_slot"
	default:
		return ""
	}
}

// Wrap annotates err with msg and a stack trace, preserving errors.Is
// matching against the sentinels above.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
