// Package pagefile implements the on-disk layout shared by the cache file
// and every store segment: a fixed meta section, a per-slot header array,
// a reserved (unverified) CRC array, and the page data area.
//
// A File addresses pages by local slot index. It does no locking of its
// own: callers targeting disjoint slots may operate concurrently, and
// ordering guarantees across header/data writes are the caller's
// responsibility (see the cache package).
package pagefile

import (
	"os"

	"qbd/qerrors"
)

// File is an open paged file: a cache file or a single store segment.
type File struct {
	f    *os.File
	meta Meta
	n    uint32

	headerOff int64
	crcOff    int64
	dataOff   int64
}

// Open validates the file's meta section against pageSize and attaches
// to it. A magic/version/page-size mismatch is fatal: InvalidFormat.
func Open(path string, pageSize uint32) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, qerrors.Wrap(err, "open paged file")
	}

	buf := make([]byte, MetaSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "read meta: "+err.Error())
	}

	meta, err := decodeMeta(buf)
	if err != nil {
		f.Close()
		return nil, err
	}

	if meta.PageSize != pageSize {
		f.Close()
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "page size mismatch")
	}

	return attach(f, meta), nil
}

// Create lays out a fresh paged file with the given page size and data
// section size and attaches to it. Used by provisioning tooling and
// tests; the engine itself only ever opens pre-allocated files (spec
// §1: pre-allocation is assumed done at startup).
func Create(path string, pageSize, dataSize uint32) (*File, error) {
	if dataSize%pageSize != 0 {
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "data_size not a multiple of page_size")
	}
	n := dataSize / pageSize
	total := int64(MetaSize) + int64(n)*headerEntrySize + int64(n)*crcEntrySize + int64(dataSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, qerrors.Wrap(err, "create paged file")
	}
	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, qerrors.Wrap(err, "truncate paged file")
	}

	meta := Meta{Version: Version, PageSize: pageSize, DataSize: dataSize}
	metaBuf := encodeMeta(meta)
	if _, err := f.WriteAt(metaBuf[:], 0); err != nil {
		f.Close()
		return nil, qerrors.Wrap(err, "write meta")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, qerrors.Wrap(err, "sync new paged file")
	}

	return attach(f, meta), nil
}

func attach(f *os.File, meta Meta) *File {
	n := meta.Slots()
	headerOff := int64(MetaSize)
	crcOff := headerOff + int64(n)*headerEntrySize
	dataOff := crcOff + int64(n)*crcEntrySize
	return &File{
		f:         f,
		meta:      meta,
		n:         n,
		headerOff: headerOff,
		crcOff:    crcOff,
		dataOff:   dataOff,
	}
}

// Slots returns N, the number of page slots this file holds.
func (pf *File) Slots() uint32 { return pf.n }

// PageSize returns P for this file.
func (pf *File) PageSize() uint32 { return pf.meta.PageSize }

// DataSize returns the data section size in bytes (N*P).
func (pf *File) DataSize() uint32 { return pf.meta.DataSize }

func (pf *File) checkSlot(i uint32) error {
	if i >= pf.n {
		return qerrors.Wrap(qerrors.ErrInvalidSlot, "slot out of range")
	}
	return nil
}

// ReadHeader reads the header entry for slot i.
func (pf *File) ReadHeader(i uint32) (Header, error) {
	if err := pf.checkSlot(i); err != nil {
		return Header{}, err
	}
	buf := make([]byte, headerEntrySize)
	off := pf.headerOff + int64(i)*headerEntrySize
	if _, err := pf.f.ReadAt(buf, off); err != nil {
		return Header{}, qerrors.Wrap(qerrors.ErrIO, "read header: "+err.Error())
	}
	return decodeHeader(buf), nil
}

// WriteHeader writes the header entry for slot i.
func (pf *File) WriteHeader(i uint32, h Header) error {
	if err := pf.checkSlot(i); err != nil {
		return err
	}
	buf := encodeHeader(h)
	off := pf.headerOff + int64(i)*headerEntrySize
	if _, err := pf.f.WriteAt(buf[:], off); err != nil {
		return qerrors.Wrap(qerrors.ErrIO, "write header: "+err.Error())
	}
	return nil
}

// ReadPage reads slot i's page data into buf, which must have length P.
func (pf *File) ReadPage(i uint32, buf []byte) error {
	if err := pf.checkSlot(i); err != nil {
		return err
	}
	if uint32(len(buf)) != pf.meta.PageSize {
		return qerrors.Wrap(qerrors.ErrIO, "buffer size does not match page size")
	}
	off := pf.dataOff + int64(i)*int64(pf.meta.PageSize)
	if _, err := pf.f.ReadAt(buf, off); err != nil {
		return qerrors.Wrap(qerrors.ErrIO, "read page: "+err.Error())
	}
	return nil
}

// WritePage writes buf (length P) as slot i's page data.
func (pf *File) WritePage(i uint32, buf []byte) error {
	if err := pf.checkSlot(i); err != nil {
		return err
	}
	if uint32(len(buf)) != pf.meta.PageSize {
		return qerrors.Wrap(qerrors.ErrIO, "buffer size does not match page size")
	}
	off := pf.dataOff + int64(i)*int64(pf.meta.PageSize)
	if _, err := pf.f.WriteAt(buf, off); err != nil {
		return qerrors.Wrap(qerrors.ErrIO, "write page: "+err.Error())
	}
	return nil
}

// Flush asks the OS to persist all prior writes to stable storage.
func (pf *File) Flush() error {
	if err := pf.f.Sync(); err != nil {
		return qerrors.Wrap(qerrors.ErrIO, "flush: "+err.Error())
	}
	return nil
}

// Close releases the underlying file descriptor.
func (pf *File) Close() error {
	return pf.f.Close()
}
