// Package device presents a byte-addressable volume to a transport,
// translating arbitrary (offset, length) I/O into page-aligned
// operations against the cache and store (spec §4.6).
//
// Its read/write decomposition generalizes the teacher's
// filesystem.Read/Write delegation (validate address, delegate to the
// paging layer) from whole-page semantics to the spec's byte-range
// overlay semantics: a write that does not cover an entire page reads
// the page through the cache first, overlays the partial bytes, then
// writes the whole page back.
package device

import (
	"sync/atomic"

	"github.com/phuslu/log"

	"qbd/cache"
	"qbd/qerrors"
	"qbd/store"
	"qbd/writeback"
)

// Stats are the counters the metrics package exposes for the device.
type Stats struct {
	Reads, Writes              int64
	BytesRead, BytesWritten    int64
	OutOfRangeErrors, IOErrors int64
}

// Device is the byte-addressable volume assembled from a Cache, its
// backing Store, and the background Writer that keeps them in sync.
type Device struct {
	cache      *cache.Cache
	store      store.Store
	writer     *writeback.Writer
	logger     log.Logger
	pageSize   uint64
	volumeSize uint64

	reads, writes               atomic.Int64
	bytesRead, bytesWritten     atomic.Int64
	outOfRangeErrors, ioErrors  atomic.Int64
}

// New assembles a Device over c/st, driven by the background writer w.
func New(c *cache.Cache, st store.Store, w *writeback.Writer, logger log.Logger) *Device {
	pageSize := uint64(c.PageSize())
	volumeSize := pageSize * uint64(st.TotalPages())
	return &Device{cache: c, store: st, writer: w, logger: logger, pageSize: pageSize, volumeSize: volumeSize}
}

// Size returns V, the volume's total addressable byte size.
func (d *Device) Size() uint64 { return d.volumeSize }

// Stats returns a snapshot of the device's counters.
func (d *Device) Stats() Stats {
	return Stats{
		Reads:            d.reads.Load(),
		Writes:           d.writes.Load(),
		BytesRead:        d.bytesRead.Load(),
		BytesWritten:     d.bytesWritten.Load(),
		OutOfRangeErrors: d.outOfRangeErrors.Load(),
		IOErrors:         d.ioErrors.Load(),
	}
}

// Read decomposes [offset, offset+length) into page-aligned fetches and
// splices the intersecting sub-range of each into the result.
func (d *Device) Read(offset uint64, length uint32) ([]byte, error) {
	d.writer.Touch()
	if length == 0 {
		return []byte{}, nil
	}

	end := offset + uint64(length)
	if end > d.volumeSize || end < offset {
		d.outOfRangeErrors.Add(1)
		return nil, qerrors.Wrap(qerrors.ErrOutOfRange, "read exceeds volume size")
	}

	out := make([]byte, length)
	gLo, gHi := d.pageRange(offset, end)

	for g := gLo; g <= gHi; g++ {
		buf, err := d.cache.Fetch(uint32(g))
		if err != nil {
			d.ioErrors.Add(1)
			return nil, err
		}
		pageOff, bufOff, n := d.overlap(g, offset, end)
		copy(out[bufOff:bufOff+n], buf[pageOff:pageOff+n])
	}

	d.reads.Add(1)
	d.bytesRead.Add(int64(length))
	return out, nil
}

// Write decomposes the touched page range and, for each page, either
// stores the caller's buffer directly (whole-page writes) or reads the
// page through the cache, overlays the partial bytes, and stores the
// result (partial writes).
func (d *Device) Write(offset uint64, data []byte) error {
	d.writer.Touch()
	length := uint64(len(data))
	if length == 0 {
		return nil
	}

	end := offset + length
	if end > d.volumeSize || end < offset {
		d.outOfRangeErrors.Add(1)
		return qerrors.Wrap(qerrors.ErrOutOfRange, "write exceeds volume size")
	}

	gLo, gHi := d.pageRange(offset, end)

	for g := gLo; g <= gHi; g++ {
		pageOff, bufOff, n := d.overlap(g, offset, end)

		if n == d.pageSize {
			if err := d.cache.Store(uint32(g), data[bufOff:bufOff+n]); err != nil {
				d.ioErrors.Add(1)
				return err
			}
			continue
		}

		page, err := d.cache.Fetch(uint32(g))
		if err != nil {
			d.ioErrors.Add(1)
			return err
		}
		copy(page[pageOff:pageOff+n], data[bufOff:bufOff+n])
		if err := d.cache.Store(uint32(g), page); err != nil {
			d.ioErrors.Add(1)
			return err
		}
	}

	d.writes.Add(1)
	d.bytesWritten.Add(int64(length))
	return nil
}

// Flush drains all currently dirty cache entries to the store
// synchronously, then persists the cache and every store segment.
func (d *Device) Flush() error {
	if err := d.writer.DrainAll(); err != nil {
		return err
	}
	if err := d.cache.Flush(); err != nil {
		return err
	}
	return d.store.Flush()
}

// Trim is a best-effort no-op in this core (spec §4.6): a future
// extension may mark the touched pages as zeroed.
func (d *Device) Trim(offset uint64, length uint32) error {
	return nil
}

// pageRange returns the inclusive [gLo, gHi] global page indices touched
// by [offset, end).
func (d *Device) pageRange(offset, end uint64) (gLo, gHi uint64) {
	gLo = offset / d.pageSize
	gHi = (end - 1) / d.pageSize
	return
}

// overlap returns, for page g, its offset within the page (pageOff),
// its offset within the request buffer (bufOff), and the overlap length
// n, for the intersection of page g with [offset, end).
func (d *Device) overlap(g, offset, end uint64) (pageOff, bufOff, n uint64) {
	pageStart := g * d.pageSize
	pageEnd := pageStart + d.pageSize

	overlapStart := maxU64(offset, pageStart)
	overlapEnd := minU64(end, pageEnd)

	return overlapStart - pageStart, overlapStart - offset, overlapEnd - overlapStart
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
