// Package store implements the ordered list of paged files whose
// capacities concatenate into the logical volume (spec §4.2). A global
// page index is always at its natural slot within its segment; no
// metadata lookup is needed to locate a page once the segment is known.
package store

import (
	"sort"

	"qbd/pagefile"
	"qbd/qerrors"
)

// Store maps global page indices onto segments and serves reads/writes
// against the right one. Concat (below) is the only placement policy
// the core spec requires; the interface exists so a future placement
// (e.g. mirroring writes across every segment) can be swapped in
// without changing cache or device.
type Store interface {
	// Locate finds the segment owning g and the slot within it.
	Locate(g uint32) (segment int, slot uint32, err error)
	Read(g uint32, buf []byte) error
	Write(g uint32, buf []byte) error
	PageSize() uint32
	TotalPages() uint32
	Flush() error
	Close() error
}

// Concat concatenates an ordered list of paged files into one logical
// address space. Order is part of configuration; changing it between
// runs silently corrupts data (spec §4.2) — this package does not
// detect reordering.
type Concat struct {
	segments []*pagefile.File
	bases    []uint32
	total    uint32
	pageSize uint32
}

// NewConcat builds a Concat store over segments in the given order.
// Every segment must declare the same page size.
func NewConcat(segments []*pagefile.File) (*Concat, error) {
	if len(segments) == 0 {
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "store requires at least one segment")
	}
	pageSize := segments[0].PageSize()
	bases := make([]uint32, len(segments))
	var running uint32
	for i, s := range segments {
		if s.PageSize() != pageSize {
			return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "segment page size mismatch")
		}
		bases[i] = running
		running += s.Slots()
	}
	return &Concat{segments: segments, bases: bases, total: running, pageSize: pageSize}, nil
}

// Locate finds the unique segment j with base[j] <= g < base[j+1], and
// the slot of g within it.
func (c *Concat) Locate(g uint32) (segment int, slot uint32, err error) {
	if g >= c.total {
		return 0, 0, qerrors.Wrap(qerrors.ErrOutOfRange, "global page index out of range")
	}
	// largest index i such that bases[i] <= g
	j := sort.Search(len(c.bases), func(i int) bool { return c.bases[i] > g }) - 1
	return j, g - c.bases[j], nil
}

func (c *Concat) Read(g uint32, buf []byte) error {
	j, slot, err := c.Locate(g)
	if err != nil {
		return err
	}
	return c.segments[j].ReadPage(slot, buf)
}

// Write stores buf at g and makes the segment's header for that slot
// self-describing. The header update is idempotent.
func (c *Concat) Write(g uint32, buf []byte) error {
	j, slot, err := c.Locate(g)
	if err != nil {
		return err
	}
	if err := c.segments[j].WritePage(slot, buf); err != nil {
		return err
	}
	return c.segments[j].WriteHeader(slot, pagefile.Header{Flags: pagefile.Occupied, GlobalIndex: g})
}

func (c *Concat) PageSize() uint32    { return c.pageSize }
func (c *Concat) TotalPages() uint32  { return c.total }

func (c *Concat) Flush() error {
	for _, s := range c.segments {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Concat) Close() error {
	var first error
	for _, s := range c.segments {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
