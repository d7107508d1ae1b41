// Package cache composes a paged file with a policy.Index to implement
// read-through-with-admission (fetch), write-through-to-cache (store),
// and LRU admission/eviction (admit) — spec §4.4.
//
// The cache file's paged-file handle and its policy.Index are the
// engine's shared mutable state (spec §5): every exported operation here
// holds a single mutex for the duration of one page-level operation, so
// concurrent fetch/store/admit calls against the same or different
// global indices are serialized through this one lock. This mirrors the
// teacher's paging.NewPageSystem, which likewise guards its buffer pool
// with a single lock for the duration of a cache operation, generalized
// here from an implicit-eviction LRU to the spec's explicit admit step.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"

	"qbd/pagefile"
	"qbd/policy"
	"qbd/qerrors"
	"qbd/store"
)

// Stats are the counters the metrics package exposes for the cache.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Writebacks int64
}

// Cache is the paged cache file plus its LRU/free-list index.
type Cache struct {
	mu       sync.Mutex
	pf       *pagefile.File
	idx      *policy.Index
	store    store.Store
	pageSize uint32
	logger   log.Logger

	hits, misses, evictions, writebacks atomic.Int64
}

// Open attaches to an already-opened cache paged file and rebuilds the
// in-memory index by scanning headers 0..N-1 in slot order: each
// occupied slot is inserted into the LRU map (yielding a deterministic
// but arbitrary initial recency order), each unoccupied slot is added to
// the free list. A slot whose header is dirty stays dirty in memory;
// the engine writes such pages back before their slots are reused.
func Open(pf *pagefile.File, st store.Store, logger log.Logger) (*Cache, error) {
	if pf.PageSize() != st.PageSize() {
		return nil, qerrors.Wrap(qerrors.ErrInvalidFormat, "cache and store page size mismatch")
	}

	n := pf.Slots()
	idx := policy.New(n)
	for s := uint32(0); s < n; s++ {
		h, err := pf.ReadHeader(s)
		if err != nil {
			return nil, err
		}
		if h.Occupied() {
			idx.Insert(h.GlobalIndex, s)
		} else {
			idx.Release(s)
		}
	}

	return &Cache{pf: pf, idx: idx, store: st, pageSize: pf.PageSize(), logger: logger}, nil
}

// PageSize returns P.
func (c *Cache) PageSize() uint32 { return c.pageSize }

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		Writebacks: c.writebacks.Load(),
	}
}

// Fetch implements read-through with admission (spec §4.4.1).
func (c *Cache) Fetch(g uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, ok := c.idx.Lookup(g); ok {
		c.hits.Add(1)
		buf := make([]byte, c.pageSize)
		if err := c.pf.ReadPage(slot, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	c.misses.Add(1)
	slot, err := c.admit(g)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, c.pageSize)
	if err := c.store.Read(g, buf); err != nil {
		c.idx.Release(slot)
		return nil, err
	}
	if err := c.pf.WritePage(slot, buf); err != nil {
		c.idx.Release(slot)
		return nil, err
	}
	if err := c.pf.WriteHeader(slot, pagefile.Header{Flags: pagefile.Occupied, GlobalIndex: g}); err != nil {
		c.idx.Release(slot)
		return nil, err
	}
	c.idx.Insert(g, slot)
	return buf, nil
}

// Store implements write-through to cache / write-back to store (spec
// §4.4.2). No write is issued to the store on this path; the store is
// only updated by eviction or the background writer.
func (c *Cache) Store(g uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, ok := c.idx.Lookup(g); ok {
		if err := c.pf.WritePage(slot, buf); err != nil {
			return err
		}
		return c.pf.WriteHeader(slot, pagefile.Header{Flags: pagefile.Occupied | pagefile.Dirty, GlobalIndex: g})
	}

	slot, err := c.admit(g)
	if err != nil {
		return err
	}
	if err := c.pf.WritePage(slot, buf); err != nil {
		c.idx.Release(slot)
		return err
	}
	if err := c.pf.WriteHeader(slot, pagefile.Header{Flags: pagefile.Occupied | pagefile.Dirty, GlobalIndex: g}); err != nil {
		c.idx.Release(slot)
		return err
	}
	c.idx.Insert(g, slot)
	return nil
}

// admit chooses a slot for a newly missed page: a free slot if one is
// available, otherwise the LRU victim, evicting it first (spec §4.4.3).
// Caller holds c.mu and has already confirmed g is not in the index.
func (c *Cache) admit(g uint32) (uint32, error) {
	if slot, err := c.idx.TakeFree(); err == nil {
		return slot, nil
	}

	victimG, slot, err := c.idx.PopLRU()
	if err != nil {
		return 0, err
	}

	// From here on the victim has left both the LRU map and the free
	// list; any early return must put it back into the LRU map so it
	// stays reachable and the slot isn't leaked.
	h, err := c.pf.ReadHeader(slot)
	if err != nil {
		c.idx.Insert(victimG, slot)
		return 0, err
	}

	if h.Dirty() {
		tmp := make([]byte, c.pageSize)
		if err := c.pf.ReadPage(slot, tmp); err != nil {
			c.idx.Insert(victimG, slot)
			return 0, err
		}
		if err := c.store.Write(victimG, tmp); err != nil {
			c.logger.Error().Err(err).Msg(fmt.Sprintf("failed to write back dirty page %d during eviction", victimG))
			c.idx.Insert(victimG, slot)
			return 0, err
		}
		// (a) the page is durable in the store. Narrow the crash window
		// by clearing DIRTY before (b) marking the slot unoccupied, per
		// spec §4.4.4's stricter recommended ordering.
		if err := c.pf.WriteHeader(slot, h.WithDirty(false)); err != nil {
			c.idx.Insert(victimG, slot)
			return 0, err
		}
	}

	// (b) the slot no longer carries a phantom mapping.
	if err := c.pf.WriteHeader(slot, pagefile.Header{}); err != nil {
		c.idx.Insert(victimG, slot)
		return 0, err
	}
	c.evictions.Add(1)
	return slot, nil
}

// WritebackOne clears the dirty bit for g if it is still present,
// occupied and dirty at its current slot, writing its data to the
// store first. It does not evict. Used by the background writer; each
// call is one page-level operation under the engine's single lock.
// Returns false with no error if g is no longer a live dirty entry
// (it may have been evicted or overwritten since the caller's
// iter_lru() snapshot was taken).
func (c *Cache) WritebackOne(g uint32) (wrote bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.idx.Peek(g)
	if !ok {
		return false, nil
	}

	h, err := c.pf.ReadHeader(slot)
	if err != nil {
		return false, err
	}
	if !h.Occupied() || h.GlobalIndex != g || !h.Dirty() {
		return false, nil
	}

	buf := make([]byte, c.pageSize)
	if err := c.pf.ReadPage(slot, buf); err != nil {
		return false, err
	}
	if err := c.store.Write(g, buf); err != nil {
		return false, err
	}
	if err := c.pf.WriteHeader(slot, h.WithDirty(false)); err != nil {
		return false, err
	}
	c.writebacks.Add(1)
	return true, nil
}

// SnapshotLRU returns entries from least to most recently used, for the
// background writer to walk without holding the lock for the whole scan.
func (c *Cache) SnapshotLRU() []policy.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx.IterLRU()
}

// Flush persists all prior writes to the cache file.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pf.Flush()
}

// Close releases the cache file's descriptor. Callers should Flush first.
func (c *Cache) Close() error {
	return c.pf.Close()
}
