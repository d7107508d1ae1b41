// Package policy implements the in-memory LRU index and free-slot list
// that sit on top of the cache's paged file: an ordered map from global
// page index to local cache slot, doubling as an LRU by recency of
// access, plus the set of cache slots not currently holding a page.
//
// Internally this is the arena-of-nodes design described by the core
// spec's design notes: nodes are addressed by integer slot index rather
// than by pointer, so no cyclic ownership arises between the hash map
// and the doubly linked recency list. This generalizes the teacher's
// pointer-linked intrusive LRU (which auto-evicted on Put) into a bare
// ordered index with no eviction policy baked in — admission and
// eviction are the caller's (cache package's) explicit responsibility.
package policy

import (
	"qbd/qerrors"
)

const sentinel = -1

type node struct {
	global     uint32
	prev, next int32
	inUse      bool
}

// Entry is a (global index, slot) pair returned by IterLRU.
type Entry struct {
	Global uint32
	Slot   uint32
}

// Index is the LRU map L plus the free-slot set F of spec §4.3.
type Index struct {
	nodes      []node
	byGlobal   map[uint32]uint32
	head, tail int32
	freeSlots  []uint32
	count      int
}

// New creates an Index over a cache with nCache slots. Every slot starts
// out neither in L nor in F; the caller (cache.Open) populates both by
// scanning the on-disk headers.
func New(nCache uint32) *Index {
	return &Index{
		nodes:     make([]node, nCache),
		byGlobal:  make(map[uint32]uint32, nCache),
		head:      sentinel,
		tail:      sentinel,
		freeSlots: make([]uint32, 0, nCache),
	}
}

// Len returns the number of entries currently in the LRU map.
func (ix *Index) Len() int { return ix.count }

// FreeLen returns the number of slots currently in the free list.
func (ix *Index) FreeLen() int { return len(ix.freeSlots) }

// Lookup resolves g to its cache slot, touching it to most-recently-used.
func (ix *Index) Lookup(g uint32) (slot uint32, ok bool) {
	slot, ok = ix.byGlobal[g]
	if !ok {
		return 0, false
	}
	ix.moveToTail(int32(slot))
	return slot, true
}

// Peek resolves g to its cache slot without updating recency, used by
// the background writer so scanning does not perturb eviction order.
func (ix *Index) Peek(g uint32) (slot uint32, ok bool) {
	slot, ok = ix.byGlobal[g]
	return slot, ok
}

// Insert adds g at slot as most-recently-used. g must not already be
// present.
func (ix *Index) Insert(g uint32, slot uint32) {
	ix.nodes[slot] = node{global: g, inUse: true, prev: sentinel, next: sentinel}
	ix.byGlobal[g] = slot
	ix.count++
	ix.appendTail(int32(slot))
}

// PopLRU removes and returns the least-recently-used entry.
func (ix *Index) PopLRU() (g uint32, slot uint32, err error) {
	if ix.head == sentinel {
		return 0, 0, qerrors.Wrap(qerrors.ErrCacheFull, "pop_lru on empty LRU map")
	}
	s := ix.head
	g = ix.nodes[s].global
	ix.unlink(s)
	delete(ix.byGlobal, g)
	ix.nodes[s] = node{prev: sentinel, next: sentinel}
	ix.count--
	return g, uint32(s), nil
}

// TakeFree removes and returns any slot from the free list.
func (ix *Index) TakeFree() (slot uint32, err error) {
	n := len(ix.freeSlots)
	if n == 0 {
		return 0, qerrors.Wrap(qerrors.ErrCacheFull, "take_free on empty free list")
	}
	slot = ix.freeSlots[n-1]
	ix.freeSlots = ix.freeSlots[:n-1]
	return slot, nil
}

// Release inserts slot into the free list. The caller guarantees the
// slot's on-disk header has already been set to OCCUPIED=0.
func (ix *Index) Release(slot uint32) {
	ix.freeSlots = append(ix.freeSlots, slot)
}

// IterLRU returns a snapshot of entries from least to most recently
// used, for the background writer to scan without holding the engine
// lock for the whole walk.
func (ix *Index) IterLRU() []Entry {
	out := make([]Entry, 0, ix.count)
	for s := ix.head; s != sentinel; s = ix.nodes[s].next {
		out = append(out, Entry{Global: ix.nodes[s].global, Slot: uint32(s)})
	}
	return out
}

func (ix *Index) unlink(s int32) {
	n := ix.nodes[s]
	if n.prev != sentinel {
		ix.nodes[n.prev].next = n.next
	} else {
		ix.head = n.next
	}
	if n.next != sentinel {
		ix.nodes[n.next].prev = n.prev
	} else {
		ix.tail = n.prev
	}
}

func (ix *Index) appendTail(s int32) {
	ix.nodes[s].prev = ix.tail
	ix.nodes[s].next = sentinel
	if ix.tail != sentinel {
		ix.nodes[ix.tail].next = s
	} else {
		ix.head = s
	}
	ix.tail = s
}

func (ix *Index) moveToTail(s int32) {
	if ix.tail == s {
		return
	}
	ix.unlink(s)
	ix.nodes[s].prev = sentinel
	ix.nodes[s].next = sentinel
	ix.appendTail(s)
}
