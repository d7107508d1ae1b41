package pagefile

// Flags is the bitset stored in a slot's header alongside its global
// page index. Only bits 0 and 1 are defined; the rest are reserved and
// must stay zero.
type Flags uint32

const (
	// Occupied means the slot holds a live page. In a store segment
	// this is set as soon as the page is first written and never
	// cleared. In the cache it is cleared on eviction.
	Occupied Flags = 1 << 0
	// Dirty means the cache slot's data differs from what the store
	// holds for the same global index. Always 0 in a store segment.
	Dirty Flags = 1 << 1
)

// Header is the 8-byte per-slot metadata entry: { flags:uint32,
// global_index:uint32 }, big-endian on disk.
type Header struct {
	Flags       Flags
	GlobalIndex uint32
}

func (h Header) Occupied() bool { return h.Flags&Occupied != 0 }
func (h Header) Dirty() bool    { return h.Flags&Dirty != 0 }

func (h Header) withFlag(f Flags, on bool) Header {
	if on {
		h.Flags |= f
	} else {
		h.Flags &^= f
	}
	return h
}

// WithOccupied returns a copy of h with the Occupied bit set or cleared.
func (h Header) WithOccupied(on bool) Header { return h.withFlag(Occupied, on) }

// WithDirty returns a copy of h with the Dirty bit set or cleared.
func (h Header) WithDirty(on bool) Header { return h.withFlag(Dirty, on) }

const headerEntrySize = 8
const crcEntrySize = 8

func encodeHeader(h Header) [headerEntrySize]byte {
	var buf [headerEntrySize]byte
	putU32(buf[0:4], uint32(h.Flags))
	putU32(buf[4:8], h.GlobalIndex)
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Flags:       Flags(getU32(buf[0:4])),
		GlobalIndex: getU32(buf[4:8]),
	}
}
