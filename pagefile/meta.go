package pagefile

import (
	"encoding/binary"

	"qbd/qerrors"
)

// Magic identifies a qbd paged file. Any other value on open is fatal.
const Magic uint32 = 0x617A6D79

// Version is the only on-disk layout version this engine understands.
const Version uint32 = 1

// MetaSize is the fixed size, in bytes, of the meta section: magic(4) +
// version(4) + page_size(4) + data_size(4) + reserved(8).
const MetaSize = 24

// Meta is the fixed header every paged file (cache or store segment)
// carries at offset 0. PageSize and DataSize are immutable after
// creation; a mismatch on open is fatal (InvalidFormat).
type Meta struct {
	Version  uint32
	PageSize uint32
	DataSize uint32
}

// Slots returns the number of page slots implied by DataSize/PageSize.
// Callers must derive N this way rather than trusting the file's total
// length, which may include trailing alignment padding (spec §9).
func (m Meta) Slots() uint32 {
	if m.PageSize == 0 {
		return 0
	}
	return m.DataSize / m.PageSize
}

func encodeMeta(m Meta) [MetaSize]byte {
	var buf [MetaSize]byte
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], m.Version)
	binary.BigEndian.PutUint32(buf[8:12], m.PageSize)
	binary.BigEndian.PutUint32(buf[12:16], m.DataSize)
	// buf[16:24] reserved, left zero.
	return buf
}

func decodeMeta(buf []byte) (Meta, error) {
	if len(buf) != MetaSize {
		return Meta{}, qerrors.Wrap(qerrors.ErrInvalidFormat, "short meta section")
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Meta{}, qerrors.Wrap(qerrors.ErrInvalidFormat, "bad magic")
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != Version {
		return Meta{}, qerrors.Wrap(qerrors.ErrInvalidFormat, "unsupported version")
	}
	pageSize := binary.BigEndian.Uint32(buf[8:12])
	dataSize := binary.BigEndian.Uint32(buf[12:16])
	if pageSize == 0 || dataSize%pageSize != 0 {
		return Meta{}, qerrors.Wrap(qerrors.ErrInvalidFormat, "data_size not a multiple of page_size")
	}
	return Meta{Version: version, PageSize: pageSize, DataSize: dataSize}, nil
}

func putU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func getU32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }
