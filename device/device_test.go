package device

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbd/cache"
	"qbd/logging"
	"qbd/pagefile"
	"qbd/store"
	"qbd/writeback"
)

const pageSize = 4096

// newTestDevice builds a device over a cache with nCache slots backed by
// a single store segment of nStore pages.
func newTestDevice(t *testing.T, nCache, nStore uint32) *Device {
	t.Helper()
	dir := t.TempDir()

	cpf, err := pagefile.Create(filepath.Join(dir, "cache.dat"), pageSize, pageSize*nCache)
	require.NoError(t, err)
	spf, err := pagefile.Create(filepath.Join(dir, "store.dat"), pageSize, pageSize*nStore)
	require.NoError(t, err)

	st, err := store.NewConcat([]*pagefile.File{spf})
	require.NoError(t, err)

	c, err := cache.Open(cpf, st, logging.CreateDebugLogger())
	require.NoError(t, err)

	w := writeback.New(c, logging.CreateDebugLogger())
	return New(c, st, w, logging.CreateDebugLogger())
}

func TestSizeIsPageSizeTimesTotalPages(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	assert.Equal(t, uint64(pageSize*4), d.Size())
}

func TestZeroLengthReadReturnsEmpty(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	out, err := d.Read(0, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestColdReadIsZeroFilled(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	out, err := d.Read(0, pageSize)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, pageSize), out)
}

func TestReadAtVolumeBoundaryErrors(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	_, err := d.Read(d.Size(), 1)
	assert.Error(t, err)

	_, err = d.Read(d.Size()-1, 2)
	assert.Error(t, err)
}

func TestWriteAtLastByteSucceeds(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	err := d.Write(d.Size()-1, []byte{0x7A})
	require.NoError(t, err)

	out, err := d.Read(d.Size()-1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7A}, out)
}

// A write entirely within one page, unaligned to its boundaries, must
// overlay only the touched bytes and leave the rest of the page intact.
func TestPartialWriteOverlaysWithinOnePage(t *testing.T) {
	d := newTestDevice(t, 2, 4)

	base := make([]byte, pageSize)
	for i := range base {
		base[i] = 0x11
	}
	require.NoError(t, d.Write(0, base))

	patch := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	require.NoError(t, d.Write(1904, patch))

	out, err := d.Read(0, pageSize)
	require.NoError(t, err)

	want := make([]byte, pageSize)
	copy(want, base)
	copy(want[1904:1908], patch)
	assert.Equal(t, want, out)
}

// A write spanning a page boundary must update both pages, each via its
// own overlap.
func TestWriteSpanningTwoPages(t *testing.T) {
	d := newTestDevice(t, 2, 4)

	data := make([]byte, 8)
	for i := range data {
		data[i] = byte(i + 1)
	}
	offset := uint64(pageSize - 4)
	require.NoError(t, d.Write(offset, data))

	out, err := d.Read(offset, 8)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	// the tail of page 0 and the head of page 1 each hold half the write.
	tail, err := d.Read(pageSize-4, 4)
	require.NoError(t, err)
	assert.Equal(t, data[:4], tail)

	head, err := d.Read(pageSize, 4)
	require.NoError(t, err)
	assert.Equal(t, data[4:], head)
}

// A write covering an entire page exactly must not read the page through
// the cache first (it is fully overwritten either way, but this also
// exercises the page-aligned fast path).
func TestExactlyOnePageWrite(t *testing.T) {
	d := newTestDevice(t, 2, 4)

	data := make([]byte, pageSize)
	for i := range data {
		data[i] = 0x5C
	}
	require.NoError(t, d.Write(pageSize, data))

	out, err := d.Read(pageSize, pageSize)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

// With N_cache=1, every fetch of a different page evicts the prior
// resident; read-your-writes must still hold across the induced eviction.
func TestSingleSlotCacheAlwaysEvictsButPreservesData(t *testing.T) {
	d := newTestDevice(t, 1, 4)

	a := make([]byte, pageSize)
	a[0] = 0x01
	b := make([]byte, pageSize)
	b[0] = 0x02

	require.NoError(t, d.Write(0, a))
	require.NoError(t, d.Write(pageSize, b))

	outA, err := d.Read(0, pageSize)
	require.NoError(t, err)
	assert.Equal(t, a, outA)

	outB, err := d.Read(pageSize, pageSize)
	require.NoError(t, err)
	assert.Equal(t, b, outB)
}

func TestFlushDrainsDirtyEntriesAndPersistsSegments(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	data := make([]byte, pageSize)
	data[0] = 0x99
	require.NoError(t, d.Write(0, data))

	require.NoError(t, d.Flush())

	out := make([]byte, pageSize)
	err := d.store.Read(0, out)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestTrimIsNoop(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	data := make([]byte, pageSize)
	data[0] = 0x42
	require.NoError(t, d.Write(0, data))

	require.NoError(t, d.Trim(0, pageSize))

	out, err := d.Read(0, pageSize)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestStatsTrackReadsAndWrites(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	data := make([]byte, pageSize)

	require.NoError(t, d.Write(0, data))
	_, err := d.Read(0, pageSize)
	require.NoError(t, err)

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, int64(1), stats.Reads)
	assert.Equal(t, int64(pageSize), stats.BytesWritten)
	assert.Equal(t, int64(pageSize), stats.BytesRead)
}

func TestOutOfRangeWriteIsRejected(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	err := d.Write(d.Size(), []byte{0x01})
	assert.Error(t, err)
	assert.Equal(t, int64(1), d.Stats().OutOfRangeErrors)
}

func TestRunningWriterDoesNotDisruptDeviceReads(t *testing.T) {
	d := newTestDevice(t, 2, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.writer.Run(ctx)

	data := make([]byte, pageSize)
	data[0] = 0x7E
	require.NoError(t, d.Write(0, data))

	out, err := d.Read(0, pageSize)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
