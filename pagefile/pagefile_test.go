package pagefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbd/qerrors"
)

func TestCreateAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.dat")

	pf, err := Create(path, 4096, 4096*4)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), pf.Slots())
	require.NoError(t, pf.Close())

	reopened, err := Open(path, 4096)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint32(4), reopened.Slots())
	assert.Equal(t, uint32(4096), reopened.PageSize())
}

func TestOpenPageSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.dat")
	pf, err := Create(path, 4096, 4096*4)
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	_, err = Open(path, 8192)
	require.Error(t, err)
	assert.ErrorIs(t, err, qerrors.ErrInvalidFormat)
}

func TestOpenBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.dat")
	pf, err := Create(path, 4096, 4096*4)
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	// corrupt the magic bytes directly.
	corrupt(t, path)

	_, err = Open(path, 4096)
	require.Error(t, err)
}

func TestHeaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.dat")
	pf, err := Create(path, 4096, 4096*2)
	require.NoError(t, err)
	defer pf.Close()

	h := Header{Flags: Occupied | Dirty, GlobalIndex: 7}
	require.NoError(t, pf.WriteHeader(1, h))

	got, err := pf.ReadHeader(1)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, got.Occupied())
	assert.True(t, got.Dirty())
}

func TestPageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.dat")
	pf, err := Create(path, 16, 16*2)
	require.NoError(t, err)
	defer pf.Close()

	page := make([]byte, 16)
	for i := range page {
		page[i] = byte(i)
	}
	require.NoError(t, pf.WritePage(0, page))

	out := make([]byte, 16)
	require.NoError(t, pf.ReadPage(0, out))
	assert.Equal(t, page, out)
}

func TestInvalidSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.dat")
	pf, err := Create(path, 16, 16*2)
	require.NoError(t, err)
	defer pf.Close()

	_, err = pf.ReadHeader(2)
	require.Error(t, err)

	buf := make([]byte, 16)
	require.Error(t, pf.ReadPage(5, buf))
}

func TestFreshPagesReadZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.dat")
	pf, err := Create(path, 16, 16*4)
	require.NoError(t, err)
	defer pf.Close()

	out := make([]byte, 16)
	require.NoError(t, pf.ReadPage(3, out))
	assert.Equal(t, make([]byte, 16), out)
}

func corrupt(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt([]byte{0, 0, 0, 0}, 0)
	require.NoError(t, err)
}
