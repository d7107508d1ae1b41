package transport

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbd/cache"
	"qbd/device"
	"qbd/logging"
	"qbd/pagefile"
	"qbd/store"
	"qbd/writeback"
)

const pageSize = 4096

func newTestLoopback(t *testing.T) *Loopback {
	t.Helper()
	dir := t.TempDir()

	cpf, err := pagefile.Create(filepath.Join(dir, "cache.dat"), pageSize, pageSize*2)
	require.NoError(t, err)
	spf, err := pagefile.Create(filepath.Join(dir, "store.dat"), pageSize, pageSize*4)
	require.NoError(t, err)

	st, err := store.NewConcat([]*pagefile.File{spf})
	require.NoError(t, err)

	c, err := cache.Open(cpf, st, logging.CreateDebugLogger())
	require.NoError(t, err)

	w := writeback.New(c, logging.CreateDebugLogger())
	d := device.New(c, st, w, logging.CreateDebugLogger())
	return NewLoopback(d)
}

func TestLoopbackRoundTrip(t *testing.T) {
	l := newTestLoopback(t)

	data := []byte("hello world")
	require.NoError(t, l.Write(0, data))

	out, err := l.Read(0, uint32(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestLoopbackDisconnectFlushes(t *testing.T) {
	l := newTestLoopback(t)
	require.NoError(t, l.Write(0, []byte("durable")))
	require.NoError(t, l.Disconnect())
}
