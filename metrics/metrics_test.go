package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
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

func newTestSource(t *testing.T) Source {
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
	return Source{Cache: c, Device: d}
}

func TestHandleMetricsServesJSONSnapshot(t *testing.T) {
	source := newTestSource(t)
	require.NoError(t, source.Device.Write(0, []byte("x")))
	_, err := source.Device.Read(0, 1)
	require.NoError(t, err)

	s := New("", source, logging.CreateDebugLogger())

	router := mux.NewRouter()
	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Device.Writes)
	assert.Equal(t, int64(1), snap.Device.Reads)
}

func TestStartStopWithEmptyAddrIsNoop(t *testing.T) {
	source := newTestSource(t)
	s := New("", source, logging.CreateDebugLogger())
	s.Start()
	require.NoError(t, s.Stop(context.Background()))
}
