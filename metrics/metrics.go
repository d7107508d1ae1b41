// Package metrics exposes the engine's counters over HTTP as JSON.
// No metrics client library appears anywhere in the example pack, so
// this wraps plain atomic counters behind the same gorilla/mux-routed
// http.Server shape sahib-brig's gateway.Gateway uses to start and
// stop a background HTTP listener.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/phuslu/log"

	"qbd/cache"
	"qbd/device"
)

// Snapshot is the JSON body served at /metrics.
type Snapshot struct {
	Cache  cache.Stats  `json:"cache"`
	Device device.Stats `json:"device"`
}

// Source supplies the counters a Server reports.
type Source struct {
	Cache  *cache.Cache
	Device *device.Device
}

// Server is the out-of-band metrics endpoint bound to metrics_listen
// (spec §6). A nil or empty addr leaves metrics disabled.
type Server struct {
	addr   string
	source Source
	logger log.Logger

	srv *http.Server
}

// New builds a Server that will listen on addr once started. addr ==
// "" means metrics stay disabled (spec §6 default).
func New(addr string, source Source, logger log.Logger) *Server {
	return &Server{addr: addr, source: source, logger: logger}
}

// Start launches the HTTP listener in the background. A no-op if addr
// is empty.
func (s *Server) Start() {
	if s.addr == "" {
		return
	}

	router := mux.NewRouter()
	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// Stop gracefully shuts the listener down. A no-op if never started.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := Snapshot{}
	if s.source.Cache != nil {
		snap.Cache = s.source.Cache.Stats()
	}
	if s.source.Device != nil {
		snap.Device = s.source.Device.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode metrics snapshot")
	}
}
