// Package engine is the composition root: it opens the cache and
// store paged files, wires them into a Cache, Device, and background
// Writer, and owns their lifetimes. Its Start/Stop pair generalizes
// the teacher's pageSystem goroutine-plus-WaitGroup shutdown in
// paging/bufferPool.go from a fixed-interval flush loop into a
// context-driven lifecycle shared by the background writer and the
// optional metrics listener.
package engine

import (
	"context"
	"sync"

	"github.com/phuslu/log"

	"qbd/cache"
	"qbd/config"
	"qbd/device"
	"qbd/logging"
	"qbd/metrics"
	"qbd/pagefile"
	"qbd/qerrors"
	"qbd/store"
	"qbd/writeback"
)

// Engine owns every open file handle and background task for one
// running volume.
type Engine struct {
	cfg *config.Config

	cachePF *pagefile.File
	storePF []*pagefile.File

	store  store.Store
	cache  *cache.Cache
	writer *writeback.Writer
	device *device.Device

	metrics *metrics.Server
	logger  log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens the cache and every store segment named by cfg, validates
// their page sizes, rebuilds the cache's in-memory state, and returns a
// ready-to-Start Engine. It does not yet serve requests.
func Open(cfg *config.Config) (*Engine, error) {
	logger := logging.New(cfg.DebugLevel)

	cachePF, err := pagefile.Open(cfg.CachePath, cfg.PageSize)
	if err != nil {
		return nil, qerrors.Wrap(err, "opening cache file")
	}

	storePFs := make([]*pagefile.File, 0, len(cfg.StoreURLs))
	for _, seg := range cfg.StoreURLs {
		pf, err := pagefile.Open(seg.Path, cfg.PageSize)
		if err != nil {
			return nil, qerrors.Wrap(err, "opening store segment "+seg.Path)
		}
		storePFs = append(storePFs, pf)
	}

	st, err := store.NewConcat(storePFs)
	if err != nil {
		return nil, qerrors.Wrap(err, "assembling store")
	}

	c, err := cache.Open(cachePF, st, logger)
	if err != nil {
		return nil, qerrors.Wrap(err, "opening cache")
	}

	w := writeback.New(c, logger)
	dev := device.New(c, st, w, logger)

	m := metrics.New(cfg.MetricsListen, metrics.Source{Cache: c, Device: dev}, logger)

	return &Engine{
		cfg:     cfg,
		cachePF: cachePF,
		storePF: storePFs,
		store:   st,
		cache:   c,
		writer:  w,
		device:  dev,
		metrics: m,
		logger:  logger,
	}, nil
}

// Device exposes the byte-addressable volume a transport adapter drives.
func (e *Engine) Device() *device.Device {
	return e.device
}

// Start launches the background writer and, if configured, the
// metrics listener. Safe to call once per Engine.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.writer.Run(ctx); err != nil {
			e.logger.Error().Err(err).Msg("background writer exited")
		}
	}()

	e.metrics.Start()
}

// Stop performs disconnect() (spec §6): stop the background tasks, flush
// everything durable, then release every file handle.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	if err := e.metrics.Stop(ctx); err != nil {
		e.logger.Error().Err(err).Msg("metrics server shutdown failed")
	}

	if err := e.device.Flush(); err != nil {
		return qerrors.Wrap(err, "final flush")
	}

	if err := e.cache.Close(); err != nil {
		return qerrors.Wrap(err, "closing cache")
	}
	if err := e.store.Close(); err != nil {
		return qerrors.Wrap(err, "closing store")
	}
	return nil
}
