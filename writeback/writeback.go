// Package writeback implements the background write-back scanner (spec
// §4.5): a cooperative task that clears dirty bits on cache entries
// without evicting them, reducing eviction latency for later foreground
// bursts.
//
// The idle-then-timeslice shape is adapted from the teacher's
// paging.NewPageSystem eviction/flush goroutine, which runs a ticker and
// skips a tick if the previous one overran — generalized here from a
// fixed-interval flush into an idle-triggered, time-boxed LRU walk.
package writeback

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"qbd/cache"
)

// IdleThreshold is the foreground-quiet period after which the writer
// becomes eligible to run (spec §4.5).
const IdleThreshold = 500 * time.Millisecond

// Slice is the maximum duration of one work slice once eligible.
const Slice = 50 * time.Millisecond

const pollInterval = 10 * time.Millisecond

// Writer periodically clears dirty bits in LRU order while the device
// is otherwise idle. It never evicts.
type Writer struct {
	cache        *cache.Cache
	logger       log.Logger
	lastActivity atomic.Int64 // unix nanos
	enabled      atomic.Bool
}

// New creates a Writer bound to c. Call Touch on every foreground
// request to keep the idle clock accurate.
func New(c *cache.Cache, logger log.Logger) *Writer {
	w := &Writer{cache: c, logger: logger}
	w.enabled.Store(true)
	w.Touch()
	return w
}

// Touch records foreground I/O activity, pushing back the idle trigger.
func (w *Writer) Touch() {
	w.lastActivity.Store(time.Now().UnixNano())
}

// SetEnabled turns the background writer on or off at runtime. Used to
// exercise P8 (background-writer non-interference): toggling this must
// never change what a read returns, only when writeback happens.
func (w *Writer) SetEnabled(on bool) {
	w.enabled.Store(on)
}

// Run drives the writer until ctx is canceled. It polls for the idle
// threshold and, once eligible, walks the cache's LRU snapshot in order
// for at most one Slice, clearing dirty bits, then goes back to polling.
// Arrival of foreground activity (observed via Touch resetting the idle
// clock) ends the current slice at its next iteration.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.enabled.Load() {
				continue
			}
			if !w.idleFor(IdleThreshold) {
				continue
			}
			w.runSlice(ctx)
		}
	}
}

func (w *Writer) idleFor(d time.Duration) bool {
	last := time.Unix(0, w.lastActivity.Load())
	return time.Since(last) >= d
}

// runSlice walks the LRU snapshot for up to Slice, writing back dirty
// entries. It yields early if foreground activity arrives.
func (w *Writer) runSlice(ctx context.Context) {
	deadline := time.Now().Add(Slice)
	entries := w.cache.SnapshotLRU()
	activityAtStart := w.lastActivity.Load()

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		if w.lastActivity.Load() != activityAtStart {
			// a foreground request touched the engine since this slice
			// began; yield.
			return
		}
		if _, err := w.cache.WritebackOne(e.Global); err != nil {
			w.logger.Error().Err(err).Msg("background writeback failed")
			return
		}
	}
}

// DrainAll synchronously writes back every currently dirty entry,
// ignoring the idle gate and slice budget. Used by Device.Flush to
// guarantee a flush observes all acknowledged writes (spec §4.6).
func (w *Writer) DrainAll() error {
	entries := w.cache.SnapshotLRU()
	for _, e := range entries {
		if _, err := w.cache.WritebackOne(e.Global); err != nil {
			return err
		}
	}
	return nil
}
