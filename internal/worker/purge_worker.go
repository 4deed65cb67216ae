package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Purger sweeps expired sessions and reports how many were removed.
type Purger interface {
	PurgeExpired(ctx context.Context) int
}

// PurgeWorker periodically force-submits and removes expired sessions.
type PurgeWorker struct {
	store    Purger
	interval time.Duration
	log      zerolog.Logger
}

// NewPurgeWorker creates a new PurgeWorker.
func NewPurgeWorker(store Purger, interval time.Duration, log zerolog.Logger) *PurgeWorker {
	return &PurgeWorker{
		store:    store,
		interval: interval,
		log:      log.With().Str("component", "purge_worker").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled. Call in a goroutine.
func (w *PurgeWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			start := time.Now()
			if n := w.store.PurgeExpired(ctx); n > 0 {
				w.log.Info().
					Int("purged", n).
					Dur("took", time.Since(start)).
					Msg("Expired sessions purged")
			}
		}
	}
}
