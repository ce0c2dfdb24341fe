package memory

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically removes expired sessions from a Store.
type Reaper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
}

// NewReaper creates a Reaper. If interval is <= 0, it defaults to 10 minutes.
func NewReaper(store Store, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reaper{store: store, interval: interval, logger: slog.Default()}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("session reaper started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session reaper stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of sessions removed.
func (r *Reaper) RunOnce(ctx context.Context) int {
	n, err := r.store.ReapExpired(ctx)
	if err != nil {
		r.logger.Error("session reap failed", "error", err)
		return n
	}
	if n > 0 {
		r.logger.Info("reaped expired sessions", "count", n)
	}
	return n
}
