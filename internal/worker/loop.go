// Package worker runs the periodic background jobs of the server.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// every runs job once immediately and then on each tick until ctx is cancelled.
func every(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	log := slog.With("worker", name)
	if interval <= 0 {
		log.Info("disabled", "interval", interval)
		return
	}
	log.Info("starting", "interval", interval)

	job(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}
