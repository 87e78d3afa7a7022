// Package ingest turns the upstream traffic monitor into telemetry snapshots.
// Snapshots come either from polling the monitor's HTTP API or from a Kafka
// topic carrying the same payload, and each one is handed to a Handler.
package ingest

import (
	"context"
	"time"

	"bandwatch/internal/model"
)

// Handler receives every decoded snapshot. It runs inline with the source,
// so a slow handler delays the next poll.
type Handler func(ctx context.Context, snap model.Snapshot)

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

const maxBackoff = 30 * time.Second

func nextBackoff(cur, base time.Duration) time.Duration {
	if cur <= 0 {
		return base
	}
	cur *= 2
	if cur > maxBackoff {
		return maxBackoff
	}
	return cur
}
