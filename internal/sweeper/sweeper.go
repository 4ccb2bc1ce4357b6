// Package sweeper runs periodic housekeeping: expired documents, idle chat
// sessions and old ledger rows.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Task is one housekeeping step. Run returns how many items it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Worker is a running sweeper.
type Worker struct {
	done chan struct{}
}

// Done is closed once the worker has stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Start runs tasks every interval until ctx is cancelled. A non-positive
// interval falls back to five minutes.
func Start(ctx context.Context, interval time.Duration, tasks ...Task) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	w := &Worker{done: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		slog.Info("Sweeper started", "interval", interval, "tasks", len(tasks))

		for {
			select {
			case <-ticker.C:
				RunOnce(ctx, tasks...)
			case <-ctx.Done():
				slog.Info("Sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return w
}

// RunOnce runs every task once. A failing task does not stop the others.
func RunOnce(ctx context.Context, tasks ...Task) {
	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		n, err := t.Run(ctx)
		if err != nil {
			slog.Error("Sweep task failed", "task", t.Name, "error", err)
			continue
		}
		if n > 0 {
			slog.Info("Sweep task removed items", "task", t.Name, "count", n)
		}
	}
}

// DocumentEvicter drops expired documents.
type DocumentEvicter interface {
	EvictExpired() int
}

// Documents evicts expired generated documents.
func Documents(c DocumentEvicter) Task {
	return Task{Name: "documents", Run: func(context.Context) (int64, error) {
		return int64(c.EvictExpired()), nil
	}}
}

// SessionEvicter drops idle chat sessions.
type SessionEvicter interface {
	EvictIdle(ttl time.Duration) int
}

// Sessions evicts chat sessions idle for longer than ttl.
func Sessions(s SessionEvicter, ttl time.Duration) Task {
	return Task{Name: "sessions", Run: func(context.Context) (int64, error) {
		return int64(s.EvictIdle(ttl)), nil
	}}
}

// LedgerCleaner removes old submission rows.
type LedgerCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// Ledger removes submission rows older than retention.
func Ledger(l LedgerCleaner, retention time.Duration) Task {
	return Task{Name: "ledger", Run: func(ctx context.Context) (int64, error) {
		return l.Cleanup(ctx, retention)
	}}
}
