// Package worker keeps derived views of the ledger up to date from the
// event stream.
package worker

import (
	"context"
	"sync"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/kv"
	applog "ledger/internal/log"
	"ledger/internal/summary"
)

// Lister is the read side of the ledger the worker needs.
type Lister interface {
	ListAll(ctx context.Context) []core.Expense
}

// DashboardWorker recomputes the dashboard snapshot whenever a ledger event
// arrives. The ledger itself stays the source of truth; events only signal
// that the snapshot is stale.
type DashboardWorker struct {
	ledger      Lister
	logger      *applog.Logger
	now         func() time.Time
	invalidator kv.Invalidator
	key         string

	mu        sync.RWMutex
	snapshot  summary.Dashboard
	updatedAt time.Time
	processed int64
}

type Option func(*DashboardWorker)

// WithInvalidator drops the cached copy of key before every event-driven
// refresh, so a caching store does not serve the blob the event replaced.
func WithInvalidator(inv kv.Invalidator, key string) Option {
	return func(w *DashboardWorker) {
		w.invalidator = inv
		w.key = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *DashboardWorker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewDashboardWorker(ledger Lister, logger *applog.Logger, opts ...Option) *DashboardWorker {
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	w := &DashboardWorker{
		ledger: ledger,
		logger: logger.WithComponent(applog.ComponentWorker),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleEvent is an amqp.Handler.
func (w *DashboardWorker) HandleEvent(ctx context.Context, msg *amqp.EventMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		applog.FieldEventType, string(msg.Type),
		applog.FieldExpenseID, msg.ExpenseID)

	if w.invalidator != nil {
		w.invalidator.Invalidate(w.key)
	}
	w.Refresh(ctx)

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
	return nil
}

// Refresh rebuilds the snapshot from the current ledger.
func (w *DashboardWorker) Refresh(ctx context.Context) summary.Dashboard {
	start := time.Now()
	now := w.now()
	d := summary.Build(w.ledger.ListAll(ctx), now)

	w.mu.Lock()
	w.snapshot = d
	w.updatedAt = now
	w.mu.Unlock()

	w.logger.DebugContext(ctx, "Dashboard refreshed",
		applog.FieldCount, d.Count,
		"today", summary.FormatCurrency(d.Today),
		"month", summary.FormatCurrency(d.Month),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return d
}

// Snapshot returns the last computed dashboard and when it was computed.
// The time is zero before the first refresh.
func (w *DashboardWorker) Snapshot() (summary.Dashboard, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot, w.updatedAt
}

// Processed reports how many events have been handled.
func (w *DashboardWorker) Processed() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processed
}

// RefreshEvery rebuilds the snapshot on a fixed interval until ctx is done,
// so date-relative totals roll over at midnight without new events.
func (w *DashboardWorker) RefreshEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}
