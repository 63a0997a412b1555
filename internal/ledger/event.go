package ledger

import (
	"context"
	"time"

	"ledger/internal/core"
)

type EventType string

const (
	EventCreated EventType = "created"
	EventDeleted EventType = "deleted"
	EventCleared EventType = "cleared"
)

// Event describes one successful ledger write.
type Event struct {
	Type      EventType
	ExpenseID string
	// Expense is set for EventCreated only.
	Expense *core.Expense
	At      time.Time
}

// Notifier receives ledger events after the write has persisted.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }
