// Package backend builds the persistence store and the optional event
// notifier selected by configuration.
package backend

import (
	"context"

	"ledger/internal/kv"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

// CleanupFunc releases the resources held by a Result.
type CleanupFunc func() error

// Result holds everything a process needs to build its ledger repository.
type Result struct {
	Store kv.Store
	// Notifier is nil when events are disabled or the broker is unreachable.
	Notifier ledger.Notifier
	Cleanup  CleanupFunc
}

// Repository wraps the store in a ledger repository under key.
func (r *Result) Repository(key string, logger *applog.Logger) *ledger.Store {
	opts := []ledger.Option{ledger.WithKey(key), ledger.WithLogger(logger)}
	if r.Notifier != nil {
		opts = append(opts, ledger.WithNotifier(r.Notifier))
	}
	return ledger.New(r.Store, opts...)
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
