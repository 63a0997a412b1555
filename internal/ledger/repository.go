// Package ledger owns the canonical list of expense records and its
// persistence as one JSON array under a single store key.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"ledger/internal/core"
	"ledger/internal/kv"
	applog "ledger/internal/log"
)

// DefaultKey is the store key the ledger lives under.
const DefaultKey = "expenses"

// sharedReadTimeout bounds a collapsed read, which no longer follows the
// cancellation of the caller that started it.
const sharedReadTimeout = 30 * time.Second

// Repository is the capability set the presentation layer works with.
type Repository interface {
	// Save appends e at the end of the ledger.
	Save(ctx context.Context, e core.Expense) error
	// ListAll returns the ledger in insertion order. Read failures yield an
	// empty ledger and are logged, never returned.
	ListAll(ctx context.Context) []core.Expense
	// DeleteByID removes every record with id. Unknown ids are a no-op.
	DeleteByID(ctx context.Context, id string) error
	// ClearAll removes the ledger key entirely.
	ClearAll(ctx context.Context) error
}

// Store implements Repository over a kv.Store. Every write is a full
// read-modify-write of the collection; writes from this process go through a
// single-writer gate so that they cannot interleave.
type Store struct {
	kv       kv.Store
	key      string
	notifier Notifier
	logger   *applog.Logger
	now      func() time.Time

	writer *semaphore.Weighted
	reads  singleflight.Group
	// gen advances after every persisted write so that a read started
	// afterwards never joins an in-flight read of older contents.
	gen atomic.Uint64
}

var _ Repository = (*Store)(nil)

type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.WithComponent(applog.ComponentLedger)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		key:    DefaultKey,
		logger: applog.Default(applog.ComponentLedger),
		now:    time.Now,
		writer: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the store key of the ledger.
func (s *Store) Key() string { return s.key }

func (s *Store) Save(ctx context.Context, e core.Expense) error {
	err := s.mutate(ctx, "save", func(records []core.Expense) []core.Expense {
		return append(records, e)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Expense saved",
		applog.NewFields().WithExpense(e.ID, e.Amount, e.Category.String(), e.Date).ToSlice()...)
	rec := e
	s.notify(ctx, Event{Type: EventCreated, ExpenseID: e.ID, Expense: &rec})
	return nil
}

func (s *Store) ListAll(ctx context.Context) []core.Expense {
	flight := s.key + "@" + strconv.FormatUint(s.gen.Load(), 10)
	ch := s.reads.DoChan(flight, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		return s.load(readCtx), nil
	})

	select {
	case res := <-ch:
		shared := res.Val.([]core.Expense)
		out := make([]core.Expense, len(shared))
		copy(out, shared)
		return out
	case <-ctx.Done():
		s.logger.DebugContext(ctx, "Ledger read abandoned by caller",
			applog.FieldKey, s.key, applog.FieldError, ctx.Err())
		return []core.Expense{}
	}
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	removed := 0
	err := s.mutate(ctx, "delete", func(records []core.Expense) []core.Expense {
		kept := records[:0]
		for _, r := range records {
			if r.ID == id {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		return kept
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Expense deleted", applog.FieldExpenseID, id, applog.FieldCount, removed)
	if removed > 0 {
		s.notify(ctx, Event{Type: EventDeleted, ExpenseID: id})
	}
	return nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return err
	}
	err := s.kv.Remove(ctx, s.key)
	if err == nil {
		s.gen.Add(1)
	}
	s.writer.Release(1)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear ledger", applog.FieldKey, s.key, applog.FieldError, err)
		return &StorageWriteError{Key: s.key, Op: "clear", Err: err}
	}

	s.logger.InfoContext(ctx, "Ledger cleared", applog.FieldKey, s.key)
	s.notify(ctx, Event{Type: EventCleared})
	return nil
}

// mutate runs one read-modify-write cycle under the writer gate. A store
// that cannot be read aborts the write; a blob that cannot be decoded is
// replaced.
func (s *Store) mutate(ctx context.Context, op string, change func([]core.Expense) []core.Expense) error {
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.writer.Release(1)

	blob, _, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read ledger before write",
			applog.FieldKey, s.key, applog.FieldOperation, op, applog.FieldError, err)
		return &StorageWriteError{Key: s.key, Op: op, Err: &StorageReadError{Key: s.key, Err: err}}
	}
	current, err := s.decode(blob)
	if err != nil {
		s.logger.ErrorContext(ctx, "Ledger unreadable, starting fresh",
			applog.FieldKey, s.key, applog.FieldOperation, op, applog.FieldError, err)
		current = []core.Expense{}
	}

	records := change(current)
	if records == nil {
		records = []core.Expense{}
	}
	next, err := json.Marshal(records)
	if err != nil {
		return &StorageWriteError{Key: s.key, Op: op, Err: err}
	}
	if err := s.kv.Set(ctx, s.key, next); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write ledger",
			applog.FieldKey, s.key, applog.FieldOperation, op, applog.FieldError, err)
		return &StorageWriteError{Key: s.key, Op: op, Err: err}
	}
	s.gen.Add(1)
	return nil
}

// load reads the full ledger, failing open to an empty one.
func (s *Store) load(ctx context.Context) []core.Expense {
	records, err := s.read(ctx)
	if err != nil {
		var rerr *StorageReadError
		if errors.As(err, &rerr) {
			s.logger.ErrorContext(ctx, "Ledger unreadable, treating as empty",
				applog.FieldKey, rerr.Key, applog.FieldError, rerr.Err)
		}
		return []core.Expense{}
	}
	return records
}

func (s *Store) read(ctx context.Context) ([]core.Expense, error) {
	blob, _, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, &StorageReadError{Key: s.key, Err: err}
	}
	records, err := s.decode(blob)
	if err != nil {
		return nil, &StorageReadError{Key: s.key, Err: err}
	}
	return records, nil
}

// decode parses a persisted blob. Absent, empty and null blobs are an empty
// ledger.
func (s *Store) decode(blob []byte) ([]core.Expense, error) {
	if len(blob) == 0 {
		return []core.Expense{}, nil
	}
	var records []core.Expense
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []core.Expense{}
	}
	return records, nil
}

func (s *Store) notify(ctx context.Context, ev Event) {
	if s.notifier == nil {
		return
	}
	ev.At = s.now()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		// The write already persisted.
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			applog.FieldEventType, string(ev.Type), applog.FieldExpenseID, ev.ExpenseID, applog.FieldError, err)
	}
}
