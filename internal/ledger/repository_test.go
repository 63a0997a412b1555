package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/kv/memory"
)

var errStore = errors.New("store unavailable")

// flakyStore wraps the memory store and fails the operations that are switched on.
type flakyStore struct {
	*memory.Store
	failGet, failSet, failRemove bool
	sets                         int
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errStore
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errStore
	}
	f.sets++
	return f.Store.Set(ctx, key, value)
}

func (f *flakyStore) Remove(ctx context.Context, key string) error {
	if f.failRemove {
		return errStore
	}
	return f.Store.Remove(ctx, key)
}

// gatedStore holds every Get until release is closed or the caller's
// context ends.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	return g.Store.Get(ctx, key)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func exp(id string, amount float64, c core.Category, date string) core.Expense {
	return core.Expense{ID: id, Amount: amount, Category: c, Date: date}
}

func ids(records []core.Expense) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSaveThenListAllPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := New(memory.New())

	want := []core.Expense{
		exp("3", 30, core.Food, "2024-01-03"),
		exp("1", 10, core.Travel, "2024-01-01"),
		{ID: "2", Amount: 20, Category: core.Bills, Date: "2024-01-02", Note: "power"},
	}
	for _, e := range want {
		if err := repo.Save(ctx, e); err != nil {
			t.Fatalf("save %s: %v", e.ID, err)
		}
	}

	got := repo.ListAll(ctx)
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestListAllEmptyWhenNothingPersisted(t *testing.T) {
	got := New(memory.New()).ListAll(context.Background())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestListAllFailsOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupted blob", func(t *testing.T) {
		store := memory.New()
		_ = store.Set(ctx, DefaultKey, []byte("{not json"))
		if got := New(store).ListAll(ctx); len(got) != 0 {
			t.Fatalf("expected empty ledger, got %v", got)
		}
	})

	t.Run("read error", func(t *testing.T) {
		store := &flakyStore{Store: memory.New(), failGet: true}
		if got := New(store).ListAll(ctx); len(got) != 0 {
			t.Fatalf("expected empty ledger, got %v", got)
		}
	})

	t.Run("null blob", func(t *testing.T) {
		store := memory.New()
		_ = store.Set(ctx, DefaultKey, []byte("null"))
		if got := New(store).ListAll(ctx); got == nil || len(got) != 0 {
			t.Fatalf("expected empty ledger, got %#v", got)
		}
	})
}

func TestListAllSharedReadSurvivesCancelledCaller(t *testing.T) {
	store := newGatedStore()
	_ = store.Store.Set(context.Background(), DefaultKey,
		[]byte(`[{"id":"1","amount":5,"category":"Food","date":"2024-01-01"}]`))
	repo := New(store)

	ctxA, cancelA := context.WithCancel(context.Background())
	first := make(chan []core.Expense, 1)
	go func() { first <- repo.ListAll(ctxA) }()
	<-store.entered

	second := make(chan []core.Expense, 1)
	go func() { second <- repo.ListAll(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if got := <-first; len(got) != 0 {
		t.Fatalf("cancelled caller should get an empty ledger, got %v", got)
	}

	close(store.release)
	select {
	case got := <-second:
		if !equalIDs(ids(got), []string{"1"}) {
			t.Fatalf("live caller got %v, want [1]", ids(got))
		}
	case <-time.After(time.Second):
		t.Fatal("live caller never returned")
	}
}

func TestListAllReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	repo := New(memory.New())
	_ = repo.Save(ctx, exp("1", 1, core.Food, "2024-01-01"))

	first := repo.ListAll(ctx)
	first[0].Amount = 999
	if again := repo.ListAll(ctx); again[0].Amount != 1 {
		t.Fatalf("caller mutation leaked: %+v", again[0])
	}
}

func TestDeleteByID(t *testing.T) {
	ctx := context.Background()
	repo := New(memory.New())
	for _, e := range []core.Expense{
		exp("a", 1, core.Food, "2024-01-01"),
		exp("b", 2, core.Misc, "2024-01-02"),
		exp("c", 3, core.Bills, "2024-01-03"),
	} {
		_ = repo.Save(ctx, e)
	}

	if err := repo.DeleteByID(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := ids(repo.ListAll(ctx)); !equalIDs(got, []string{"a", "c"}) {
		t.Fatalf("unexpected ids after delete: %v", got)
	}

	before := repo.ListAll(ctx)
	if err := repo.DeleteByID(ctx, "missing"); err != nil {
		t.Fatalf("deleting unknown id must succeed: %v", err)
	}
	after := repo.ListAll(ctx)
	if len(after) != len(before) || after[0] != before[0] || after[1] != before[1] {
		t.Fatalf("unknown id changed ledger: before=%v after=%v", before, after)
	}
}

func TestDeleteByIDRemovesDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := New(memory.New())
	_ = repo.Save(ctx, exp("dup", 1, core.Food, "2024-01-01"))
	_ = repo.Save(ctx, exp("keep", 2, core.Food, "2024-01-01"))
	_ = repo.Save(ctx, exp("dup", 3, core.Food, "2024-01-01"))

	_ = repo.DeleteByID(ctx, "dup")
	if got := ids(repo.ListAll(ctx)); !equalIDs(got, []string{"keep"}) {
		t.Fatalf("expected only keep, got %v", got)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := New(store)
	_ = repo.Save(ctx, exp("1", 1, core.Food, "2024-01-01"))

	if err := repo.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := repo.ListAll(ctx); len(got) != 0 {
		t.Fatalf("expected empty ledger, got %v", got)
	}
	if _, ok, _ := store.Get(ctx, DefaultKey); ok {
		t.Fatalf("expected key removed from store")
	}
}

func TestWriteFailuresSurfaceAndLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	repo := New(store)
	_ = repo.Save(ctx, exp("1", 1, core.Food, "2024-01-01"))
	store.failSet = true
	store.failRemove = true

	var werr *StorageWriteError
	if err := repo.Save(ctx, exp("2", 2, core.Food, "2024-01-01")); !errors.As(err, &werr) || werr.Op != "save" {
		t.Fatalf("expected save StorageWriteError, got %v", err)
	}
	if !errors.Is(werr, errStore) {
		t.Fatalf("write error should unwrap to the store error")
	}
	if err := repo.DeleteByID(ctx, "1"); !errors.As(err, &werr) || werr.Op != "delete" {
		t.Fatalf("expected delete StorageWriteError, got %v", err)
	}
	if err := repo.ClearAll(ctx); !errors.As(err, &werr) || werr.Op != "clear" {
		t.Fatalf("expected clear StorageWriteError, got %v", err)
	}

	if got := ids(repo.ListAll(ctx)); !equalIDs(got, []string{"1"}) {
		t.Fatalf("failed writes changed state: %v", got)
	}
}

func TestWriteAbortsWhenStoreUnreadable(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	repo := New(store)
	_ = repo.Save(ctx, exp("1", 1, core.Food, "2024-01-01"))
	_ = repo.Save(ctx, exp("2", 2, core.Bills, "2024-01-02"))
	sets := store.sets

	store.failGet = true
	var werr *StorageWriteError
	if err := repo.Save(ctx, exp("3", 3, core.Misc, "2024-01-03")); !errors.As(err, &werr) || werr.Op != "save" {
		t.Fatalf("expected save StorageWriteError, got %v", err)
	}
	var rerr *StorageReadError
	if !errors.As(werr, &rerr) || !errors.Is(werr, errStore) {
		t.Fatalf("write error should wrap the read failure, got %v", werr)
	}
	if err := repo.DeleteByID(ctx, "1"); !errors.As(err, &werr) || werr.Op != "delete" {
		t.Fatalf("expected delete StorageWriteError, got %v", err)
	}
	if store.sets != sets {
		t.Fatalf("ledger was overwritten after a failed read")
	}

	store.failGet = false
	if got := ids(repo.ListAll(ctx)); !equalIDs(got, []string{"1", "2"}) {
		t.Fatalf("ledger changed: %v", got)
	}
}

func TestSaveOverCorruptedLedgerStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.Set(ctx, DefaultKey, []byte("garbage"))
	repo := New(store)

	if err := repo.Save(ctx, exp("1", 5, core.Misc, "2024-01-01")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := ids(repo.ListAll(ctx)); !equalIDs(got, []string{"1"}) {
		t.Fatalf("unexpected ledger: %v", got)
	}
}

func TestCustomKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := New(store, WithKey("ledger:test"))
	_ = repo.Save(ctx, exp("1", 1, core.Food, "2024-01-01"))

	if _, ok, _ := store.Get(ctx, "ledger:test"); !ok {
		t.Fatalf("expected ledger under custom key")
	}
	if _, ok, _ := store.Get(ctx, DefaultKey); ok {
		t.Fatalf("default key must stay untouched")
	}
}

func TestConcurrentSavesAreSerialized(t *testing.T) {
	ctx := context.Background()
	repo := New(memory.New())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := repo.Save(ctx, exp(fmt.Sprintf("id-%d", i), 1, core.Food, "2024-01-01")); err != nil {
				t.Errorf("save %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(repo.ListAll(ctx)); got != n {
		t.Fatalf("expected %d records after concurrent saves, got %d", n, got)
	}
}

func TestConcurrentDeletesDoNotResurrect(t *testing.T) {
	ctx := context.Background()
	repo := New(memory.New())
	for i := 0; i < 20; i++ {
		_ = repo.Save(ctx, exp(fmt.Sprintf("id-%d", i), 1, core.Food, "2024-01-01"))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.DeleteByID(ctx, fmt.Sprintf("id-%d", i))
		}(i)
	}
	wg.Wait()

	if got := len(repo.ListAll(ctx)); got != 10 {
		t.Fatalf("expected 10 records left, got %d", got)
	}
}

func TestWriteHonorsCancelledContextWhileWaiting(t *testing.T) {
	repo := New(memory.New())
	if err := repo.writer.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer repo.writer.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := repo.Save(ctx, exp("1", 1, core.Food, "2024-01-01")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNotifierReceivesEvents(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := &recordingNotifier{}
	repo := New(memory.New(), WithNotifier(n), WithClock(func() time.Time { return at }))

	_ = repo.Save(ctx, exp("1", 4, core.Travel, "2024-05-01"))
	_ = repo.DeleteByID(ctx, "missing")
	_ = repo.DeleteByID(ctx, "1")
	_ = repo.ClearAll(ctx)

	if len(n.events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(n.events), n.events)
	}
	if ev := n.events[0]; ev.Type != EventCreated || ev.Expense == nil || ev.Expense.Amount != 4 || !ev.At.Equal(at) {
		t.Fatalf("unexpected created event: %+v", ev)
	}
	if ev := n.events[1]; ev.Type != EventDeleted || ev.ExpenseID != "1" {
		t.Fatalf("unexpected deleted event: %+v", ev)
	}
	if ev := n.events[2]; ev.Type != EventCleared {
		t.Fatalf("unexpected cleared event: %+v", ev)
	}
}

func TestNotifierFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{err: errors.New("broker down")}
	repo := New(memory.New(), WithNotifier(n))

	if err := repo.Save(ctx, exp("1", 1, core.Food, "2024-01-01")); err != nil {
		t.Fatalf("save must succeed despite notifier error: %v", err)
	}
	if len(repo.ListAll(ctx)) != 1 {
		t.Fatalf("record not persisted")
	}
}

func TestNoEventOnFailedWrite(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	repo := New(&flakyStore{Store: memory.New(), failSet: true, failRemove: true}, WithNotifier(n))

	_ = repo.Save(ctx, exp("1", 1, core.Food, "2024-01-01"))
	_ = repo.ClearAll(ctx)
	if len(n.events) != 0 {
		t.Fatalf("expected no events, got %+v", n.events)
	}
}

func TestErrorMessages(t *testing.T) {
	r := &StorageReadError{Key: "expenses", Err: errStore}
	if r.Error() != `read ledger "expenses": store unavailable` {
		t.Fatalf("unexpected: %s", r.Error())
	}
	w := &StorageWriteError{Key: "expenses", Op: "save", Err: errStore}
	if w.Error() != `save ledger "expenses": store unavailable` {
		t.Fatalf("unexpected: %s", w.Error())
	}
}
