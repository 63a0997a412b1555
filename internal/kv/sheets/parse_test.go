package sheets

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestFindKeyRow(t *testing.T) {
	values := [][]any{
		{"settings", "{}"},
		{},
		{" expenses ", `[{"id":"1"}]`},
		{"expenses", "shadowed"},
		{"empty"},
	}

	row, v, ok := findKeyRow(values, "expenses")
	if !ok || row != 3 || v != `[{"id":"1"}]` {
		t.Fatalf("unexpected match: row=%d v=%q ok=%v", row, v, ok)
	}

	row, v, ok = findKeyRow(values, "empty")
	if !ok || row != 5 || v != "" {
		t.Fatalf("key without value: row=%d v=%q ok=%v", row, v, ok)
	}

	if _, _, ok := findKeyRow(values, "missing"); ok {
		t.Fatalf("expected missing key")
	}
	if _, _, ok := findKeyRow(nil, "expenses"); ok {
		t.Fatalf("expected no match on empty sheet")
	}
}

func TestRowRange(t *testing.T) {
	if got := rowRange("Store", 7); got != "Store!A7:B7" {
		t.Fatalf("got %s", got)
	}
}

func TestCachedGetSkipsService(t *testing.T) {
	s := NewWithService(nil, Config{SpreadsheetID: "id"})
	s.Cache().Set("expenses", []byte("[]"))

	v, ok, err := s.Get(context.Background(), "expenses")
	if err != nil || !ok || string(v) != "[]" {
		t.Fatalf("unexpected cached get: v=%q ok=%v err=%v", v, ok, err)
	}

	if _, _, err := s.Get(context.Background(), "other"); err == nil {
		t.Fatalf("expected error without service on cache miss")
	}
}

func TestWritesFailWithoutService(t *testing.T) {
	s := NewWithService(nil, Config{SpreadsheetID: "id"})
	s.Cache().Set("expenses", []byte("[]"))

	if err := s.Set(context.Background(), "expenses", []byte("[1]")); err == nil {
		t.Fatalf("expected set error")
	}
	if err := s.Remove(context.Background(), "expenses"); err == nil {
		t.Fatalf("expected remove error")
	}
	if s.Cache().Size() != 0 {
		t.Fatalf("remove must invalidate the cache entry")
	}
}

func TestSetRejectsValuesLargerThanACell(t *testing.T) {
	s := NewWithService(nil, Config{SpreadsheetID: "sheet"})
	err := s.Set(context.Background(), "expenses", []byte(strings.Repeat("x", MaxCellChars+1)))
	if !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}

	// Multi-byte characters count once.
	err = s.Set(context.Background(), "expenses", []byte(strings.Repeat("é", MaxCellChars)))
	if errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("value at the limit rejected: %v", err)
	}
}

func TestInvalidateDropsCachedValue(t *testing.T) {
	s := NewWithService(nil, Config{SpreadsheetID: "sheet"})
	s.Cache().Set("expenses", []byte("[]"))

	if v, ok, err := s.Get(context.Background(), "expenses"); err != nil || !ok || string(v) != "[]" {
		t.Fatalf("expected cached value, got %q %v %v", v, ok, err)
	}

	s.Invalidate("expenses")
	if _, _, err := s.Get(context.Background(), "expenses"); err == nil {
		t.Fatal("expected Get to reach the (missing) service after invalidation")
	}
}
