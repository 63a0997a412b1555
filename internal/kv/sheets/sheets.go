// Package sheets stores key-value pairs as rows of a Google Sheets tab:
// column A holds the key, column B the value.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"ledger/internal/cache"
	"ledger/internal/kv"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// MaxCellChars is the Google Sheets limit on the characters one cell holds.
const MaxCellChars = 50000

// ErrValueTooLarge is returned by Set when a value does not fit in one cell.
var ErrValueTooLarge = fmt.Errorf("value exceeds the %d character limit of a sheet cell", MaxCellChars)

// Config describes where the store lives and how to authenticate.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	CacheTTL        time.Duration
	CacheSize       int
}

type Store struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	cache         *cache.LRUCache[[]byte]
}

var (
	_ kv.Store       = (*Store)(nil)
	_ kv.Invalidator = (*Store)(nil)
)

// New builds a Sheets service from service account credentials and wraps it.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, cfg Config) *Store {
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Store"
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 16
	}
	return &Store{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheet,
		cache:         cache.NewLRUCache[[]byte](size, ttl),
	}
}

// Cache exposes the read cache so its owner can schedule cleanup.
func (s *Store) Cache() *cache.LRUCache[[]byte] {
	return s.cache
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	if len(credentialsJSON) == 0 {
		file := strings.TrimSpace(cfg.CredentialsFile)
		if file == "" {
			file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		}
		if file == "" {
			return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
		}
		var err error
		credentialsJSON, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read credentials file", "path", file, "size", len(credentialsJSON))
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := s.cache.Get(key); ok {
		return append([]byte(nil), v...), true, nil
	}
	rows, err := s.readRows(ctx)
	if err != nil {
		return nil, false, err
	}
	_, value, ok := findKeyRow(rows, key)
	if !ok {
		return nil, false, nil
	}
	s.cache.Set(key, []byte(value))
	return []byte(value), true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if n := utf8.RuneCount(value); n > MaxCellChars {
		return fmt.Errorf("set %q (%d characters): %w", key, n, ErrValueTooLarge)
	}
	if s.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rows, err := s.readRows(ctx)
	if err != nil {
		return err
	}

	vr := &gsheet.ValueRange{Values: [][]any{{key, string(value)}}}
	if row, _, ok := findKeyRow(rows, key); ok {
		rng := rowRange(s.sheetName, row)
		_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			s.cache.Delete(key)
			return fmt.Errorf("update %s: %w", rng, err)
		}
	} else {
		rng := fmt.Sprintf("%s!A:B", s.sheetName)
		_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			s.cache.Delete(key)
			return fmt.Errorf("append %s: %w", rng, err)
		}
	}

	s.cache.Set(key, append([]byte(nil), value...))
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.cache.Delete(key)
	if s.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rows, err := s.readRows(ctx)
	if err != nil {
		return err
	}
	row, _, ok := findKeyRow(rows, key)
	if !ok {
		return nil
	}
	rng := rowRange(s.sheetName, row)
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

// Invalidate drops the cached value of key.
func (s *Store) Invalidate(key string) {
	s.cache.Delete(key)
}

func (s *Store) readRows(ctx context.Context) ([][]any, error) {
	if s.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:B", s.sheetName)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}
