package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/kv/memory"
	"ledger/internal/kv/sheets"
	"ledger/internal/kv/sqlite"
	applog "ledger/internal/log"
)

const defaultCacheCleanup = 30 * time.Second

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case SheetsBackend:
		res, err = f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		res = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachNotifier(res, config)
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	store, err := sqlite.New(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Result{Store: store, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*Result, error) {
	store, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
		CacheTTL:        config.SheetsCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets store: %w", err)
	}

	caches := cache.NewManager(f.logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(store.Cache())
	caches.StartCleanup(cacheCleanupInterval(config))

	f.logger.Info("Initialized Google Sheets backend",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet", config.GoogleSheetName)

	return &Result{
		Store: store,
		Cleanup: func() error {
			caches.Stop()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() *Result {
	f.logger.Info("Initialized memory backend")
	return &Result{Store: memory.New()}
}

// attachNotifier connects to the broker when configured. A broker that is
// down at startup disables events rather than failing the process.
func (f *DefaultFactory) attachNotifier(res *Result, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	res.Notifier = client
	storeCleanup := res.Cleanup
	res.Cleanup = func() error {
		var errs []error
		if storeCleanup != nil {
			errs = append(errs, storeCleanup())
		}
		errs = append(errs, client.Close())
		return errors.Join(errs...)
	}
}

// cacheCleanupInterval sweeps expired entries once per TTL.
func cacheCleanupInterval(config Config) time.Duration {
	if config.SheetsCacheTTL <= 0 {
		return defaultCacheCleanup
	}
	return config.SheetsCacheTTL
}
