package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendSheets}

type Config struct {
	// HTTP Server
	Port string

	// Ledger
	StoreBackend string
	LedgerKey    string

	// SQLite
	SQLiteDBPath string

	// AMQP; an empty URL disables events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsCacheTTL           time.Duration

	// Worker
	WorkerPort               string
	DashboardRefreshInterval time.Duration

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		StoreBackend: getEnv("STORE_BACKEND", BackendMemory),
		LedgerKey:    getEnv("LEDGER_KEY", "expenses"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledger.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Store"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		SheetsCacheTTL:           getEnvDuration("SHEETS_CACHE_TTL", 30*time.Second),

		WorkerPort:               getEnv("WORKER_PORT", "8082"),
		DashboardRefreshInterval: getEnvDuration("DASHBOARD_REFRESH_INTERVAL", time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if msg := checkPort("port", c.Port); msg != "" {
		errs = append(errs, msg)
	}

	if !slices.Contains(validBackends, c.StoreBackend) {
		errs = append(errs, fmt.Sprintf("invalid store backend '%s': must be one of %v", c.StoreBackend, validBackends))
	}

	if strings.TrimSpace(c.LedgerKey) == "" {
		errs = append(errs, "ledger key cannot be empty")
	}

	if c.StoreBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.StoreBackend == BackendSheets {
		if c.GoogleSpreadsheetID == "" {
			errs = append(errs, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errs = append(errs, "Google Sheet name is required when using sheets backend")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if c.SheetsCacheTTL < 0 {
			errs = append(errs, fmt.Sprintf("invalid sheets cache TTL %v: must not be negative", c.SheetsCacheTTL))
		}
	}

	if c.DashboardRefreshInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid dashboard refresh interval %v: must be at least 1 second", c.DashboardRefreshInterval))
	} else if c.DashboardRefreshInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid dashboard refresh interval %v: must be at most 24 hours", c.DashboardRefreshInterval))
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateWorker checks what the event worker needs on top of Validate. The
// worker reads the ledger the server writes, so it needs a broker and a
// store both processes can reach.
func (c *Config) ValidateWorker() error {
	var errs []string

	if c.AMQPURL == "" {
		errs = append(errs, "AMQP URL is required for the worker")
	}
	if c.StoreBackend == BackendMemory {
		errs = append(errs, "memory backend cannot be shared with the server: use sqlite or sheets for the worker")
	}
	if msg := checkPort("worker port", c.WorkerPort); msg != "" {
		errs = append(errs, msg)
	}

	if len(errs) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func checkPort(name, value string) string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Sprintf("invalid %s '%s': must be a number", name, value)
	}
	if port < 1 || port > 65535 {
		return fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
