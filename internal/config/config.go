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

var validBackends = []string{"memory", "sqlite"}

type Config struct {
	// HTTP server
	Port               string
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// Item view cache
	CacheSize int
	CacheTTL  time.Duration

	// AMQP, optional for the server
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger, used by the movement worker
	GoogleSpreadsheetID      string
	GoogleLedgerSheetName    string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/designledger.db"),

		CacheSize: getEnvInt("CACHE_SIZE", 500),
		CacheTTL:  getEnvDuration("CACHE_TTL", 2*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "designledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "item_movements"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleLedgerSheetName:    getEnv("GOOGLE_LEDGER_SHEET_NAME", "Movements"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CacheSize < 1 || c.CacheSize > 100000 {
		problems = append(problems, fmt.Sprintf("invalid cache size %d: must be between 1 and 100000", c.CacheSize))
	}
	if c.CacheTTL < time.Second || c.CacheTTL > 24*time.Hour {
		problems = append(problems, fmt.Sprintf("invalid cache TTL %v: must be between 1s and 24h", c.CacheTTL))
	}
	if c.RateLimitPerMinute < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings the movement worker needs on top of
// Validate.
func (c *Config) ValidateWorker() error {
	var problems []string
	if err := c.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.AMQPURL == "" {
		problems = append(problems, "AMQP_URL is required for the movement worker")
	}
	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		problems = append(problems, "GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE is required when GOOGLE_SPREADSHEET_ID is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// LedgerEnabled reports whether the worker should write to Google Sheets
// rather than the in-memory ledger.
func (c *Config) LedgerEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
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
