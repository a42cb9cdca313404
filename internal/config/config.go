package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"finscope/internal/log"
)

type Config struct {
	// HTTP Server
	Port           string
	RateLimit      int
	TrustedProxies []string

	// Backend selection
	DataBackend   string
	DataDirectory string

	// Database
	SQLiteDBPath string

	// AMQP (optional; empty URL disables notifications)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID       string
	GoogleSheetName           string
	GoogleCategoriesSheetName string
	GoogleCredentialsFile     string
	GoogleCredentialsJSON     string

	// Mirror worker
	MirrorSource   string
	MirrorInterval time.Duration

	// Timeline
	Timezone       string
	SessionTTL     time.Duration
	MaxSessions    int
	ReloadDebounce time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

var validBackends = []string{"memory", "sqlite", "sheets"}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		RateLimit:      getEnvInt("RATE_LIMIT_PER_MINUTE", 300),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		DataBackend:   getEnv("DATA_BACKEND", "memory"),
		DataDirectory: getEnv("DATA_DIRECTORY", "data"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/finscope.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finscope"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finscope.reload"),

		GoogleSpreadsheetID:       getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:           getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleCategoriesSheetName: getEnv("GOOGLE_CATEGORIES_SHEET_NAME", "Categories"),
		GoogleCredentialsFile:     getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON:     getEnv("GOOGLE_CREDENTIALS_JSON", ""),

		MirrorSource:   getEnv("MIRROR_SOURCE", "sheets"),
		MirrorInterval: getEnvDuration("MIRROR_INTERVAL", 5*time.Minute),

		Timezone:       getEnv("TIMEZONE", "UTC"),
		SessionTTL:     getEnvDuration("SESSION_TTL", 2*time.Hour),
		MaxSessions:    getEnvInt("MAX_SESSIONS", 256),
		ReloadDebounce: getEnvDuration("RELOAD_DEBOUNCE", 2*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate validates the configuration and returns an error listing every problem
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimit))
	}

	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "memory":
		if c.DataDirectory == "" {
			errors = append(errors, "data directory cannot be empty when using memory backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		if c.GoogleCategoriesSheetName == "" {
			errors = append(errors, "Google categories sheet name is required when using sheets backend")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.MirrorSource != "" && c.MirrorSource != "sheets" && c.MirrorSource != "memory" {
		errors = append(errors, fmt.Sprintf("invalid mirror source '%s': must be 'sheets' or 'memory'", c.MirrorSource))
	}
	if c.MirrorInterval != 0 && c.MirrorInterval < 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid mirror interval %v: must be at least 10 seconds", c.MirrorInterval))
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.MaxSessions < 1 {
		errors = append(errors, fmt.Sprintf("invalid max sessions %d: must be at least 1", c.MaxSessions))
	}
	if c.ReloadDebounce < 0 {
		errors = append(errors, fmt.Sprintf("invalid reload debounce %v: must not be negative", c.ReloadDebounce))
	} else if c.ReloadDebounce > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid reload debounce %v: must be at most 1 minute", c.ReloadDebounce))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
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

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
