package backend

import (
	"context"
	"time"

	"finscope/internal/source"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the source instance and optional cleanup function
type BackendResult struct {
	Source  source.Source
	Cleanup CleanupFunc
}

// Factory creates sources based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type     BackendType
	Location *time.Location

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets specific
	GoogleSpreadsheetID       string
	GoogleSheetName           string
	GoogleCategoriesSheetName string
	GoogleCredentialsFile     string
	GoogleCredentialsJSON     string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
