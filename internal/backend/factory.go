// Package backend builds the configured transaction source.
package backend

import (
	"context"
	"fmt"

	"finscope/internal/log"
	"finscope/internal/source/google"
	"finscope/internal/source/memory"
	"finscope/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, config.Location, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Source:  repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:     config.GoogleSpreadsheetID,
		TransactionsSheet: config.GoogleSheetName,
		CategoriesSheet:   config.GoogleCategoriesSheetName,
		CredentialsJSON:   config.GoogleCredentialsJSON,
		CredentialsFile:   config.GoogleCredentialsFile,
		Location:          config.Location,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &BackendResult{Source: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(dataDir, config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory backend from %s: %w", dataDir, err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{Source: store}, nil
}
