// Package google reads transactions and the category tree from a Google
// Sheets spreadsheet. The source is read-only.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/source"
)

var _ source.Source = (*Client)(nil)

// Config selects the spreadsheet, the two sheets and the credentials.
type Config struct {
	SpreadsheetID     string
	TransactionsSheet string
	CategoriesSheet   string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
	Location        *time.Location
}

// valueReader is the single Sheets call the client needs.
type valueReader interface {
	Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type Client struct {
	reader valueReader
	cfg    Config
	logger *log.Logger
}

// New creates a client authenticated with service account credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(serviceReader{svc: svc}, cfg, logger), nil
}

func newClient(r valueReader, cfg Config, logger *log.Logger) *Client {
	if cfg.TransactionsSheet == "" {
		cfg.TransactionsSheet = "Transactions"
	}
	if cfg.CategoriesSheet == "" {
		cfg.CategoriesSheet = "Categories"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{reader: r, cfg: cfg, logger: logger.WithComponent(log.ComponentSheets)}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentials := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	if len(credentials) == 0 {
		path := strings.TrimSpace(cfg.CredentialsFile)
		if path == "" {
			path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		}
		if path == "" {
			return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_JSON, GOOGLE_CREDENTIALS_FILE or GOOGLE_APPLICATION_CREDENTIALS)")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentials = b
	}

	return gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
}

type serviceReader struct {
	svc *gsheet.Service
}

func (r serviceReader) Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := r.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// ListTransactions reads every row of the transactions sheet. The first
// row is the header; columns are matched by name.
func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rng := fmt.Sprintf("%s!A:I", c.cfg.TransactionsSheet)
	values, err := c.reader.Values(ctx, c.cfg.SpreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	txs, skipped, err := parseTransactions(values, c.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	if skipped > 0 {
		c.logger.WarnContext(ctx, "Skipped empty transaction rows", "sheet", c.cfg.TransactionsSheet, "rows", skipped)
	}
	return txs, nil
}

// ReadCategoryTree reads the categories sheet: id, name, color, parent_id.
func (c *Client) ReadCategoryTree(ctx context.Context) (core.CategoryTree, error) {
	rng := fmt.Sprintf("%s!A:D", c.cfg.CategoriesSheet)
	values, err := c.reader.Values(ctx, c.cfg.SpreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseCategories(values)
}
