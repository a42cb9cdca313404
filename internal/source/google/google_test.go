package google

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finscope/internal/core"
	"finscope/internal/source"
)

type fakeReader struct {
	sheets map[string][][]interface{}
	err    error
	ranges []string
}

func (f *fakeReader) Values(_ context.Context, id, rng string) ([][]interface{}, error) {
	f.ranges = append(f.ranges, rng)
	if f.err != nil {
		return nil, f.err
	}
	return f.sheets[strings.SplitN(rng, "!", 2)[0]], nil
}

func sheetData() map[string][][]interface{} {
	return map[string][][]interface{}{
		"Transactions": {
			{"ID", "Posted At", "Amount", "Main Category", "Category", "Subcategory", "Owner", "Account Type", "Description"},
			{"1", "15/01/2024", "-50,00", "EXPENSES", "Food", "Groceries", "alice", "checking", "market"},
			{"", "", "", "", "", ""},
			{"2", "2024-01-05", 2000, "income", "Salary"},
		},
		"Categories": {
			{"id", "name", "color", "parent_id"},
			{"t-exp", "EXPENSES", "", ""},
			{"c-food", "Food", "#e53935", "t-exp"},
			{"s-groc", "Groceries", "", "c-food"},
		},
	}
}

func TestListTransactions(t *testing.T) {
	r := &fakeReader{sheets: sheetData()}
	c := newClient(r, Config{SpreadsheetID: "sheet"}, nil)

	txs, err := c.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if !txs[0].Amount.Equal(decimal.NewFromInt(-50)) || txs[0].AccountType != "checking" || txs[0].PostedAt.Day() != 15 {
		t.Fatalf("unexpected first transaction %+v", txs[0])
	}
	if !txs[1].Amount.Equal(decimal.NewFromInt(2000)) || txs[1].MainCategory != core.Income || txs[1].Owner != "" {
		t.Fatalf("unexpected second transaction %+v", txs[1])
	}
	if r.ranges[0] != "Transactions!A:I" {
		t.Fatalf("unexpected range %q", r.ranges[0])
	}
}

func TestListTransactionsErrors(t *testing.T) {
	data := sheetData()
	data["Transactions"] = [][]interface{}{{"id", "amount"}}
	c := newClient(&fakeReader{sheets: data}, Config{SpreadsheetID: "sheet"}, nil)
	if _, err := c.ListTransactions(context.Background()); !errors.Is(err, source.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}

	data["Transactions"] = [][]interface{}{
		{"id", "posted_at", "amount", "main_category", "category"},
		{"1", "2024-01-01", "12..0", "EXPENSES", "Food"},
	}
	_, err := c.ListTransactions(context.Background())
	if !errors.Is(err, core.ErrInvalidAmount) || !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("expected a row-numbered amount error, got %v", err)
	}

	c = newClient(&fakeReader{err: errors.New("quota")}, Config{SpreadsheetID: "sheet"}, nil)
	if _, err := c.ListTransactions(context.Background()); err == nil {
		t.Fatalf("expected the API error to surface")
	}
}

func TestReadCategoryTree(t *testing.T) {
	c := newClient(&fakeReader{sheets: sheetData()}, Config{SpreadsheetID: "sheet"}, nil)
	tree, err := c.ReadCategoryTree(context.Background())
	if err != nil {
		t.Fatalf("ReadCategoryTree: %v", err)
	}
	sub, parent, ok := tree.Subcategory(core.Expenses, "Food", "Groceries")
	if !ok || sub.ID != "s-groc" || parent.Color != "#e53935" {
		t.Fatalf("unexpected tree %+v", tree)
	}
}

func TestEmptySheets(t *testing.T) {
	c := newClient(&fakeReader{sheets: map[string][][]interface{}{}}, Config{SpreadsheetID: "sheet", Location: time.UTC}, nil)
	txs, err := c.ListTransactions(context.Background())
	if err != nil || len(txs) != 0 {
		t.Fatalf("empty sheet must yield no transactions, got %v %v", txs, err)
	}
	tree, err := c.ReadCategoryTree(context.Background())
	if err != nil || len(tree) != 0 {
		t.Fatalf("empty sheet must yield an empty tree, got %v %v", tree, err)
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); err == nil {
		t.Fatalf("expected an error without spreadsheet id")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "x"}, nil)
	if err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Fatalf("expected a credentials error, got %v", err)
	}
}
