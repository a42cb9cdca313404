package source

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finscope/internal/core"
)

func TestBuildTree(t *testing.T) {
	rows := []FlatNode{
		{ID: "s-groc", Name: "Groceries", ParentID: "c-food"},
		{ID: "t-exp", Name: "EXPENSES"},
		{ID: "c-food", Name: "Food", Color: "#e53935", ParentID: "t-exp"},
		{ID: "s-rest", Name: "Restaurants", ParentID: "c-food"},
		{ID: "t-inc", Name: "INCOME"},
	}
	tree, err := BuildTree(rows)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if len(tree) != 2 || tree[0].ID != "t-exp" || tree[1].ID != "t-inc" {
		t.Fatalf("unexpected roots %+v", tree)
	}
	food := tree[0].Children[0]
	if food.Color != "#e53935" || len(food.Children) != 2 || food.Children[0].Name != "Groceries" {
		t.Fatalf("unexpected food node %+v", food)
	}

	back, err := BuildTree(Flatten(tree))
	if err != nil || len(back) != 2 || len(back[0].Children[0].Children) != 2 {
		t.Fatalf("flatten round trip failed: %+v %v", back, err)
	}
}

func TestBuildTreeErrors(t *testing.T) {
	tests := []struct {
		name string
		rows []FlatNode
		want error
	}{
		{"orphan", []FlatNode{{ID: "c", ParentID: "missing"}}, ErrOrphanNode},
		{"duplicate", []FlatNode{{ID: "a"}, {ID: "a"}}, core.ErrDuplicateNodeID},
		{"too deep", []FlatNode{{ID: "a"}, {ID: "b", ParentID: "a"}, {ID: "c", ParentID: "b"}, {ID: "d", ParentID: "c"}}, core.ErrTreeTooDeep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildTree(tt.rows); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skip("tzdata not available")
	}
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, rome)},
		{"15/01/2024", time.Date(2024, 1, 15, 0, 0, 0, 0, rome)},
		{"2024-01-15 08:30:00", time.Date(2024, 1, 15, 8, 30, 0, 0, rome)},
		{"2024-01-15T08:30:00Z", time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in, rome)
		if err != nil || !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseDate("yesterday", rome); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestRecordTransaction(t *testing.T) {
	r := Record{ID: "7", PostedAt: "2024-03-02", Amount: "-12,50", MainCategory: "expenses", Category: " Food ", Owner: "alice"}
	tx, err := r.Transaction(time.UTC)
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("-12.5")) || tx.MainCategory != core.Expenses || tx.Category != "Food" {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	bad := []Record{
		{ID: "1", PostedAt: "nope", Amount: "1", MainCategory: "INCOME"},
		{ID: "2", PostedAt: "2024-01-01", Amount: "1..2", MainCategory: "INCOME"},
		{ID: "3", PostedAt: "2024-01-01", Amount: "1", MainCategory: "SAVINGS"},
		{ID: "", PostedAt: "2024-01-01", Amount: "1", MainCategory: "INCOME"},
	}
	for _, b := range bad {
		if _, err := b.Transaction(time.UTC); err == nil {
			t.Errorf("expected an error for %+v", b)
		}
	}

	back, err := RecordOf(tx).Transaction(time.UTC)
	if err != nil || !back.Amount.Equal(tx.Amount) || !back.PostedAt.Equal(tx.PostedAt) {
		t.Fatalf("RecordOf round trip: %+v %v", back, err)
	}
}

func TestHeaderColumns(t *testing.T) {
	cols := HeaderColumns([]string{"ID", "Posted At", "Amount"})
	if err := cols.Require("id", "posted_at", "amount"); err != nil {
		t.Fatalf("Require: %v", err)
	}
	if err := cols.Require("owner"); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if got := cols.Get([]string{"1", " 2024-01-01 "}, "posted_at"); got != "2024-01-01" {
		t.Fatalf("Get = %q", got)
	}
	if got := cols.Get([]string{"1"}, "amount"); got != "" {
		t.Fatalf("short rows must yield empty cells, got %q", got)
	}
}
