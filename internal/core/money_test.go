package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"-50", "-50", true},
		{"+2000", "2000", true},
		{" -20.50 ", "-20.5", true},
		{"0", "0", true},
		{"--1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,234.56", "", false},
		{"-", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			want := decimal.RequireFromString(tc.out)
			if err != nil || !got.Equal(want) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, want, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestCentsRoundTrip(t *testing.T) {
	cases := []struct {
		in    string
		cents int64
	}{
		{"12.34", 1234},
		{"-12.34", -1234},
		{"0.005", 1},
		{"-0.005", -1},
	}
	for _, tc := range cases {
		if got := Cents(decimal.RequireFromString(tc.in)); got != tc.cents {
			t.Errorf("Cents(%s) = %d, want %d", tc.in, got, tc.cents)
		}
	}
	if !AmountFromCents(-1234).Equal(decimal.RequireFromString("-12.34")) {
		t.Fatalf("AmountFromCents mismatch")
	}
}
