package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestJSONFormatCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentApp, Output: &buf})
	l.WithComponent(ComponentTimeline).Info("hello", FieldSeries, 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a JSON record, got %q: %v", buf.String(), err)
	}
	if rec[FieldComponent] != ComponentTimeline || rec[FieldSeries] != float64(3) {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Component: ComponentHTTP, Output: &buf})

	h := Middleware(base)(RequestIDMiddleware(func(r *http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		}),
	))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Fatalf("request id missing from %q", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != ComponentApp {
		t.Fatalf("expected the default logger")
	}
}

func TestStructuredLoggerError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Component: ComponentApp, Output: &buf}))
	sl.LogError(context.Background(), "reload failed", errors.New("boom"), ComponentDataset, OpReload, nil)

	out := buf.String()
	for _, want := range []string{"error=boom", "operation=reload", "component=dataset"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
