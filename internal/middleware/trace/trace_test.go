package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finscope/internal/log"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromRequest(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.HasPrefix(seen, "req_") || rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("expected generated id, got %q / %q", seen, rec.Header().Get(HeaderRequestID))
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "abc-123" {
		t.Fatalf("incoming id must be reused, got %q", seen)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, "bad id\n")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen == "bad id\n" {
		t.Fatal("malformed id must be replaced")
	}
}

func TestAccessLogCapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Format: "json", Component: "test", Output: &buf})

	h := RequestID(log.Middleware(logger)(log.RequestIDMiddleware(FromRequest)(AccessLog(func(*http.Request) string { return "1.2.3.4" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})))))

	r := httptest.NewRequest(http.MethodGet, "/api/timeline", nil)
	r.Header.Set(HeaderRequestID, "trace-1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	out := buf.String()
	for _, want := range []string{`"status_code":418`, `"request_id":"trace-1"`, `"client_ip":"1.2.3.4"`, "HTTP request completed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
}
