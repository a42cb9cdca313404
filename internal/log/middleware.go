package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey is the type of the context keys set by this package.
type ContextKey string

// LoggerContextKey holds the request-scoped *Logger.
const LoggerContextKey ContextKey = "logger"

// Middleware stores logger in every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withLogger(r.Context(), logger)))
		})
	}
}

// FromContext returns the request logger, or one over slog.Default when the
// context carries none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: ComponentApp}
}

// ComponentMiddleware retags the request logger with component.
func ComponentMiddleware(component string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := FromContext(r.Context()).WithComponent(component)
			next.ServeHTTP(w, r.WithContext(withLogger(r.Context(), logger)))
		})
	}
}

// RequestIDMiddleware adds the id returned by extractRequestID to every
// record of the request logger.
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := FromContext(r.Context()).With(FieldRequestID, extractRequestID(r))
			next.ServeHTTP(w, r.WithContext(withLogger(r.Context(), logger)))
		})
	}
}

func withLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)

	sl.logger.WithComponent(ComponentHTTP).DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogDatasetLoaded logs a completed dataset (re)load
func (sl *StructuredLogger) LogDatasetLoaded(ctx context.Context, backend string, version uint64, transactions, categories int, durationMs int64) {
	fields := NewFields().
		WithDataset(version, transactions, categories).
		WithOperation(OpLoad).
		ToSlice()

	fields = append(fields, FieldBackend, backend, FieldDuration, durationMs)

	sl.logger.WithComponent(ComponentDataset).InfoContext(ctx, "Dataset loaded", fields...)
}

// LogRecompute logs a pipeline run of a timeline view
func (sl *StructuredLogger) LogRecompute(ctx context.Context, session, granularity string, zoomLevel int, mode string, seriesCount int) {
	fields := NewFields().
		WithView(session, granularity, zoomLevel, mode).
		WithOperation(OpRecompute).
		ToSlice()

	fields = append(fields, FieldSeries, seriesCount)

	sl.logger.WithComponent(ComponentTimeline).DebugContext(ctx, "Timeline recomputed", fields...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)

	sl.logger.WithComponent(component).ErrorContext(ctx, msg, allFields.ToSlice()...)
}