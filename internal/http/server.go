// Package http serves timeline views over a JSON API. Every browser session
// gets its own View, kept in a bounded cache and reloaded whenever the
// shared dataset changes.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"finscope/internal/cache"
	"finscope/internal/dataset"
	"finscope/internal/log"
	"finscope/internal/middleware/ratelimit"
	"finscope/internal/middleware/security"
	"finscope/internal/middleware/trace"
	"finscope/internal/timeline"
)

// SessionCookie identifies a browser's View.
const SessionCookie = "finscope_view"

// Store is the dataset access the server needs.
type Store interface {
	Current() (dataset.Dataset, error)
	Loaded() bool
	Subscribe(fn func(dataset.Dataset))
	Reload(ctx context.Context) (dataset.Dataset, error)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Options tune the server. Zero values fall back to defaults.
type Options struct {
	SessionTTL      time.Duration
	MaxSessions     int
	CleanupInterval time.Duration
	RateLimit       int
	TrustedProxies  []string
	Location        *time.Location
	Checks          []Check
	Now             func() time.Time
}

type Server struct {
	http.Server
	store    Store
	logger   *log.Logger
	slog     *log.StructuredLogger
	sessions *cache.LRUCache[*timeline.View]
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	clientIP *security.ClientIP
	loc      *time.Location
	checks   []Check
	now      func() time.Time
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store Store, logger *log.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 256
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	clientIP, err := security.NewClientIP(opts.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	httpLogger := logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		store:    store,
		logger:   httpLogger,
		slog:     log.NewStructuredLogger(httpLogger),
		sessions: cache.NewLRUCache[*timeline.View](opts.MaxSessions, opts.SessionTTL),
		caches:   cache.NewManager(logger),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimit}),
		clientIP: clientIP,
		loc:      opts.Location,
		checks:   opts.Checks,
		now:      opts.Now,
		started:  opts.Now(),
	}

	s.caches.Register(s.sessions)
	s.caches.StartCleanup(opts.CleanupInterval)
	store.Subscribe(s.broadcast)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.clientIP.Extract, s.handleRateLimited)(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = trace.AccessLog(s.clientIP.Extract)(handler)
	handler = log.RequestIDMiddleware(trace.FromRequest)(handler)
	handler = log.Middleware(httpLogger)(handler)
	handler = trace.RequestID(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/timeline", s.withView(s.handleTimeline))
	mux.HandleFunc("GET /api/categories", s.withView(s.handleCategories))
	mux.HandleFunc("GET /api/breakdown", s.withView(s.handleBreakdown))
	mux.HandleFunc("GET /api/summary", s.withView(s.handleSummary))

	mux.HandleFunc("POST /api/visibility/{kind}/{id}", s.withView(s.handleToggle))
	mux.HandleFunc("POST /api/visibility/{action}", s.withView(s.handleVisibilityAll))

	mux.HandleFunc("POST /api/breakdown/mode", s.withView(s.handleBreakdownMode))
	mux.HandleFunc("POST /api/breakdown/owners", s.withView(s.handleBreakdownOwners))
	mux.HandleFunc("POST /api/breakdown/accounts", s.withView(s.handleBreakdownAccounts))

	mux.HandleFunc("POST /api/zoom/{direction}", s.withView(s.handleZoom))
	mux.HandleFunc("POST /api/granularity", s.withView(s.handleGranularity))
	mux.HandleFunc("POST /api/window", s.withView(s.handleWindow))

	mux.HandleFunc("GET /api/hover", s.withView(s.handleHover))
	mux.HandleFunc("POST /api/pin", s.withView(s.handlePin))
	mux.HandleFunc("POST /api/unpin", s.withView(s.handleUnpin))

	mux.HandleFunc("POST /api/reload", s.handleReload)
}

type viewHandler func(w http.ResponseWriter, r *http.Request, v *timeline.View)

// withView resolves the caller's View from the session cookie, creating a
// session when the cookie is missing or expired.
func (s *Server) withView(next viewHandler) http.HandlerFunc {
	h := log.ComponentMiddleware(log.ComponentTimeline)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next(w, r, s.view(w, r))
	}))
	return h.ServeHTTP
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) *timeline.View {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if v, ok := s.sessions.Get(c.Value); ok {
			s.sessions.Touch(c.Value)
			return v
		}
	}

	id := newSessionID()
	v := timeline.New(
		timeline.WithLogger(s.logger),
		timeline.WithSession(id),
		timeline.WithClock(s.now),
	)
	// Register before loading so a concurrent broadcast cannot skip it.
	s.sessions.Set(id, v)
	if ds, err := s.store.Current(); err == nil {
		v.Load(ds)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	log.FromContext(r.Context()).DebugContext(r.Context(), "Session created", log.FieldSession, id)
	return v
}

// broadcast hands a freshly loaded dataset to every live session.
func (s *Server) broadcast(ds dataset.Dataset) {
	views := s.sessions.Values()
	for _, v := range views {
		v.Load(ds)
	}
	s.logger.Debug("Dataset broadcast to sessions",
		log.FieldDatasetVersion, ds.Version,
		"sessions", len(views))
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	return s.sessions.Size()
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clientIP.Extract(r),
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// Shutdown stops background cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		if errors.Is(shutdownErr, http.ErrServerClosed) {
			shutdownErr = nil
		}
	})
	return shutdownErr
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("s_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
