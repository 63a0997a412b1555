// Package http serves the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

type Server struct {
	http.Server
	repo      ledger.Repository
	logger    *applog.Logger
	now       func() time.Time
	ready     func(ctx context.Context) error
	limiter   *rateLimiter
	metrics   securityMetrics
	startedAt time.Time

	shutdownOnce sync.Once
}

type Option func(*Server)

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l.WithComponent(applog.ComponentHTTP)
		}
	}
}

// WithClock sets the clock used for default dates and "today".
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReadinessCheck sets the check behind /readyz.
func WithReadinessCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithRateLimit sets the allowed mutating requests per client IP per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.limiter = newRateLimiter(perMinute) }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, repo ledger.Repository, opts ...Option) *Server {
	s := &Server{
		repo:      repo,
		logger:    applog.Default(applog.ComponentHTTP),
		now:       time.Now,
		limiter:   newRateLimiter(defaultRateLimit),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses", s.handleClearExpenses)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           applog.Middleware(s.logger)(withRequestID(s.withSecurity(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.limiter.start()
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// withRequestID assigns every request an id, echoes it in X-Request-ID and
// tags the context logger with it.
func withRequestID(next http.Handler) http.Handler {
	tag := applog.RequestIDMiddleware(requestIDFrom)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := generateRequestID()
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
		tag(next).ServeHTTP(w, r)
	})
}

// withSecurity sets security headers, rate limits mutating requests and logs
// every request.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)
		logger := applog.FromContext(ctx)

		setSecurityHeaders(w.Header())

		if isSuspicious(r, &s.metrics) {
			logger.WarnContext(ctx, "Suspicious request",
				applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		if r.Method != http.MethodGet && r.Method != http.MethodHead && !s.limiter.allow(clientIP) {
			atomic.AddInt64(&s.metrics.rateLimitHits, 1)
			logger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			rw.Header().Set("Retry-After", strconv.Itoa(int(rateWindow.Seconds())))
			writeError(rw, r, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		} else {
			next.ServeHTTP(rw, r)
		}

		applog.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
