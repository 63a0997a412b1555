package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "ledger/internal/log"
	"ledger/internal/summary"
)

// SnapshotSource is a precomputed dashboard kept current by a worker.
type SnapshotSource interface {
	// Snapshot returns the dashboard and when it was computed. A zero time
	// means nothing has been computed yet.
	Snapshot() (summary.Dashboard, time.Time)
	Processed() int64
}

// StatusServer exposes a worker's dashboard snapshot. It is read-only, so it
// carries no rate limiter.
type StatusServer struct {
	http.Server
	source    SnapshotSource
	logger    *applog.Logger
	startedAt time.Time

	shutdownOnce sync.Once
}

func NewStatusServer(addr string, source SnapshotSource, logger *applog.Logger) *StatusServer {
	if logger == nil {
		logger = applog.Default(applog.ComponentHTTP)
	}
	s := &StatusServer{
		source:    source,
		logger:    logger.WithComponent(applog.ComponentHTTP),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           applog.Middleware(s.logger)(withRequestID(withSecurityHeaders(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, updatedAt := s.source.Snapshot()
	body := map[string]any{
		"status":           "ok",
		"timestamp":        time.Now().Format(time.RFC3339),
		"uptime":           time.Since(s.startedAt).Round(time.Second).String(),
		"events_processed": s.source.Processed(),
	}
	if !updatedAt.IsZero() {
		body["snapshot_at"] = updatedAt.Format(time.RFC3339)
	}
	writeJSON(w, r, http.StatusOK, body)
}

type snapshotResponse struct {
	dashboardResponse
	UpdatedAt string `json:"updated_at"`
}

func (s *StatusServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, updatedAt := s.source.Snapshot()
	if updatedAt.IsZero() {
		writeError(w, r, http.StatusServiceUnavailable, "dashboard not computed yet")
		return
	}
	writeJSON(w, r, http.StatusOK, snapshotResponse{
		dashboardResponse: newDashboardResponse(d, updatedAt),
		UpdatedAt:         updatedAt.Format(time.RFC3339),
	})
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}
