package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/summary"
)

const readyTimeout = 5 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{
			"active_clients": s.limiter.activeClients(),
			"rejected":       atomic.LoadInt64(&s.metrics.rateLimitHits),
		},
	}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			checks["store"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	writeJSON(w, r, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleListExpenses returns the history, newest first, optionally filtered
// by ?category=.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("category"))
	if filter == "" || strings.EqualFold(filter, "all") {
		filter = "All"
	} else {
		c, err := core.ParseCategory(filter)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, validationMessage(err))
			return
		}
		filter = c.String()
	}

	records := summary.SortByDateDesc(summary.FilterByCategory(s.repo.ListAll(r.Context()), filter))
	total := summary.CategoryTotals(records).Sum()

	writeJSON(w, r, http.StatusOK, expenseListResponse{
		Category: filter,
		Count:    len(records),
		Total:    summary.FormatCurrency(total),
		Expenses: records,
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	in, err := parseExpenseInput(w, r)
	if err != nil {
		logger.WarnContext(ctx, "Malformed create request", applog.FieldError, err)
		writeError(w, r, http.StatusBadRequest, errMalformedBody.Error())
		return
	}

	e, err := in.toExpense(core.NewID(), core.DateString(s.now()))
	if err != nil {
		logger.InfoContext(ctx, "Expense rejected",
			applog.FieldOperation, applog.OpValidate, applog.FieldError, err)
		writeError(w, r, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	if err := s.repo.Save(ctx, e); err != nil {
		s.writeStorageError(w, r, "save", err)
		return
	}
	w.Header().Set("Location", "/api/expenses/"+e.ID)
	writeJSON(w, r, http.StatusCreated, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "missing expense id")
		return
	}
	if err := s.repo.DeleteByID(r.Context(), id); err != nil {
		s.writeStorageError(w, r, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearExpenses(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.ClearAll(r.Context()); err != nil {
		s.writeStorageError(w, r, "clear", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	d := summary.Build(s.repo.ListAll(r.Context()), now)
	writeJSON(w, r, http.StatusOK, newDashboardResponse(d, now))
}

// writeStorageError maps repository write failures to 503. Nothing was
// persisted, so the client may retry.
func (s *Server) writeStorageError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	applog.FromContext(ctx).ErrorContext(ctx, "Ledger write failed", applog.FieldOperation, op, applog.FieldError, err)

	var werr *ledger.StorageWriteError
	switch {
	case errors.As(err, &werr):
		writeError(w, r, http.StatusServiceUnavailable, "storage unavailable, nothing was saved")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled before the ledger was updated")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
