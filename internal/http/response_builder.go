package http

import (
	"encoding/json"
	"net/http"
	"time"

	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/summary"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type expenseListResponse struct {
	Category string         `json:"category"`
	Count    int            `json:"count"`
	Total    string         `json:"total"`
	Expenses []core.Expense `json:"expenses"`
}

type categoryTotal struct {
	Category  core.Category `json:"category"`
	Amount    float64       `json:"amount"`
	Formatted string        `json:"formatted"`
	Color     string        `json:"color"`
}

type dashboardResponse struct {
	Date           string          `json:"date"`
	Today          float64         `json:"today"`
	TodayFormatted string          `json:"today_formatted"`
	Month          float64         `json:"month"`
	MonthFormatted string          `json:"month_formatted"`
	Categories     []categoryTotal `json:"categories"`
	Shares         []summary.Share `json:"shares"`
	Count          int             `json:"count"`
}

func newDashboardResponse(d summary.Dashboard, now time.Time) dashboardResponse {
	resp := dashboardResponse{
		Date:           core.DateString(now),
		Today:          d.Today,
		TodayFormatted: summary.FormatCurrency(d.Today),
		Month:          d.Month,
		MonthFormatted: summary.FormatCurrency(d.Month),
		Shares:         d.Shares,
		Count:          d.Count,
	}
	for _, c := range core.Categories() {
		amount := d.Categories[c]
		resp.Categories = append(resp.Categories, categoryTotal{
			Category:  c,
			Amount:    amount,
			Formatted: summary.FormatCurrency(amount),
			Color:     c.Color(),
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", applog.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg, RequestID: requestIDFrom(r)})
}
