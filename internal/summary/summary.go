// Package summary derives totals and dashboard figures from ledger records.
// Every function is pure and safe to call on any snapshot of the ledger.
package summary

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Totals maps every category of the closed set to the sum of its amounts.
type Totals map[core.Category]float64

// Share is one pie-chart segment. Percent has one decimal place.
type Share struct {
	Category core.Category `json:"category"`
	Amount   float64       `json:"amount"`
	Percent  float64       `json:"percent"`
	Angle    float64       `json:"angle"`
	Color    string        `json:"color"`
}

type Dashboard struct {
	Today      float64 `json:"today"`
	Month      float64 `json:"month"`
	Categories Totals  `json:"categories"`
	Shares     []Share `json:"shares"`
	Count      int     `json:"count"`
}

// calendarLayout accepts both padded and unpadded month and day.
const calendarLayout = "2006-1-2"

// TodayTotal sums the records dated exactly today (YYYY-MM-DD).
func TodayTotal(records []core.Expense, today string) float64 {
	sum := decimal.Zero
	for _, r := range records {
		if r.Date == today {
			sum = sum.Add(decimal.NewFromFloat(r.Amount))
		}
	}
	return sum.InexactFloat64()
}

// MonthTotal sums the records whose date falls in the calendar month of ref.
// Records with unparseable dates are skipped.
func MonthTotal(records []core.Expense, ref time.Time) float64 {
	year, month := ref.Year(), ref.Month()
	sum := decimal.Zero
	for _, r := range records {
		d, err := time.Parse(calendarLayout, r.Date)
		if err != nil {
			continue
		}
		if d.Year() == year && d.Month() == month {
			sum = sum.Add(decimal.NewFromFloat(r.Amount))
		}
	}
	return sum.InexactFloat64()
}

// CategoryTotals groups amounts by category. All four categories are present,
// zero when unused; records outside the closed set are ignored.
func CategoryTotals(records []core.Expense) Totals {
	sums := make(map[core.Category]decimal.Decimal, len(core.Categories()))
	for _, c := range core.Categories() {
		sums[c] = decimal.Zero
	}
	for _, r := range records {
		if s, ok := sums[r.Category]; ok {
			sums[r.Category] = s.Add(decimal.NewFromFloat(r.Amount))
		}
	}
	out := make(Totals, len(sums))
	for c, s := range sums {
		out[c] = s.InexactFloat64()
	}
	return out
}

// Sum returns the total across all categories.
func (t Totals) Sum() float64 {
	sum := decimal.Zero
	for _, c := range core.Categories() {
		sum = sum.Add(decimal.NewFromFloat(t[c]))
	}
	return sum.InexactFloat64()
}

// FormatCurrency renders amount as "$" followed by exactly two decimals.
// Rounding works on the exact binary value, half away from zero, so 1.005
// (stored just below 1.005) renders as $1.00. Negative amounts keep their
// sign even when they round to zero.
func FormatCurrency(amount float64) string {
	switch {
	case math.IsNaN(amount):
		return "$NaN"
	case math.IsInf(amount, 1):
		return "$Infinity"
	case math.IsInf(amount, -1):
		return "$-Infinity"
	}
	exact, err := decimal.NewFromString(strconv.FormatFloat(amount, 'f', exactDigits, 64))
	if err != nil {
		return "$" + strconv.FormatFloat(amount, 'f', 2, 64)
	}
	out := exact.StringFixed(2)
	if amount < 0 && !strings.HasPrefix(out, "-") {
		out = "-" + out
	}
	return "$" + out
}

// exactDigits keeps enough of a float64's binary expansion that no value
// short of an exact half-cent tie rounds like one.
const exactDigits = 30

// Shares splits totals into pie segments in category order. Categories with
// a zero total are left out; a zero overall total yields no segments.
func Shares(totals Totals) []Share {
	total := totals.Sum()
	if total <= 0 {
		return []Share{}
	}
	shares := make([]Share, 0, len(totals))
	for _, c := range core.Categories() {
		amount := totals[c]
		if amount == 0 {
			continue
		}
		fraction := amount / total
		shares = append(shares, Share{
			Category: c,
			Amount:   amount,
			Percent:  round(fraction*100, 1),
			Angle:    round(fraction*360, 2),
			Color:    c.Color(),
		})
	}
	return shares
}

// FilterByCategory keeps the records of one category. "All" or an empty
// filter keeps everything.
func FilterByCategory(records []core.Expense, filter string) []core.Expense {
	if filter == "" || filter == "All" {
		return append([]core.Expense{}, records...)
	}
	out := make([]core.Expense, 0, len(records))
	for _, r := range records {
		if string(r.Category) == filter {
			out = append(out, r)
		}
	}
	return out
}

// SortByDateDesc returns a copy of records, newest date first. Records on
// the same date keep their ledger order.
func SortByDateDesc(records []core.Expense) []core.Expense {
	out := append([]core.Expense{}, records...)
	sort.SliceStable(out, func(i, j int) bool {
		return dateKey(out[i].Date) > dateKey(out[j].Date)
	})
	return out
}

// Build computes the dashboard for records as seen at now.
func Build(records []core.Expense, now time.Time) Dashboard {
	totals := CategoryTotals(records)
	return Dashboard{
		Today:      TodayTotal(records, core.DateString(now)),
		Month:      MonthTotal(records, now),
		Categories: totals,
		Shares:     Shares(totals),
		Count:      len(records),
	}
}

// dateKey normalizes a date for ordering; unparseable dates sort last.
func dateKey(s string) string {
	d, err := time.Parse(calendarLayout, s)
	if err != nil {
		return ""
	}
	return d.Format(core.DateLayout)
}

func round(f float64, places int32) float64 {
	return decimal.NewFromFloat(f).Round(places).InexactFloat64()
}
