package core

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar date form every record carries.
const DateLayout = "2006-01-02"

const (
	Food   Category = "Food"
	Travel Category = "Travel"
	Bills  Category = "Bills"
	Misc   Category = "Misc"
)

type (
	Category string

	// Expense is one user-entered spending event. Records are never mutated
	// after they are persisted.
	Expense struct {
		ID       string   `json:"id"`
		Amount   float64  `json:"amount"`
		Category Category `json:"category"`
		Date     string   `json:"date"`
		Note     string   `json:"note,omitempty"`
	}
)

var (
	ErrEmptyID         = errors.New("empty id")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDate     = errors.New("invalid date")
	ErrNoteTooLong     = errors.New("note too long (max 200 characters)")
)

var categories = []Category{Food, Travel, Bills, Misc}

var categoryColors = map[Category]string{
	Food:   "#ef4444",
	Travel: "#3b82f6",
	Bills:  "#f59e0b",
	Misc:   "#8b5cf6",
}

// Categories returns the closed category set in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Valid reports whether c belongs to the closed set.
func (c Category) Valid() bool {
	_, ok := categoryColors[c]
	return ok
}

// Color returns the chart color of the category, or "" for unknown values.
func (c Category) Color() string {
	return categoryColors[c]
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory matches s against the closed set, ignoring case and surrounding spaces.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

// DateString renders t as a YYYY-MM-DD calendar date in t's own location.
func DateString(t time.Time) string {
	return t.Format(DateLayout)
}

// NewID returns a time-ordered unique record id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	if len(e.Date) != len(DateLayout) {
		return ErrInvalidDate
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return ErrInvalidDate
	}
	if len(e.Note) > 200 {
		return ErrNoteTooLong
	}
	return nil
}
