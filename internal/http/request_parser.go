package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"ledger/internal/core"
)

// maxBodyBytes bounds a create request body.
const maxBodyBytes = 16 << 10

var errMalformedBody = errors.New("malformed request body")

// expenseInput is the raw create request before validation. Amount is kept
// as text so that JSON numbers and form values share one parser.
type expenseInput struct {
	Amount   string
	Category string
	Date     string
	Note     string
}

// jsonExpense accepts amount as a JSON number or string.
type jsonExpense struct {
	Amount   json.RawMessage `json:"amount"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
	Note     string          `json:"note"`
}

// parseExpenseInput reads a JSON or form-encoded create request.
func parseExpenseInput(w http.ResponseWriter, r *http.Request) (expenseInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return parseJSONExpense(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return expenseInput{}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return expenseInput{
		Amount:   r.PostForm.Get("amount"),
		Category: r.PostForm.Get("category"),
		Date:     r.PostForm.Get("date"),
		Note:     r.PostForm.Get("note"),
	}, nil
}

func parseJSONExpense(body io.Reader) (expenseInput, error) {
	var in jsonExpense
	dec := json.NewDecoder(body)
	if err := dec.Decode(&in); err != nil {
		return expenseInput{}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	amount := strings.TrimSpace(string(in.Amount))
	if strings.HasPrefix(amount, `"`) {
		if err := json.Unmarshal(in.Amount, &amount); err != nil {
			return expenseInput{}, fmt.Errorf("%w: %v", errMalformedBody, err)
		}
	} else if amount == "null" {
		amount = ""
	}

	return expenseInput{
		Amount:   amount,
		Category: in.Category,
		Date:     in.Date,
		Note:     in.Note,
	}, nil
}

// toExpense validates the input and builds a new record. An empty date
// defaults to today.
func (in expenseInput) toExpense(id, today string) (core.Expense, error) {
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	category, err := core.ParseCategory(in.Category)
	if err != nil {
		return core.Expense{}, err
	}
	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = today
	}

	e := core.Expense{
		ID:       id,
		Amount:   amount,
		Category: category,
		Date:     date,
		Note:     sanitizeInput(in.Note),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// validationMessage maps validation errors to user-facing messages.
func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount must be a positive number with up to two decimals"
	case errors.Is(err, core.ErrInvalidCategory):
		return "category must be one of " + categoryList()
	case errors.Is(err, core.ErrInvalidDate):
		return "date must be formatted as YYYY-MM-DD"
	case errors.Is(err, core.ErrNoteTooLong):
		return err.Error()
	default:
		return "invalid expense"
	}
}

func categoryList() string {
	cats := core.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = strconv.Quote(c.String())
	}
	return strings.Join(names, ", ")
}
