package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/ledger"
)

// EventMessage is the wire form of a ledger event. Amount, category and date
// are only set for created events.
type EventMessage struct {
	Type      ledger.EventType `json:"type"`
	ExpenseID string           `json:"expense_id,omitempty"`
	Amount    float64          `json:"amount,omitempty"`
	Category  string           `json:"category,omitempty"`
	Date      string           `json:"date,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewEventMessage converts a ledger event to its wire form.
func NewEventMessage(ev ledger.Event) *EventMessage {
	msg := &EventMessage{
		Type:      ev.Type,
		ExpenseID: ev.ExpenseID,
		Timestamp: ev.At,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if ev.Expense != nil {
		msg.ExpenseID = ev.Expense.ID
		msg.Amount = ev.Expense.Amount
		msg.Category = ev.Expense.Category.String()
		msg.Date = ev.Expense.Date
	}
	return msg
}

func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON decodes a message and rejects unknown event types.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case ledger.EventCreated, ledger.EventDeleted, ledger.EventCleared:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
