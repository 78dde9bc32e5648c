package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventCategoryCreated      EventKind = "category.created"
	EventCategoryRenamed      EventKind = "category.renamed"
	EventCategoryDeleted      EventKind = "category.deleted"
	EventTransactionsAppended EventKind = "transactions.appended"
)

type (
	EventKind string

	// Event is a ledger mutation recorded in the same store transaction as the
	// mutation itself, then relayed to the message broker.
	Event struct {
		ID         int64           `json:"id"`
		Kind       EventKind       `json:"kind"`
		Owner      string          `json:"owner"`
		CategoryID uuid.UUID       `json:"categoryId"`
		Category   string          `json:"category"`
		Payload    json.RawMessage `json:"payload,omitempty"`
		OccurredAt time.Time       `json:"occurredAt"`
		Attempts   int             `json:"-"`
	}

	RenamePayload struct {
		From string `json:"from"`
		To   string `json:"to"`
	}

	AppendPayload struct {
		Incomes  []Income  `json:"incomes"`
		Outcomes []Outcome `json:"outcomes"`
	}
)

// NewEvent builds an unsaved event. A payload that fails to marshal is dropped.
func NewEvent(kind EventKind, c Category, payload any, now time.Time) Event {
	e := Event{
		Kind:       kind,
		Owner:      c.Owner,
		CategoryID: c.ID,
		Category:   c.Name,
		OccurredAt: now.UTC(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			e.Payload = b
		}
	}
	return e
}
