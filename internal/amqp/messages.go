package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/core"

	"github.com/google/uuid"
)

// EventMessage is the wire form of a ledger event.
type EventMessage struct {
	ID          int64           `json:"id"`
	Kind        core.EventKind  `json:"kind"`
	Owner       string          `json:"owner"`
	CategoryID  uuid.UUID       `json:"categoryId"`
	Category    string          `json:"category"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// NewEventMessage wraps e for publishing, stamped with the current time.
func NewEventMessage(e core.Event) *EventMessage {
	return &EventMessage{
		ID:          e.ID,
		Kind:        e.Kind,
		Owner:       e.Owner,
		CategoryID:  e.CategoryID,
		Category:    e.Category,
		Payload:     e.Payload,
		OccurredAt:  e.OccurredAt,
		PublishedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Event converts the message back to a ledger event.
func (m *EventMessage) Event() core.Event {
	return core.Event{
		ID:         m.ID,
		Kind:       m.Kind,
		Owner:      m.Owner,
		CategoryID: m.CategoryID,
		Category:   m.Category,
		Payload:    m.Payload,
		OccurredAt: m.OccurredAt,
	}
}

// EventMessageFromJSON decodes a message and rejects one without id or kind.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == 0 || msg.Kind == "" {
		return nil, fmt.Errorf("event message missing id or kind")
	}
	return &msg, nil
}
