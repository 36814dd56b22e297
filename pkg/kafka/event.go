package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every envelope. Bump it when the envelope
// layout changes, not when a payload does.
const SchemaVersion = 1

// Aggregate names the entity an event is about. Its ID doubles as the
// partition key.
type Aggregate struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Event is the JSON envelope written to every topic.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	Aggregate     Aggregate       `json:"aggregate"`
	Source        string          `json:"source"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEvent encodes payload and wraps it in a fresh envelope.
func NewEvent(eventType string, agg Aggregate, source string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Version:    SchemaVersion,
		Aggregate:  agg,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// WithCorrelationID tags the event with the request that caused it.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}
