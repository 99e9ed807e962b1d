package eventing

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope wraps an outbound real-time event with routing metadata.
// Rooms lists the broadcast groups the event is intended for; an event
// is never delivered outside its rooms.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Origin     string          `json:"origin,omitempty"`
	Rooms      []string        `json:"rooms"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope constructs an envelope from an event payload.
func NewEnvelope(kind string, rooms []string, payload any) (Envelope, error) {
	if kind == "" {
		return Envelope{}, errors.New("eventing: empty kind")
	}
	if len(rooms) == 0 {
		return Envelope{}, errors.New("eventing: no target rooms")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:    NewEventID(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Rooms:      append([]string(nil), rooms...),
		Payload:    body,
	}, nil
}
