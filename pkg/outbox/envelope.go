package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the envelope version written for new events.
const CurrentVersion = 1

// ActorRef is the shopper whose action produced the event.
type ActorRef struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

// PayloadEnvelope is what lands in outbox_events.payload and, unchanged, in
// the Pub/Sub message body. Data is decoded per (event type, Version).
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(id uuid.UUID, event DomainEvent) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    id.String(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = CurrentVersion
	}
	return env, nil
}
