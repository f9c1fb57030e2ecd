package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
)

// ErrUnroutable means no topic is configured for the row's event type. The row
// itself may be fine, so it is dead-lettered as replayable.
var ErrUnroutable = errors.New("no topic registered for event type")

// EventDescriptor routes one event type to its topic.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation and is ready to send.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry validates outbox rows and picks their topic.
type EventRegistry struct {
	routes   map[enums.OutboxEventType]EventDescriptor
	decoders *DecoderRegistry
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err so the dispatcher stops retrying.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry routes order events to the configured orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	return &EventRegistry{
		routes: map[enums.OutboxEventType]EventDescriptor{
			enums.EventOrderCreated: {
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				Topic:         cfg.OrdersTopic,
			},
		},
		decoders: NewOrderDecoders(),
	}, nil
}

// Resolve checks the row against its route and decodes the payload with the
// decoder for the envelope version.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnroutable, event.EventType)
	}
	switch {
	case route.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("event %s belongs to %s, row says %s", event.EventType, route.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("aggregate id is empty"))
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("%s envelope has no data", event.EventType))
	}
	version := env.Version
	if version == 0 {
		version = 1
	}
	payload, err := r.decoders.Decode(event.EventType, version, data)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Descriptor: route, Envelope: env, Payload: payload}, nil
}
