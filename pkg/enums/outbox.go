package enums

import (
	"fmt"
	"strings"
)

// OutboxAggregateType is the aggregate an outbox row belongs to.
type OutboxAggregateType string

// AggregateOrder is currently the only aggregate that emits events.
const AggregateOrder OutboxAggregateType = "order"

// IsValid reports whether a is a known aggregate.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder
}

// OutboxEventType names a domain event carried through the outbox.
type OutboxEventType string

const (
	// EventOrderCreated is emitted once per persisted order.
	EventOrderCreated OutboxEventType = "order_created"
)

// IsValid reports whether e is an event the publisher knows how to route.
func (e OutboxEventType) IsValid() bool {
	return e == EventOrderCreated
}

// ParseOutboxEventType reads an event type from a Pub/Sub attribute.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(strings.TrimSpace(value))
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}
