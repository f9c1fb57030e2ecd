// Package idempotency records which outbox events a consumer has already
// taken, so redelivered Pub/Sub messages are recognised.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

// Store is the subset of the redis client the manager needs.
type Store interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// State is what a consumer knows about an event.
type State string

const (
	StateUnclaimed State = "unclaimed"
	// StateInFlight means a delivery claimed the event but has not finished.
	StateInFlight State = "in_flight"
	StateDone     State = "done"
)

const (
	claimedMarker = "claimed"
	donePrefix    = "done:"
)

// Manager tracks claims in Redis under
// sf:idempotency:evt:processed:<consumer>:<event_id>.
//
// At-most-once consumers claim before acting and never release on failure;
// Finish only records the outcome.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim reports whether this call took the event for consumer. False means
// another delivery got there first.
func (m *Manager) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	ok, err := m.store.SetNX(ctx, key, claimedMarker, m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Finish records how a claimed event ended. The key keeps its claim TTL
// window from now on.
func (m *Manager) Finish(ctx context.Context, consumer, eventID, outcome string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "ok"
	}
	if err := m.store.Set(ctx, key, donePrefix+outcome, m.ttl); err != nil {
		return fmt.Errorf("finish %s: %w", key, err)
	}
	return nil
}

// State looks up the claim. For StateDone the recorded outcome is returned too.
func (m *Manager) State(ctx context.Context, consumer, eventID string) (State, string, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return "", "", err
	}
	value, err := m.store.Get(ctx, key)
	switch {
	case redis.IsNil(err):
		return StateUnclaimed, "", nil
	case err != nil:
		return "", "", fmt.Errorf("state %s: %w", key, err)
	}
	if outcome, ok := strings.CutPrefix(value, donePrefix); ok {
		return StateDone, outcome, nil
	}
	return StateInFlight, "", nil
}

// Release drops a claim so the event can be handled again.
func (m *Manager) Release(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	id, err := uuid.Parse(eventID)
	if err != nil || id == uuid.Nil {
		return "", fmt.Errorf("invalid event id %q", eventID)
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, id.String()), nil
}
