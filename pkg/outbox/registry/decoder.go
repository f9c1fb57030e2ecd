package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for an event type/version pair nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

// DecodeFunc turns the envelope data of one event version into a typed payload.
type DecodeFunc func(data json.RawMessage) (interface{}, error)

// DecoderRegistry holds versioned payload decoders. It is shared by the
// publisher, which validates rows before sending, and by consumers.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[string]DecodeFunc{}}
}

// NewOrderDecoders returns a registry that understands every order event
// version currently written by the API.
func NewOrderDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventOrderCreated, 1, typed[payloads.OrderCreatedEvent](enums.EventOrderCreated))
	return reg
}

func typed[T any](eventType enums.OutboxEventType) DecodeFunc {
	return func(data json.RawMessage) (interface{}, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return out, nil
	}
}

// Register installs fn for eventType at version, replacing any previous one.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, fn DecodeFunc) {
	r.mu.Lock()
	r.decoders[decoderKey(eventType, version)] = fn
	r.mu.Unlock()
}

// Has reports whether any version of eventType can be decoded.
func (r *DecoderRegistry) Has(eventType enums.OutboxEventType, version int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[decoderKey(eventType, version)]
	return ok
}

// Decode runs the decoder for eventType at version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (interface{}, error) {
	r.mu.RLock()
	fn, ok := r.decoders[decoderKey(eventType, version)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrNoDecoder, eventType, version)
	}
	return fn(data)
}

func decoderKey(eventType enums.OutboxEventType, version int) string {
	return fmt.Sprintf("%s@v%d", eventType, version)
}
