package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
	"github.com/google/uuid"
)

// Store keeps checkout sessions between requests.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

func sessionNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
}

// MemoryStore keeps sessions in process. Entries expire after ttl of inactivity.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[uuid.UUID]memoryEntry
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemoryStore builds an in-process store. A non-positive ttl never expires.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: map[uuid.UUID]memoryEntry{}}
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, sessionNotFound()
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.sessions, id)
		return nil, sessionNotFound()
	}
	return entry.session.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{session: s.clone()}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.sessions[s.ID] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type redisSessions interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	CheckoutSessionKey(sessionID string) string
}

// RedisStore keeps sessions as JSON under sf:checkout:session:<id> with a sliding TTL.
type RedisStore struct {
	client redisSessions
	ttl    time.Duration
}

// NewRedisStore builds a Redis backed store.
func NewRedisStore(client redisSessions, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (r *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	raw, err := r.client.Get(ctx, r.client.CheckoutSessionKey(id.String()))
	if err != nil {
		if redis.IsNil(err) {
			return nil, sessionNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode checkout session")
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session required")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout session")
	}
	if err := r.client.Set(ctx, r.client.CheckoutSessionKey(s.ID.String()), string(payload), r.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, r.client.CheckoutSessionKey(id.String())); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete checkout session")
	}
	return nil
}
