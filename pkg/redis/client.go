// Package redis wraps go-redis with the key layout and the few primitives the
// storefront needs: plain values, SETNX claims and fixed-window counters.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const defaultNamespace = "sf"

var errNotInitialized = errors.New("redis client not initialized")

// incrWithTTL bumps a counter and sets its expiry in the same round trip, so a
// counter can never be left without a TTL.
var incrWithTTL = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// store is the subset of go-redis used here.
type store interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Client struct {
	store     store
	closer    func() error
	namespace string
}

// New connects using cfg and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_addr": opts.Addr, "redis_db": opts.DB}), "redis connection established")
	}
	return &Client{store: raw, closer: raw.Close, namespace: cfg.Namespace}, nil
}

// optionsFromConfig prefers the URL; explicit pool and timeout settings fill
// whatever the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}
	fill(&opts.DB, cfg.DB)
	fill(&opts.PoolSize, cfg.PoolSize)
	fill(&opts.MinIdleConns, cfg.MinIdleConns)
	fill(&opts.DialTimeout, cfg.DialTimeout)
	fill(&opts.ReadTimeout, cfg.ReadTimeout)
	fill(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fill[T comparable](dst *T, fallback T) {
	var zero T
	if *dst == zero {
		*dst = fallback
	}
}

func (c *Client) ready() error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	return nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil (see IsNil) for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX reports whether this call created the key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// IncrWithTTL increments key; the first increment also starts its TTL.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return incrWithTTL.Run(ctx, c.store, []string{key}, ttl.Milliseconds()).Int64()
}

// FixedWindowAllow counts one hit against scope and reports whether the
// count is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	count, err := c.IncrWithTTL(ctx, c.RateLimitKey(scope), window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.store.Del(ctx, keys...).Err()
}

// DelIfEquals deletes key when its value is still value, in one round trip.
// It reports whether the key was removed.
func (c *Client) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := compareAndDelete.Run(ctx, c.store, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// IsNil reports whether err is the "key does not exist" sentinel.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return c.key("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return c.key("rate_limit", scope)
}

func (c *Client) CheckoutSessionKey(sessionID string) string {
	return c.key("checkout", "session", sessionID)
}

// PromoAttemptScope is the rate limit scope for promo attempts by userID.
func PromoAttemptScope(userID string) string {
	return "promo:" + userID
}

// key joins non-empty parts under the client namespace.
func (c *Client) key(parts ...string) string {
	ns := defaultNamespace
	if c != nil && c.namespace != "" {
		ns = c.namespace
	}
	out := make([]string, 0, len(parts)+1)
	out = append(out, ns)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}
