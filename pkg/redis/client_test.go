package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
)

// newTestClient connects a Client to an in-process miniredis server, which
// runs the Lua scripts for real.
func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, PromoAttemptScope("u1"), 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), count)
		assert.Equal(t, want, allowed, "attempt %d", i+1)
	}

	key := client.RateLimitKey(PromoAttemptScope("u1"))
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(time.Minute)
	allowed, count, err := client.FixedWindowAllow(ctx, PromoAttemptScope("u1"), 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "a new window starts after expiry")
	assert.Equal(t, int64(1), count)
}

func TestIncrWithTTLSetsExpiryOnlyOnFirstHit(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	_, err := client.IncrWithTTL(ctx, "counter", 10*time.Second)
	require.NoError(t, err)
	mr.FastForward(4 * time.Second)

	n, err := client.IncrWithTTL(ctx, "counter", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 6*time.Second, mr.TTL("counter"), "later hits keep the original expiry")

	_, err = client.IncrWithTTL(ctx, "forever", 0)
	require.NoError(t, err)
	assert.Zero(t, mr.TTL("forever"))
}

func TestCheckoutSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	key := client.CheckoutSessionKey("sess-1")
	require.NoError(t, client.Set(ctx, key, `{"step":2}`, 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL(key))

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"step":2}`, value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.True(t, IsNil(err), "expected redis.Nil after delete, got %v", err)
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	first, err := client.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := client.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestDelIfEquals(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	require.NoError(t, client.Set(ctx, "lock", "owner-a", time.Minute))

	removed, err := client.DelIfEquals(ctx, "lock", "owner-b")
	require.NoError(t, err)
	assert.False(t, removed)
	got, err := mr.Get("lock")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", got)

	removed, err = client.DelIfEquals(ctx, "lock", "owner-a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, mr.Exists("lock"))

	removed, err = client.DelIfEquals(ctx, "missing", "owner-a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPingFailsOnceServerStops(t *testing.T) {
	client, mr := newTestClient(t)
	require.NoError(t, client.Ping(context.Background()))
	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestNewFailsFastWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), config.RedisConfig{Address: addr}, nil)
	assert.ErrorContains(t, err, "ping redis")
}

func TestUninitializedClient(t *testing.T) {
	ctx := context.Background()
	var nilClient *Client
	for _, c := range []*Client{{}, nilClient} {
		assert.ErrorIs(t, c.Ping(ctx), errNotInitialized)
		_, err := c.IncrWithTTL(ctx, "k", time.Second)
		assert.ErrorIs(t, err, errNotInitialized)
		assert.NoError(t, c.Close())
	}
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DB: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB, "url db wins over explicit db")
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
}

func TestKeyLayout(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "sf:rate_limit:promo:u1", client.RateLimitKey(PromoAttemptScope("u1")))
	assert.Equal(t, "sf:checkout:session:abc", client.CheckoutSessionKey("abc"))
	assert.Equal(t, "sf:idempotency:scope", client.IdempotencyKey("scope", " "))

	staging := &Client{namespace: "sf-staging"}
	assert.Equal(t, "sf-staging:checkout:session:abc", staging.CheckoutSessionKey("abc"))
}
