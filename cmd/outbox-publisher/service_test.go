package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/registry"
)

const testTopic = "orders-topic"

// relay bundles a Service with the fakes behind it.
type relay struct {
	svc  *Service
	repo *fakeRepo
	pub  *fakePublisher
	dlq  *fakeDLQRepo
}

func newRelay(t *testing.T, resolver registryResolver, maxAttempts int, rows ...models.OutboxEvent) *relay {
	t.Helper()
	r := &relay{repo: &fakeRepo{events: rows}, pub: &fakePublisher{}, dlq: &fakeDLQRepo{}}
	svc, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			BatchSize:      2,
			PollIntervalMS: 100,
			MaxAttempts:    maxAttempts,
		}},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       r.repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return r.pub },
		DLQRepository:    r.dlq,
	})
	require.NoError(t, err)
	r.svc = svc
	return r
}

func orderRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       env,
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

func routed() *fakeRegistry {
	return &fakeRegistry{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: testTopic, AggregateType: enums.AggregateOrder},
		Payload:    &payloads.OrderCreatedEvent{},
	}}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	first, second := orderRow(t, 0), orderRow(t, 0)
	r := newRelay(t, routed(), 5, first, second)
	r.pub.results = []publishResult{fakePublishResult{err: errors.New("transient")}, fakePublishResult{}}

	processed, err := r.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{first.ID}, r.repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, r.repo.published)
	assert.Empty(t, r.dlq.entries)
}

func TestPublishStampsAttributesAndOrderingKey(t *testing.T) {
	row := orderRow(t, 0)
	r := newRelay(t, routed(), 5)
	r.pub.results = []publishResult{fakePublishResult{}}

	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: testTopic},
		Envelope: outbox.PayloadEnvelope{
			Version:    1,
			EventID:    "evt-1",
			OccurredAt: time.Now(),
			Actor:      &outbox.ActorRef{UserID: "user-7"},
		},
	}
	require.NoError(t, r.svc.publish(context.Background(), row, resolved))
	require.Len(t, r.pub.messages, 1)

	msg := r.pub.messages[0]
	assert.Equal(t, []byte(row.Payload), msg.Data, "body is the stored envelope")
	assert.Equal(t, row.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, "evt-1", msg.Attributes["event_id"])
	assert.Equal(t, "order_created", msg.Attributes["event_type"])
	assert.Equal(t, row.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.Equal(t, "user-7", msg.Attributes["user_id"])
	assert.Equal(t, "1", msg.Attributes["version"])
}

func TestProcessBatchDeadLetters(t *testing.T) {
	cases := []struct {
		name     string
		resolver *fakeRegistry
		publish  error
		attempts int
		reason   enums.OutboxDLQErrorReason
		replay   bool
	}{
		{
			name:     "non-retryable payload",
			resolver: &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))},
			reason:   enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:     "unroutable event type",
			resolver: &fakeRegistry{err: fmt.Errorf("%w: order_shipped", registry.ErrUnroutable)},
			reason:   enums.OutboxDLQReasonUnroutable,
			replay:   true,
		},
		{
			name:     "last attempt fails",
			resolver: routed(),
			publish:  errors.New("transient"),
			attempts: 1,
			reason:   enums.OutboxDLQReasonMaxAttempts,
			replay:   true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := orderRow(t, tc.attempts)
			r := newRelay(t, tc.resolver, 2, row)
			r.pub.results = []publishResult{fakePublishResult{err: tc.publish}}

			_, err := r.svc.processBatch(context.Background())
			require.NoError(t, err)

			require.Len(t, r.dlq.entries, 1)
			entry := r.dlq.entries[0]
			assert.Equal(t, row.ID, entry.EventID)
			assert.Equal(t, []byte(row.Payload), []byte(entry.Payload))
			assert.Equal(t, tc.reason, entry.ErrorReason)
			assert.Equal(t, tc.replay, entry.ErrorReason.Retryable())
			assert.Equal(t, []uuid.UUID{row.ID}, r.repo.terminal)
			assert.Empty(t, r.repo.published)
		})
	}
}

func gathered(t *testing.T, reg *prometheus.Registry, name string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0]
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func TestProcessBatchCountsOutcomes(t *testing.T) {
	r := newRelay(t, routed(), 5, orderRow(t, 0))
	r.pub.results = []publishResult{fakePublishResult{}}
	reg := prometheus.NewRegistry()
	r.svc.metrics = metrics.NewOutboxMetrics(reg)

	_, err := r.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), gathered(t, reg, "outbox_events_total").GetCounter().GetValue())
}

func TestObserveBacklogSetsGauge(t *testing.T) {
	r := newRelay(t, routed(), 5, orderRow(t, 0), orderRow(t, 0))
	reg := prometheus.NewRegistry()
	r.svc.metrics = metrics.NewOutboxMetrics(reg)

	r.svc.observeBacklog(context.Background())
	assert.Equal(t, float64(2), gathered(t, reg, "outbox_pending_rows").GetGauge().GetValue())
}

func TestNewServiceListsEveryMissingDependency(t *testing.T) {
	_, err := NewService(ServiceParams{Config: &config.Config{}})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 6)
	assert.ErrorContains(t, err, "dlq repository is required")
}

func TestDLQEntryCopiesRow(t *testing.T) {
	row := orderRow(t, 3)
	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := dlqEntry(row, outcome{reason: enums.OutboxDLQReasonMaxAttempts, err: errors.New("timeout")}, failedAt)

	assert.Equal(t, row.ID, entry.EventID)
	assert.Equal(t, row.AggregateID, entry.AggregateID)
	assert.JSONEq(t, string(row.Payload), string(entry.Payload))
	assert.Equal(t, 3, entry.AttemptCount)
	assert.Equal(t, failedAt, entry.FailedAt)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "timeout", *entry.ErrorMessage)
}

func TestWithJitterStaysInWindow(t *testing.T) {
	assert.Zero(t, withJitter(0))
	for i := 0; i < 20; i++ {
		got := withJitter(time.Second)
		assert.GreaterOrEqual(t, got, time.Second)
		assert.Less(t, got, time.Second+jitterWindow)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, time.Second, nextBackoff(0, base, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second, base, maxBackoff))
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

func (f *fakeRepo) Backlog(context.Context, int) (outbox.Backlog, error) {
	var b outbox.Backlog
	for _, e := range f.events {
		if !e.Published() {
			b.Pending++
		}
	}
	return b, nil
}

type fakeDB struct{}

func (*fakeDB) Ping(context.Context) error { return nil }

func (*fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (*fakePubSubClient) Ping(context.Context) error { return nil }

func (*fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next
}

type fakePublishResult struct{ err error }

func (f fakePublishResult) Get(context.Context) (string, error) { return "", f.err }

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
