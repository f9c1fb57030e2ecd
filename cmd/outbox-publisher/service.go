package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	Backlog(ctx context.Context, maxAttempts int) (outbox.Backlog, error)
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// validate reports every missing dependency at once.
func (p ServiceParams) validate() error {
	var err error
	required := func(ok bool, name string) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%s is required", name))
		}
	}
	required(p.Config != nil, "config")
	required(p.Logger != nil, "logger")
	required(p.DB != nil, "database client")
	required(p.PubSub != nil, "pubsub client")
	required(p.Repository != nil, "outbox repository")
	required(p.Registry != nil, "event registry")
	required(p.DLQRepository != nil, "dlq repository")
	return err
}

// Service relays committed outbox rows to Pub/Sub. A row is marked published
// only after the broker acknowledged it, so delivery is at-least-once.
type Service struct {
	logg      *logger.Logger
	db        dbClient
	pubsub    pubSubClient
	repo      outboxRepository
	dlq       dlqRepository
	routes    registryResolver
	publisher publisherFactory
	metrics   *metrics.OutboxMetrics
	now       func() time.Time

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	publisherFor := params.PublisherFactory
	if publisherFor == nil {
		publisherFor = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		dlq:          params.DLQRepository,
		routes:       params.Registry,
		publisher:    publisherFor,
		metrics:      params.Metrics,
		now:          time.Now,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// ready pings the database and then Pub/Sub; the first failure stops startup.
func (s *Service) ready(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	for _, c := range checks {
		if err := c.ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", c.name), "dependency not ready", err)
			return fmt.Errorf("%s not ready: %w", c.name, err)
		}
	}
	return nil
}

// Run polls until ctx is canceled. Full batches are drained back to back;
// batch errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ready(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		wait := s.pollInterval
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = backoff
		case processed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
			s.observeBacklog(ctx)
		}

		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// observeBacklog refreshes the backlog gauges while the publisher is idle.
// Rows left behind here are ones that keep failing.
func (s *Service) observeBacklog(ctx context.Context) {
	if !s.metrics.Enabled() {
		return
	}
	backlog, err := s.repo.Backlog(ctx, s.maxAttempts)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox backlog query failed")
		return
	}
	var age time.Duration
	if !backlog.Oldest.IsZero() {
		age = s.now().Sub(backlog.Oldest)
	}
	s.metrics.SetBacklog(backlog.Pending, age)
}

// outcome is what happened to one row inside a batch.
type outcome struct {
	result string
	reason enums.OutboxDLQErrorReason
	err    error
	topic  string
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.record(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// dispatch publishes one row and classifies the result; it never touches the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) outcome {
	var nonRetry registry.NonRetryableError
	resolved, err := s.routes.Resolve(event)
	if err != nil {
		reason := enums.OutboxDLQReasonUnroutable
		if errors.As(err, &nonRetry) {
			reason = enums.OutboxDLQReasonNonRetryable
		}
		return outcome{result: metrics.OutboxDeadLettered, reason: reason, err: err}
	}
	topic := resolved.Descriptor.Topic

	err = s.publish(ctx, event, resolved)
	if err == nil {
		return outcome{result: metrics.OutboxPublished, topic: topic}
	}

	if errors.As(err, &nonRetry) {
		return outcome{result: metrics.OutboxDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err, topic: topic}
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return outcome{
			result: metrics.OutboxDeadLettered,
			reason: enums.OutboxDLQReasonMaxAttempts,
			err:    fmt.Errorf("max publish attempts reached: %w", err),
			topic:  topic,
		}
	}
	return outcome{result: metrics.OutboxRetried, err: err, topic: topic}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	s.metrics.Inc(string(event.EventType), out.result)
	ctx = s.logg.WithFields(ctx, rowFields(event, out.topic))

	switch out.result {
	case metrics.OutboxPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(ctx, "outbox event published")
	case metrics.OutboxRetried:
		s.logg.Warn(s.logg.WithField(ctx, "error", out.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	default:
		return s.deadLetter(ctx, tx, event, out)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"error_reason": out.reason,
		"error":        out.err.Error(),
	})
	s.logg.Warn(ctx, "outbox event moved to dlq")

	if err := s.dlq.InsertTx(tx, dlqEntry(event, out, s.now().UTC())); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, out.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

// dlqEntry copies the row so it can be replayed verbatim later.
func dlqEntry(event models.OutboxEvent, out outcome, failedAt time.Time) models.OutboxDLQ {
	msg := out.err.Error()
	return models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   out.reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      failedAt,
	}
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  messageAttributes(event, resolved.Envelope),
		OrderingKey: event.AggregateID.String(),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageAttributes lets subscribers route and dedupe without decoding the body.
func messageAttributes(event models.OutboxEvent, env outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"version":        fmt.Sprint(env.Version),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !env.OccurredAt.IsZero() {
		attrs["occurred_at"] = env.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	if env.Actor != nil && env.Actor.UserID != "" {
		attrs["user_id"] = env.Actor.UserID
	}
	return attrs
}

func rowFields(event models.OutboxEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    string(event.EventType),
		"aggregate":     string(event.AggregateType) + "/" + event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{pub: p}
}

// Publish drops the ordering key unless the publisher was built with ordering
// enabled; the client rejects keyed messages otherwise.
func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if !p.pub.EnableMessageOrdering {
		msg.OrderingKey = ""
	}
	res := p.pub.Publish(ctx, msg)
	if res == nil {
		return nil
	}
	if msg.OrderingKey == "" {
		return res
	}
	return &orderedResult{publishResult: res, pub: p.pub, key: msg.OrderingKey}
}

// orderedResult resumes a paused ordering key after a failed publish so the
// next poll can retry it.
type orderedResult struct {
	publishResult
	pub *gcppubsub.Publisher
	key string
}

func (r *orderedResult) Get(ctx context.Context) (string, error) {
	id, err := r.publishResult.Get(ctx)
	if err != nil {
		r.pub.ResumePublish(r.key)
	}
	return id, err
}
