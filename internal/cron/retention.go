package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultCartIdleTTL     = 30 * 24 * time.Hour
	outboxTerminalAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type idleCartRepo interface {
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// purgeJob deletes rows older than now-retention through purge.
type purgeJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
	now       func() time.Time
}

func (j *purgeJob) Name() string { return j.name }

func (j *purgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}

func newPurgeJob(name string, logg *logger.Logger, retention, fallback time.Duration, purge func(context.Context, time.Time) (int64, error)) *purgeJob {
	if retention <= 0 {
		retention = fallback
	}
	return &purgeJob{name: name, logg: logg, retention: retention, purge: purge, now: time.Now}
}

type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Repository       outboxRetentionRepo
	Retention        time.Duration
	TerminalAttempts int
}

// NewOutboxRetentionJob removes outbox rows that were published or exhausted
// their publish attempts before the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	attempts := params.TerminalAttempts
	if attempts <= 0 {
		attempts = outboxTerminalAttempts
	}
	return newPurgeJob("outbox-retention", params.Logger, params.Retention, defaultOutboxRetention,
		func(ctx context.Context, cutoff time.Time) (int64, error) {
			var deleted int64
			err := params.DB.WithTx(ctx, func(tx *gorm.DB) error {
				rows, err := params.Repository.DeletePublishedBefore(ctx, tx, cutoff, attempts)
				deleted = rows
				return err
			})
			return deleted, err
		}), nil
}

type DLQRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository dlqRetentionRepo
	Retention  time.Duration
}

// NewDLQRetentionJob removes dead-lettered events past their retention.
func NewDLQRetentionJob(params DLQRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	return newPurgeJob("dlq-retention", params.Logger, params.Retention, defaultDLQRetention,
		func(ctx context.Context, cutoff time.Time) (int64, error) {
			var deleted int64
			err := params.DB.WithTx(ctx, func(tx *gorm.DB) error {
				rows, err := params.Repository.DeleteBefore(ctx, tx, cutoff)
				deleted = rows
				return err
			})
			return deleted, err
		}), nil
}

type IdleCartJobParams struct {
	Logger     *logger.Logger
	Repository idleCartRepo
	IdleTTL    time.Duration
}

// NewIdleCartJob drops carts nobody has touched within IdleTTL.
func NewIdleCartJob(params IdleCartJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return newPurgeJob("idle-cart-cleanup", params.Logger, params.IdleTTL, defaultCartIdleTTL,
		params.Repository.DeleteIdleBefore), nil
}
