package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

const maxLastErrorLen = 1024

var errNoTx = errors.New("transaction required")

// Repository owns the outbox_events table. Writes that must be atomic with the
// business change take the caller's transaction.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Backlog summarises rows still waiting for the publisher.
type Backlog struct {
	Pending int64
	// Oldest is zero when nothing is pending.
	Oldest time.Time
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// pending scopes a query to rows the publisher would still pick up.
func pending(maxAttempts int) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		q = q.Where("published_at IS NULL")
		if maxAttempts > 0 {
			q = q.Where("attempt_count < ?", maxAttempts)
		}
		return q
	}
}

// FetchUnpublishedForPublish locks up to limit pending rows, oldest first.
// On Postgres rows held by another publisher are skipped.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := pending(maxAttempts)(tx)
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Backlog counts pending rows and finds the oldest one.
func (r *Repository) Backlog(ctx context.Context, maxAttempts int) (Backlog, error) {
	var b Backlog
	base := pending(maxAttempts)(r.db.WithContext(ctx).Model(&models.OutboxEvent{})).Session(&gorm.Session{})
	if err := base.Count(&b.Pending).Error; err != nil {
		return Backlog{}, err
	}
	if b.Pending == 0 {
		return b, nil
	}
	var oldest models.OutboxEvent
	err := base.Select("created_at").Order("created_at ASC").Limit(1).Take(&oldest).Error
	if err != nil {
		return Backlog{}, err
	}
	b.Oldest = oldest.CreatedAt.UTC()
	return b, nil
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return updateRow(tx, id, map[string]any{"published_at": r.now().UTC()})
}

// MarkFailedTx records a retryable failure and spends one attempt.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return updateRow(tx, id, map[string]any{
		"last_error":    truncateError(err),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminalTx spends every attempt so the row is never fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return updateRow(tx, id, map[string]any{
		"last_error":    truncateError(err),
		"attempt_count": terminalAttempts,
	})
}

func updateRow(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

// DeletePublishedBefore removes rows older than cutoff that are published or
// have spent terminalAttempts, and reports how many went. tx may be nil.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error) {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	if ctx == nil {
		ctx = context.Background()
	}
	q := conn.WithContext(ctx).Where("created_at < ?", cutoff)
	if terminalAttempts > 0 {
		q = q.Where("(published_at IS NOT NULL OR attempt_count >= ?)", terminalAttempts)
	} else {
		q = q.Where("published_at IS NOT NULL")
	}
	res := q.Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func truncateError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return &msg
}
