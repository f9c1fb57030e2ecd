package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

const maxDLQErrorLen = 1024

var (
	// ErrDLQEntryNotFound is returned by Replay for an unknown event id.
	ErrDLQEntryNotFound = errors.New("dlq entry not found")
	// ErrNotReplayable is returned by Replay for rows whose payload is broken.
	ErrNotReplayable = errors.New("dlq entry is not replayable")
)

// DLQRepository stores outbox rows the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records entry inside the publisher's batch transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > maxDLQErrorLen {
		msg := (*entry.ErrorMessage)[:maxDLQErrorLen]
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	return findDLQ(r.db.WithContext(ctx), eventID)
}

// Replay moves a retryable entry back into outbox_events with a fresh attempt
// budget. The original outbox row is reused when retention has not pruned it.
func (r *DLQRepository) Replay(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := findDLQ(tx, eventID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: %s", ErrDLQEntryNotFound, eventID)
		}
		if !entry.ErrorReason.Retryable() {
			return fmt.Errorf("%w: %s failed with %s", ErrNotReplayable, eventID, entry.ErrorReason)
		}

		res := tx.Model(&models.OutboxEvent{}).
			Where("id = ?", eventID).
			Updates(map[string]any{"attempt_count": 0, "last_error": nil, "published_at": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			row := models.OutboxEvent{
				ID:            entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.OutboxDLQ{}, "id = ?", entry.ID).Error
	})
}

// DeleteBefore removes entries that failed before cutoff.
func (r *DLQRepository) DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

func findDLQ(db *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := db.Where("event_id = ?", eventID).Order("failed_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
