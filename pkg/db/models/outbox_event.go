package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// OutboxEvent is one pending or shipped domain event. The publisher only ever
// touches PublishedAt, AttemptCount and LastError; the payload is immutable.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime;index:idx_outbox_events_unpublished,priority:1"`
	PublishedAt   *time.Time                `gorm:"column:published_at;index"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Published reports whether the publisher has acknowledged the event.
func (e OutboxEvent) Published() bool { return e.PublishedAt != nil }

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
