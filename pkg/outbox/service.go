// Package outbox records domain events in the same transaction as the state
// change that caused them. cmd/outbox-publisher ships them to Pub/Sub.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// DomainEvent is an event as produced by application code.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          interface{}
	// Version defaults to CurrentVersion.
	Version int
	// OccurredAt defaults to the emit time.
	OccurredAt time.Time
}

var errTxRequired = errors.New("outbox: emit requires a transaction")

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit appends event to the outbox inside tx. The row id doubles as the
// envelope event id, so consumers can deduplicate on it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if !event.EventType.IsValid() || !event.AggregateType.IsValid() {
		return fmt.Errorf("outbox: unknown event %s/%s", event.AggregateType, event.EventType)
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("outbox: %s without aggregate id", event.EventType)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	id := uuid.New()
	env, err := newEnvelope(id, event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
