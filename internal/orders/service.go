package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-checkout/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns order creation and order history reads.
type Service interface {
	// Append commits the order for a checkout pass exactly once. A second call
	// with the same Draft.SessionID returns the stored order with created=false.
	Append(ctx context.Context, draft Draft) (order *OrderDTO, created bool, err error)
	ListForUser(ctx context.Context, userID string, params pagination.Params) (*ListResult, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*OrderDTO, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the orders service.
func NewService(repo Repository, tx txRunner, emitter outboxEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, outbox: emitter, logg: logg, now: time.Now}, nil
}

func (s *service) Append(ctx context.Context, draft Draft) (*OrderDTO, bool, error) {
	if err := validateDraft(draft); err != nil {
		return nil, false, err
	}

	var (
		stored  models.Order
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindBySession(ctx, draft.SessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			stored = *existing
			return nil
		}

		order := buildModel(draft, s.now().UTC().Truncate(time.Microsecond))
		if err := repo.Create(ctx, &order); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: draft.UserID, SessionID: draft.SessionID.String()},
			Data:          orderCreatedPayload(order),
			OccurredAt:    order.CreatedAt,
		}); err != nil {
			return fmt.Errorf("emit order_created: %w", err)
		}
		stored = order
		created = true
		return nil
	})
	if err != nil {
		if !isSessionConflict(err) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		existing, findErr := s.repo.FindBySession(ctx, draft.SessionID)
		if findErr != nil || existing == nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already recorded for session")
		}
		stored, created = *existing, false
	}

	logCtx := s.logg.WithOrderID(ctx, stored.ID.String())
	if created {
		s.logg.Info(logCtx, "order appended")
	} else {
		s.logg.Info(logCtx, "order already recorded for session")
	}
	dto := ToDTO(stored)
	return &dto, created, nil
}

func (s *service) ListForUser(ctx context.Context, userID string, params pagination.Params) (*ListResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.Validation("user id is required")
	}
	query := listParams{UserID: userID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListForUser(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	result := &ListResult{Orders: make([]OrderDTO, 0, len(rows))}
	for _, row := range rows {
		result.Orders = append(result.Orders, ToDTO(row))
	}
	if next != nil {
		result.NextCursor = next.Encode()
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, userID string, id uuid.UUID) (*OrderDTO, error) {
	if strings.TrimSpace(userID) == "" || id == uuid.Nil {
		return nil, pkgerrors.Validation("user id and order id are required")
	}
	order, err := s.repo.FindForUser(ctx, userID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := ToDTO(*order)
	return &dto, nil
}

func isSessionConflict(err error) bool {
	return db.IsUniqueViolation(err, "ux_orders_session_id") || db.IsUniqueViolation(err, "orders.session_id")
}

func validateDraft(d Draft) error {
	var violations []pkgerrors.FieldViolation
	if d.SessionID == uuid.Nil {
		violations = append(violations, pkgerrors.FieldViolation{Field: "sessionId", Reason: "required"})
	}
	if strings.TrimSpace(d.UserID) == "" {
		violations = append(violations, pkgerrors.FieldViolation{Field: "userId", Reason: "required"})
	}
	if len(d.Items) == 0 {
		violations = append(violations, pkgerrors.FieldViolation{Field: "items", Reason: "cart is empty"})
	}
	if !d.PaymentMethod.IsValid() {
		violations = append(violations, pkgerrors.FieldViolation{Field: "paymentMethod", Reason: "unsupported"})
	}
	if len(violations) > 0 {
		return pkgerrors.Validation("order draft is incomplete", violations...)
	}
	return nil
}

func orderCreatedPayload(o models.Order) payloads.OrderCreatedEvent {
	event := payloads.OrderCreatedEvent{
		OrderID:       o.ID,
		SessionID:     o.SessionID,
		UserID:        o.UserID,
		CustomerName:  o.CustomerName,
		Phone:         o.Phone,
		Address:       o.Address,
		Region:        o.Region,
		ServiceTier:   o.ServiceTier,
		LeadTime:      o.LeadTime,
		PaymentMethod: o.PaymentMethod,
		Subtotal:      o.Subtotal,
		Discount:      o.DiscountAmount,
		Total:         o.Total,
		DeliveryFee:   o.DeliveryFee,
		GrandTotal:    o.GrandTotal,
		Items:         make([]payloads.OrderItem, 0, len(o.LineItems)),
		CreatedAt:     o.CreatedAt,
	}
	if o.PromoCode != nil {
		event.PromoCode = *o.PromoCode
	}
	for _, li := range o.LineItems {
		item := payloads.OrderItem{
			ProductID: li.ProductID,
			Name:      li.Name,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
			LineTotal: li.LineTotal,
		}
		if li.SelectedSize != nil {
			item.SelectedSize = *li.SelectedSize
		}
		if li.SelectedColor != nil {
			item.SelectedColor = *li.SelectedColor
		}
		event.Items = append(event.Items, item)
	}
	return event
}
