package orders

import (
	"context"

	"github.com/angelmondragon/storefront-checkout/internal/repo"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the durable order list. It only ever appends.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindBySession(ctx context.Context, sessionID uuid.UUID) (*models.Order, error)
	FindForUser(ctx context.Context, userID string, id uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, params listParams) ([]models.Order, *pagination.Cursor, error)
}

type listParams struct {
	UserID string
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	base repo.Base
}

// NewRepository builds an orders repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.WithTx(tx)}
}

// Create inserts the order together with its line items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.base.DB(ctx).Create(order).Error
}

func (r *repository) FindBySession(ctx context.Context, sessionID uuid.UUID) (*models.Order, error) {
	return repo.FindOne[models.Order](r.base.DB(ctx).
		Preload("LineItems", orderLines).
		Where("session_id = ?", sessionID))
}

func (r *repository) FindForUser(ctx context.Context, userID string, id uuid.UUID) (*models.Order, error) {
	return repo.FindOne[models.Order](r.base.DB(ctx).
		Preload("LineItems", orderLines).
		Where("id = ? AND user_id = ?", id, userID))
}

// ListForUser returns orders newest first.
func (r *repository) ListForUser(ctx context.Context, params listParams) ([]models.Order, *pagination.Cursor, error) {
	query := r.base.DB(ctx).Model(&models.Order{}).Where("user_id = ?", params.UserID)
	if c := params.Cursor; c != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var rows []models.Order
	err := query.
		Preload("LineItems", orderLines).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return rows, next, nil
}

func orderLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
