package cart

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-checkout/internal/repo"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists cart lines per user.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByUser(ctx context.Context, userID string) ([]models.CartItem, error)
	FindByIdentity(ctx context.Context, userID string, id Identity) (*models.CartItem, error)
	Create(ctx context.Context, item *models.CartItem) error
	UpdateQuantity(ctx context.Context, item models.CartItem, quantity int) error
	Delete(ctx context.Context, userID string, id Identity) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a cart repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.WithTx(tx)}
}

func (r *repository) ListByUser(ctx context.Context, userID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.base.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) FindByIdentity(ctx context.Context, userID string, id Identity) (*models.CartItem, error) {
	return repo.FindOne[models.CartItem](r.base.DB(ctx).
		Where("user_id = ? AND product_id = ? AND selected_size = ? AND selected_color = ?",
			userID, id.ProductID, id.SelectedSize, id.SelectedColor))
}

func (r *repository) Create(ctx context.Context, item *models.CartItem) error {
	return r.base.DB(ctx).Create(item).Error
}

func (r *repository) UpdateQuantity(ctx context.Context, item models.CartItem, quantity int) error {
	return r.base.DB(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{"quantity": quantity, "name": item.Name, "unit_price": item.UnitPrice}).Error
}

func (r *repository) Delete(ctx context.Context, userID string, id Identity) (int64, error) {
	res := r.base.DB(ctx).
		Where("user_id = ? AND product_id = ? AND selected_size = ? AND selected_color = ?",
			userID, id.ProductID, id.SelectedSize, id.SelectedColor).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res := r.base.DB(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// DeleteIdleBefore drops every cart whose most recent line change is older than cutoff.
func (r *repository) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.base.DB(ctx)
	active := db.Model(&models.CartItem{}).
		Select("user_id").
		Where("updated_at >= ?", cutoff)
	res := db.Where("user_id NOT IN (?)", active).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
