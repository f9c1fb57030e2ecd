package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartItem is a persisted cart line. Size and color are stored as empty strings
// when unset so the (user, product, size, color) identity stays unique.
type CartItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID        string    `gorm:"column:user_id;not null;uniqueIndex:ux_cart_items_identity,priority:1"`
	ProductID     int64     `gorm:"column:product_id;not null;uniqueIndex:ux_cart_items_identity,priority:2"`
	SelectedSize  string    `gorm:"column:selected_size;not null;default:'';uniqueIndex:ux_cart_items_identity,priority:3"`
	SelectedColor string    `gorm:"column:selected_color;not null;default:'';uniqueIndex:ux_cart_items_identity,priority:4"`
	Name          string    `gorm:"column:name;not null"`
	UnitPrice     int64     `gorm:"column:unit_price;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
