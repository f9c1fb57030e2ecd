package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderLineItem snapshots one cart line at commit time.
type OrderLineItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Position      int       `gorm:"column:position;not null"`
	ProductID     int64     `gorm:"column:product_id;not null"`
	Name          string    `gorm:"column:name;not null"`
	UnitPrice     int64     `gorm:"column:unit_price;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
	SelectedSize  *string   `gorm:"column:selected_size"`
	SelectedColor *string   `gorm:"column:selected_color"`
	LineTotal     int64     `gorm:"column:line_total;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (li *OrderLineItem) BeforeCreate(*gorm.DB) error {
	assignID(&li.ID)
	return nil
}
