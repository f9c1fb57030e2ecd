package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Order is the immutable record committed when checkout payment is confirmed.
// Total holds the post-discount subtotal; delivery is tracked separately.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID           string              `gorm:"column:user_id;not null;index:idx_orders_user_created,priority:1"`
	SessionID        uuid.UUID           `gorm:"column:session_id;type:uuid;not null;uniqueIndex:ux_orders_session_id"`
	Status           enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	CustomerName     string              `gorm:"column:customer_name;not null"`
	Phone            string              `gorm:"column:phone;not null"`
	Address          string              `gorm:"column:address;not null"`
	Region           enums.Region        `gorm:"column:region;type:text;not null"`
	ServiceTier      enums.ServiceTier   `gorm:"column:service_tier;type:text;not null"`
	LeadTime         string              `gorm:"column:lead_time;not null"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentReference *string             `gorm:"column:payment_reference"`
	PromoCode        *string             `gorm:"column:promo_code"`
	DiscountPercent  int                 `gorm:"column:discount_percent;not null;default:0"`
	Subtotal         int64               `gorm:"column:subtotal;not null"`
	DiscountAmount   int64               `gorm:"column:discount_amount;not null;default:0"`
	Total            int64               `gorm:"column:total;not null"`
	DeliveryFee      int64               `gorm:"column:delivery_fee;not null"`
	GrandTotal       int64               `gorm:"column:grand_total;not null"`
	LineItems        []OrderLineItem     `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_orders_user_created,priority:2"`
}

// BeforeCreate assigns an identifier when the caller did not.
func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
