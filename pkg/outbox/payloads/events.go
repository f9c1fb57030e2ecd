package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// OrderCreatedEvent carries everything the operator notification needs so the
// consumer never reads back from the order store.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	SessionID     uuid.UUID           `json:"session_id"`
	UserID        string              `json:"user_id"`
	CustomerName  string              `json:"customer_name"`
	Phone         string              `json:"phone"`
	Address       string              `json:"address"`
	Region        enums.Region        `json:"region"`
	ServiceTier   enums.ServiceTier   `json:"service_tier"`
	LeadTime      string              `json:"lead_time"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PromoCode     string              `json:"promo_code,omitempty"`
	Subtotal      int64               `json:"subtotal"`
	Discount      int64               `json:"discount"`
	Total         int64               `json:"total"`
	DeliveryFee   int64               `json:"delivery_fee"`
	GrandTotal    int64               `json:"grand_total"`
	Items         []OrderItem         `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderItem is one snapshot line inside OrderCreatedEvent.
type OrderItem struct {
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int    `json:"quantity"`
	SelectedSize  string `json:"selected_size,omitempty"`
	SelectedColor string `json:"selected_color,omitempty"`
	LineTotal     int64  `json:"line_total"`
}
