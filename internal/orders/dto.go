package orders

import (
	"time"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/pricing"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/google/uuid"
)

// Draft is everything checkout knows at the moment payment is confirmed.
// SessionID is the checkout pass id; a reused session gets a fresh one per pass.
type Draft struct {
	SessionID        uuid.UUID
	UserID           string
	CustomerName     string
	Phone            string
	Address          string
	PaymentMethod    enums.PaymentMethod
	PaymentReference string
	Items            []cart.Item
	Price            pricing.Breakdown
}

// LineItemDTO is one snapshot line of an order.
type LineItemDTO struct {
	ProductID     int64   `json:"productId"`
	Name          string  `json:"name"`
	UnitPrice     int64   `json:"unitPrice"`
	Quantity      int     `json:"quantity"`
	SelectedSize  *string `json:"selectedSize,omitempty"`
	SelectedColor *string `json:"selectedColor,omitempty"`
	LineTotal     int64   `json:"lineTotal"`
}

// OrderDTO is the read model returned to order history.
type OrderDTO struct {
	ID               uuid.UUID           `json:"id"`
	SessionID        uuid.UUID           `json:"sessionId"`
	Status           enums.OrderStatus   `json:"status"`
	CustomerName     string              `json:"customerName"`
	Phone            string              `json:"phone"`
	Address          string              `json:"address"`
	Region           enums.Region        `json:"region"`
	ServiceTier      enums.ServiceTier   `json:"serviceTier"`
	LeadTime         string              `json:"leadTime"`
	PaymentMethod    enums.PaymentMethod `json:"paymentMethod"`
	PaymentReference *string             `json:"paymentReference,omitempty"`
	PromoCode        *string             `json:"promoCode,omitempty"`
	DiscountPercent  int                 `json:"discountPercent"`
	Subtotal         int64               `json:"subtotal"`
	DiscountAmount   int64               `json:"discountAmount"`
	Total            int64               `json:"total"`
	DeliveryFee      int64               `json:"deliveryFee"`
	GrandTotal       int64               `json:"grandTotal"`
	LineItems        []LineItemDTO       `json:"lineItems"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// ListResult is one page of order history plus the cursor for the next one.
type ListResult struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ToDTO maps a persisted order.
func ToDTO(o models.Order) OrderDTO {
	dto := OrderDTO{
		ID:               o.ID,
		SessionID:        o.SessionID,
		Status:           o.Status,
		CustomerName:     o.CustomerName,
		Phone:            o.Phone,
		Address:          o.Address,
		Region:           o.Region,
		ServiceTier:      o.ServiceTier,
		LeadTime:         o.LeadTime,
		PaymentMethod:    o.PaymentMethod,
		PaymentReference: o.PaymentReference,
		PromoCode:        o.PromoCode,
		DiscountPercent:  o.DiscountPercent,
		Subtotal:         o.Subtotal,
		DiscountAmount:   o.DiscountAmount,
		Total:            o.Total,
		DeliveryFee:      o.DeliveryFee,
		GrandTotal:       o.GrandTotal,
		LineItems:        make([]LineItemDTO, 0, len(o.LineItems)),
		CreatedAt:        o.CreatedAt,
	}
	for _, li := range o.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemDTO{
			ProductID:     li.ProductID,
			Name:          li.Name,
			UnitPrice:     li.UnitPrice,
			Quantity:      li.Quantity,
			SelectedSize:  li.SelectedSize,
			SelectedColor: li.SelectedColor,
			LineTotal:     li.LineTotal,
		})
	}
	return dto
}

func buildModel(d Draft, now time.Time) models.Order {
	order := models.Order{
		ID:              uuid.New(),
		UserID:          d.UserID,
		SessionID:       d.SessionID,
		Status:          enums.OrderStatusPending,
		CustomerName:    d.CustomerName,
		Phone:           d.Phone,
		Address:         d.Address,
		Region:          d.Price.Region,
		ServiceTier:     d.Price.ServiceTier,
		LeadTime:        d.Price.LeadTime,
		PaymentMethod:   d.PaymentMethod,
		DiscountPercent: d.Price.DiscountPercent,
		Subtotal:        d.Price.Subtotal,
		DiscountAmount:  d.Price.PromoDiscountAmount,
		Total:           d.Price.PostDiscountSubtotal,
		DeliveryFee:     d.Price.DeliveryFee,
		GrandTotal:      d.Price.GrandTotal,
		CreatedAt:       now,
	}
	if d.PaymentReference != "" {
		ref := d.PaymentReference
		order.PaymentReference = &ref
	}
	if d.Price.PromoCode != "" {
		code := d.Price.PromoCode
		order.PromoCode = &code
	}
	order.LineItems = make([]models.OrderLineItem, 0, len(d.Items))
	for i, item := range d.Items {
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			OrderID:       order.ID,
			Position:      i,
			ProductID:     item.ProductID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			SelectedSize:  optional(item.SelectedSize),
			SelectedColor: optional(item.SelectedColor),
			LineTotal:     item.LineTotal(),
			CreatedAt:     now,
		})
	}
	return order
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
