package cart

import (
	"strings"

	"github.com/angelmondragon/storefront-checkout/internal/pricing"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// Item is one cart line. The same product in another size or color is a separate line.
type Item struct {
	ProductID     int64  `json:"productId"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unitPrice"`
	Quantity      int    `json:"quantity"`
	SelectedSize  string `json:"selectedSize,omitempty"`
	SelectedColor string `json:"selectedColor,omitempty"`
}

// Identity is the line uniqueness key.
type Identity struct {
	ProductID     int64
	SelectedSize  string
	SelectedColor string
}

// Identity returns the line key with size and color trimmed.
func (i Item) Identity() Identity {
	return Identity{
		ProductID:     i.ProductID,
		SelectedSize:  strings.TrimSpace(i.SelectedSize),
		SelectedColor: strings.TrimSpace(i.SelectedColor),
	}
}

// LineTotal is unit price times quantity.
func (i Item) LineTotal() int64 {
	return pricing.Line{UnitPrice: i.UnitPrice, Quantity: i.Quantity}.Total()
}

func (i Item) validate() error {
	var violations []pkgerrors.FieldViolation
	if i.ProductID <= 0 {
		violations = append(violations, pkgerrors.FieldViolation{Field: "productId", Reason: "must be positive"})
	}
	if strings.TrimSpace(i.Name) == "" {
		violations = append(violations, pkgerrors.FieldViolation{Field: "name", Reason: "required"})
	}
	if i.UnitPrice < 0 {
		violations = append(violations, pkgerrors.FieldViolation{Field: "unitPrice", Reason: "must be non-negative"})
	}
	if i.Quantity < 1 {
		violations = append(violations, pkgerrors.FieldViolation{Field: "quantity", Reason: "must be at least 1"})
	}
	if len(violations) > 0 {
		return pkgerrors.Validation("invalid cart item", violations...)
	}
	return nil
}

// Lines projects items onto pricing lines.
func Lines(items []Item) []pricing.Line {
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
	}
	return lines
}

func fromModel(m models.CartItem) Item {
	return Item{
		ProductID:     m.ProductID,
		Name:          m.Name,
		UnitPrice:     m.UnitPrice,
		Quantity:      m.Quantity,
		SelectedSize:  m.SelectedSize,
		SelectedColor: m.SelectedColor,
	}
}

func toModel(userID string, item Item) models.CartItem {
	id := item.Identity()
	return models.CartItem{
		UserID:        userID,
		ProductID:     id.ProductID,
		SelectedSize:  id.SelectedSize,
		SelectedColor: id.SelectedColor,
		Name:          strings.TrimSpace(item.Name),
		UnitPrice:     item.UnitPrice,
		Quantity:      item.Quantity,
	}
}
