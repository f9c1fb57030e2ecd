package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	cartsvc "github.com/angelmondragon/storefront-checkout/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	maxNameLength   = 200
	maxOptionLength = 64
)

type cartResponse struct {
	Items    []cartsvc.Item `json:"items"`
	Count    int            `json:"count"`
	Subtotal int64          `json:"subtotal"`
}

func newCartResponse(items []cartsvc.Item) cartResponse {
	resp := cartResponse{Items: items}
	if resp.Items == nil {
		resp.Items = []cartsvc.Item{}
	}
	for _, item := range items {
		resp.Count += item.Quantity
		resp.Subtotal += item.LineTotal()
	}
	return resp
}

// CartFetch returns the shopper's cart lines.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, svc, userID, logg)
	}
}

type addCartItemRequest struct {
	ProductID     int64  `json:"productId" validate:"required,min=1"`
	Name          string `json:"name" validate:"required,max=200"`
	UnitPrice     int64  `json:"unitPrice" validate:"min=0"`
	Quantity      int    `json:"quantity" validate:"required,min=1,max=999"`
	SelectedSize  string `json:"selectedSize" validate:"max=64"`
	SelectedColor string `json:"selectedColor" validate:"max=64"`
}

// CartAddItem adds a line or merges it into the line with the same product, size and color.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Add(r.Context(), userID, cartsvc.Item{
			ProductID:     payload.ProductID,
			Name:          validators.SanitizeString(payload.Name, maxNameLength),
			UnitPrice:     payload.UnitPrice,
			Quantity:      payload.Quantity,
			SelectedSize:  validators.SanitizeString(payload.SelectedSize, maxOptionLength),
			SelectedColor: validators.SanitizeString(payload.SelectedColor, maxOptionLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=999"`
}

// CartSetQuantity replaces the quantity of one line. Zero removes it.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		identity, err := lineIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SetQuantity(r.Context(), userID, identity, payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, svc, userID, logg)
	}
}

// CartRemoveItem drops one line.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		identity, err := lineIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Remove(r.Context(), userID, identity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, svc, userID, logg)
	}
}

// CartClear empties the cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Clear(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func writeCart(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, userID string, logg *logger.Logger) {
	items, err := svc.Items(r.Context(), userID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, newCartResponse(items))
}

// lineIdentity reads the product from the path and the size/color variant from the query string.
func lineIdentity(r *http.Request) (cartsvc.Identity, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	productID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || productID <= 0 {
		return cartsvc.Identity{}, pkgerrors.Validation("invalid productId",
			pkgerrors.FieldViolation{Field: "productId", Reason: "must be a positive integer"})
	}
	return cartsvc.Identity{
		ProductID:     productID,
		SelectedSize:  validators.QueryString(r, "size", maxOptionLength),
		SelectedColor: validators.QueryString(r, "color", maxOptionLength),
	}, nil
}
