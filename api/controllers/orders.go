package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/pagination"
)

// OrderReader is the read side of order history.
type OrderReader interface {
	ListForUser(ctx context.Context, userID string, params pagination.Params) (*orders.ListResult, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*orders.OrderDTO, error)
}

// OrdersList returns the shopper's orders, newest first, with cursor pagination.
func OrdersList(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListForUser(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// OrderDetail returns one order owned by the shopper.
func OrderDetail(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
