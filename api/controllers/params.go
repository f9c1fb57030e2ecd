package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.Validation("invalid "+name, pkgerrors.FieldViolation{Field: name, Reason: "must be a uuid"})
	}
	return id, nil
}

func requireUser(r *http.Request) (string, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user identity")
	}
	return userID, nil
}
