package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// UserHeader carries the shopper identity resolved by the upstream gateway.
const UserHeader = "X-User-Id"

const maxUserIDLength = 128

// User requires the X-User-Id header and scopes the request context to that shopper.
func User(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserHeader))
			if userID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user identity"))
				return
			}
			if len(userID) > maxUserIDLength {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user identity too long"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
