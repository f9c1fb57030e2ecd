package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	RequestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 64
)

// RequestID propagates a well-formed inbound X-Request-Id or mints a new one,
// echoes it on the response and binds it to the request logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(RequestIDHeader)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			ctx := WithRequestID(r.Context(), reqID)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validRequestID accepts ids made of letters, digits, '-' and '_' only so
// client values can be logged verbatim.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
