package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter bounded to [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Validation("query parameter must be an integer",
			pkgerrors.FieldViolation{Field: key, Reason: "must be an integer"})
	}
	if value < min || value > max {
		return 0, pkgerrors.Validation("query parameter out of range",
			pkgerrors.FieldViolation{Field: key, Reason: "must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)})
	}
	return value, nil
}

// QueryString returns the sanitized value of an optional query parameter.
func QueryString(r *http.Request, key string, maxLen int) string {
	return SanitizeString(r.URL.Query().Get(key), maxLen)
}
