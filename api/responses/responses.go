package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// fallbackBody is written when a payload cannot be marshaled.
const fallbackBody = `{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`

// Codes whose caller-supplied message is safe to show to clients.
var publicMessageCodes = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:    true,
	pkgerrors.CodeUnauthorized:  true,
	pkgerrors.CodeNotFound:      true,
	pkgerrors.CodeConflict:      true,
	pkgerrors.CodeStateConflict: true,
	pkgerrors.CodeIdempotency:   true,
	pkgerrors.CodeRateLimit:     true,
	pkgerrors.CodePaymentFailed: true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteNoContent ends the request with 204 and no body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError renders err as an ErrorEnvelope. Untyped errors become opaque 500s.
// Client faults are logged at warn, server faults at error with the pg details.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: meta.Retryable,
	}
	if publicMessageCodes[typed.Code()] && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		logError(ctx, logg, meta.HTTPStatus, typed, err)
	}
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: apiErr})
}

func logError(ctx context.Context, logg *logger.Logger, status int, typed *pkgerrors.Error, err error) {
	fields := map[string]any{
		"error_code": string(typed.Code()),
		"status":     status,
	}
	if d, ok := typed.Details().(map[string]any); ok {
		if step, ok := d["step"]; ok {
			fields["step"] = step
		}
	}

	if status < http.StatusInternalServerError {
		fields["error"] = err.Error()
		logg.Warn(logg.WithFields(ctx, fields), "request.rejected")
		return
	}

	for k, v := range pkgerrors.Dump(err).Fields() {
		fields[k] = v
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(fallbackBody)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
