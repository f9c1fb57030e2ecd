package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"

	// DefaultIdempotencyTTL covers cart writes and session creation.
	DefaultIdempotencyTTL = 24 * time.Hour
	// SubmitIdempotencyTTL keeps order submissions replayable for a week.
	SubmitIdempotencyTTL = 7 * 24 * time.Hour

	maxIdempotencyKeyLength = 128
	inFlightTTL             = time.Minute
	inFlightMarker          = "in_flight"
)

// IdempotencyStore persists replayable responses.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency makes a write endpoint safe to retry. The first request with a
// given Idempotency-Key claims the key, runs, and its non-5xx response is kept
// for ttl. Retries with the same body replay it; a different body or a retry
// while the first is still running is rejected with IDEMPOTENCY_KEY_REUSED.
// Keys are scoped per user and concrete path.
func Idempotency(store IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKeyLength {
				responses.WriteError(ctx, logg, w, pkgerrors.Validation("Idempotency-Key header required",
					pkgerrors.FieldViolation{Field: IdempotencyKeyHeader, Reason: "must be 1-128 characters"}))
				return
			}

			body, err := readBody(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
				return
			}
			hash := requestHash(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			claimed, err := store.SetNX(ctx, key, inFlightMarker, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, store, key, hash, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.statusCode() >= http.StatusInternalServerError {
				// Release the claim so the client can retry.
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}
			record, err := json.Marshal(storedResponse{
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			})
			if err == nil {
				err = store.Set(ctx, key, string(record), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

func replay(ctx context.Context, store IdempotencyStore, key, hash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if redis.IsNil(err) {
		// Expired between the claim attempt and the read.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotent request expired, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	if raw == inFlightMarker {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this Idempotency-Key is still in progress"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key reused with a different request body"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(nil, r.Body, 1<<20)); err != nil {
		return nil, err
	}
	r.Body = readCloser{bytes.NewReader(buf.Bytes())}
	return buf.Bytes(), nil
}

type readCloser struct{ *bytes.Reader }

func (readCloser) Close() error { return nil }

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func idempotencyScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

// responseCapture tees the response so it can be stored after the handler returns.
type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
