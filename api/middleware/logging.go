package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// quietPrefixes are probed by orchestrators; their completions log at debug.
var quietPrefixes = []string{"/health/", "/metrics"}

// wrap returns w as a chi WrapResponseWriter, reusing one already installed
// further up the chain.
func wrap(w http.ResponseWriter, r *http.Request) chimw.WrapResponseWriter {
	if ww, ok := w.(chimw.WrapResponseWriter); ok {
		return ww
	}
	return chimw.NewWrapResponseWriter(w, r.ProtoMajor)
}

func statusOf(ww chimw.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// Logging writes one line per request. Server errors log at warn since the
// handler already logged the cause.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			ww := wrap(w, r)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := statusOf(ww)
			ctx = logg.WithFields(ctx, map[string]any{
				"route":       routePattern(r),
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			completion(logg, r.URL.Path, status)(ctx, "request.complete")
		})
	}
}

func completion(logg *logger.Logger, path string, status int) func(context.Context, string) {
	switch {
	case status >= http.StatusInternalServerError:
		return logg.Warn
	case quiet(path):
		return logg.Debug
	default:
		return logg.Info
	}
}

func quiet(path string) bool {
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
