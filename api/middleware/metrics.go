package middleware

import (
	"net/http"
	"time"
)

type requestObserver interface {
	Observe(route, method string, status int, duration time.Duration)
}

// Metrics records every request against its chi route pattern so path
// parameters do not explode label cardinality.
func Metrics(observer requestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if observer == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := wrap(w, r)
			start := time.Now()
			next.ServeHTTP(ww, r)
			observer.Observe(routePattern(r), r.Method, statusOf(ww), time.Since(start))
		})
	}
}
