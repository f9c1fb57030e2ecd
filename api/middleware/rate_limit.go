package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles one traffic surface per client IP and per user.
type RateLimitPolicy struct {
	name      string
	window    time.Duration
	ipLimit   int
	userLimit int
}

// NewRateLimitPolicy builds a policy; a zero limit disables that dimension.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, userLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "api"
	}
	return RateLimitPolicy{name: name, window: window, ipLimit: ipLimit, userLimit: userLimit}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.userLimit > 0)
}

// dimension is one counter a request is charged against.
type dimension struct {
	kind  string
	value string
	limit int
}

func (p RateLimitPolicy) dimensions(r *http.Request) []dimension {
	var out []dimension
	if ip := clientIP(r); p.ipLimit > 0 && ip != "" {
		out = append(out, dimension{kind: "ip", value: ip, limit: p.ipLimit})
	}
	if user := UserIDFromContext(r.Context()); p.userLimit > 0 && user != "" {
		out = append(out, dimension{kind: "user", value: user, limit: p.userLimit})
	}
	return out
}

func (p RateLimitPolicy) scope(d dimension) string {
	return p.name + ":" + d.kind + ":" + d.value
}

// RateLimit charges each request against fixed-window counters. It must run
// after User so the user dimension is known. Counter failures answer 503.
func RateLimit(policy RateLimitPolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, d := range policy.dimensions(r) {
				allowed, count, err := counter.FixedWindowAllow(ctx, policy.scope(d), int64(d.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					rejectRateLimited(ctx, logg, w, policy, d, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, d dimension, count int64) {
	if logg != nil {
		fields := map[string]any{
			"policy":         policy.name,
			"scope":          d.kind,
			"attempts":       count,
			"limit":          d.limit,
			"window_seconds": int(policy.window.Seconds()),
		}
		if d.kind == "ip" {
			fields["ip"] = d.value
		}
		logg.Warn(logg.WithFields(ctx, fields), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Round(time.Second).Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.limit))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for _, hop := range strings.Split(fwd, ",") {
			if ip := strings.TrimSpace(hop); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
