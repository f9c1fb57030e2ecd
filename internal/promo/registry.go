package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// MaxDiscountPercent bounds every registered discount.
const MaxDiscountPercent = 100

// Application is the single active promo on a checkout session.
type Application struct {
	Code            string `json:"code"`
	DiscountPercent int    `json:"discountPercent"`
}

// Resolver looks up promo codes.
type Resolver interface {
	Resolve(code string) (Application, error)
}

// Registry is a static set of valid codes keyed by their upper-case form.
type Registry struct {
	codes map[string]int
}

// DefaultCodes is the storefront's built-in promo set.
var DefaultCodes = map[string]int{
	"CHEGIRMA30": 30,
	"YANGI10":    10,
	"BAYRAM20":   20,
	"DOSTLAR15":  15,
}

// NewRegistry copies codes into a registry. Codes are normalized and percents must be in [0,100].
func NewRegistry(codes map[string]int) (*Registry, error) {
	r := &Registry{codes: make(map[string]int, len(codes))}
	for code, pct := range codes {
		normalized := Normalize(code)
		if normalized == "" {
			return nil, fmt.Errorf("promo code must not be empty")
		}
		if pct < 0 || pct > MaxDiscountPercent {
			return nil, fmt.Errorf("promo %s: discount %d out of range", normalized, pct)
		}
		r.codes[normalized] = pct
	}
	return r, nil
}

// NewDefaultRegistry returns a registry over DefaultCodes.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultCodes)
	if err != nil {
		panic(err)
	}
	return r
}

// Normalize upper-cases and trims a submitted code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve returns the application for code or a NOT_FOUND error.
func (r *Registry) Resolve(code string) (Application, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return Application{}, pkgerrors.Validation("promo code is required", pkgerrors.FieldViolation{Field: "code", Reason: "required"})
	}
	pct, ok := r.codes[normalized]
	if !ok {
		return Application{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("promo code %s not found", normalized))
	}
	return Application{Code: normalized, DiscountPercent: pct}, nil
}

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Limiter caps promo attempts per user inside a fixed window.
type Limiter struct {
	store  windowLimiter
	scope  func(string) string
	limit  int64
	window time.Duration
}

// NewLimiter builds a limiter. A non-positive limit disables limiting.
func NewLimiter(store windowLimiter, scope func(string) string, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, scope: scope, limit: int64(limit), window: window}
}

// Allow records one attempt for userID and returns RATE_LIMIT_EXCEEDED once the window is used up.
func (l *Limiter) Allow(ctx context.Context, userID string) error {
	if l == nil || l.store == nil || l.limit <= 0 || l.window <= 0 {
		return nil
	}
	scope := userID
	if l.scope != nil {
		scope = l.scope(userID)
	}
	allowed, _, err := l.store.FixedWindowAllow(ctx, scope, l.limit, l.window)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promo rate limit check failed")
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many promo code attempts")
	}
	return nil
}
