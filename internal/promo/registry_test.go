package promo

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

func TestResolveCaseInsensitive(t *testing.T) {
	reg := NewDefaultRegistry()
	for _, input := range []string{"CHEGIRMA30", "chegirma30", "  Chegirma30 "} {
		app, err := reg.Resolve(input)
		if err != nil {
			t.Fatalf("resolve %q: %v", input, err)
		}
		if app.Code != "CHEGIRMA30" || app.DiscountPercent != 30 {
			t.Fatalf("unexpected application %+v", app)
		}
	}
}

func TestResolveUnknownIsNotFound(t *testing.T) {
	_, err := NewDefaultRegistry().Resolve("NOPE")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveEmptyIsValidation(t *testing.T) {
	_, err := NewDefaultRegistry().Resolve("   ")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewRegistryRejectsOutOfRange(t *testing.T) {
	if _, err := NewRegistry(map[string]int{"BAD": 101}); err == nil {
		t.Fatal("expected error for percent above 100")
	}
	if _, err := NewRegistry(map[string]int{"BAD": -1}); err == nil {
		t.Fatal("expected error for negative percent")
	}
	if _, err := NewRegistry(map[string]int{" ": 5}); err == nil {
		t.Fatal("expected error for empty code")
	}
	reg, err := NewRegistry(map[string]int{"free": 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app, err := reg.Resolve("FREE"); err != nil || app.DiscountPercent != 100 {
		t.Fatalf("expected FREE=100, got %+v %v", app, err)
	}
}

type stubWindow struct {
	count     int64
	lastScope string
	err       error
}

func (s *stubWindow) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if s.err != nil {
		return false, 0, s.err
	}
	s.lastScope = scope
	s.count++
	return s.count <= limit, s.count, nil
}

func TestLimiterBlocksAfterLimit(t *testing.T) {
	store := &stubWindow{}
	limiter := NewLimiter(store, func(id string) string { return "promo:" + id }, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, "u1"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := limiter.Allow(ctx, "u1"); !pkgerrors.IsCode(err, pkgerrors.CodeRateLimit) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if store.lastScope != "promo:u1" {
		t.Fatalf("unexpected scope %q", store.lastScope)
	}
}

func TestLimiterDisabledAndErrors(t *testing.T) {
	var nilLimiter *Limiter
	if err := nilLimiter.Allow(context.Background(), "u1"); err != nil {
		t.Fatalf("nil limiter should allow: %v", err)
	}
	if err := NewLimiter(&stubWindow{}, nil, 0, time.Minute).Allow(context.Background(), "u1"); err != nil {
		t.Fatalf("zero limit should allow: %v", err)
	}
	failing := NewLimiter(&stubWindow{err: errors.New("down")}, nil, 1, time.Minute)
	if err := failing.Allow(context.Background(), "u1"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
