package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/google/uuid"
)

// Charge is what a gateway is asked to settle.
type Charge struct {
	SessionID string
	UserID    string
	Method    enums.PaymentMethod
	Amount    int64
	// Hint is a non-sensitive description such as a masked card number.
	Hint string
}

// Gateway settles a charge and returns the provider reference.
type Gateway interface {
	Authorize(ctx context.Context, charge Charge) (string, error)
}

// SimulatedGateway waits a fixed per-method delay and then approves.
type SimulatedGateway struct {
	delays  map[enums.PaymentMethod]time.Duration
	decline func(Charge) error
}

// NewSimulatedGateway uses cardDelay for cards and walletDelay for Click and Payme.
func NewSimulatedGateway(cardDelay, walletDelay time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		delays: map[enums.PaymentMethod]time.Duration{
			enums.PaymentMethodCard:  cardDelay,
			enums.PaymentMethodClick: walletDelay,
			enums.PaymentMethodPayme: walletDelay,
		},
	}
}

// WithDecline installs a hook that can refuse charges after the delay.
func (g *SimulatedGateway) WithDecline(fn func(Charge) error) *SimulatedGateway {
	g.decline = fn
	return g
}

// Authorize blocks for the method delay, honoring ctx.
func (g *SimulatedGateway) Authorize(ctx context.Context, charge Charge) (string, error) {
	if delay := g.delays[charge.Method]; delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.decline != nil {
		if err := g.decline(charge); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("sim-%s-%s", charge.Method, strings.ReplaceAll(uuid.NewString(), "-", "")[:12]), nil
}
