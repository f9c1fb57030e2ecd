package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// CompletionFunc receives the outcome of a settled attempt. It is not called for canceled tasks.
type CompletionFunc func(ctx context.Context, outcome Outcome)

type paymentObserver interface {
	ObservePayment(method, state string, duration time.Duration)
}

// Dispatcher runs payment methods against a gateway.
type Dispatcher struct {
	gateway Gateway
	logg    *logger.Logger
	metrics paymentObserver
	timeout time.Duration
	now     func() time.Time
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics records payment outcomes.
func WithMetrics(m paymentObserver) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTimeout bounds each gateway call. Zero disables the bound.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher builds a dispatcher for gateway.
func NewDispatcher(gateway Gateway, logg *logger.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	d := &Dispatcher{gateway: gateway, logg: logg, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch validates m and starts a gateway round trip, returning the
// processing task. Cash never reaches the gateway and is rejected here.
func (d *Dispatcher) Dispatch(ctx context.Context, m Method, charge Charge, onComplete CompletionFunc) (*Task, error) {
	if m == nil {
		return nil, pkgerrors.Validation("payment method is required", pkgerrors.FieldViolation{Field: "method", Reason: "required"})
	}
	gm, ok := m.(gatewayMethod)
	if !ok {
		return nil, pkgerrors.Validation("payment method does not use the gateway",
			pkgerrors.FieldViolation{Field: "method", Reason: "not dispatchable"})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	charge.Method = m.Kind()
	return gm.dispatch(ctx, d, charge, onComplete)
}

func (d *Dispatcher) settleAsync(ctx context.Context, m Method, charge Charge, onComplete CompletionFunc) (*Task, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if d.timeout > 0 {
		runCtx, cancel = withTimeout(runCtx, cancel, d.timeout)
	}
	task := newTask(cancel)
	started := d.now()

	go func() {
		defer cancel()
		ref, err := d.gateway.Authorize(runCtx, charge)
		outcome := Outcome{Method: m.Kind(), Reference: ref}
		switch {
		case err == nil:
			outcome.State = enums.PaymentStateCompleted
		case errors.Is(err, context.Canceled):
			outcome.State = enums.PaymentStateFailed
			outcome.Err = ErrCanceled
		case errors.Is(err, context.DeadlineExceeded):
			outcome.State = enums.PaymentStateFailed
			outcome.Err = pkgerrors.Wrap(pkgerrors.CodeRequestTimeout, err, "payment gateway timed out")
		default:
			outcome.State = enums.PaymentStateFailed
			outcome.Err = pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "payment was declined")
		}

		task.resolve(outcome)
		d.observe(m.Kind(), outcome, d.now().Sub(started))

		logCtx := d.logg.WithFields(ctx, map[string]any{
			"payment_method": string(m.Kind()),
			"payment_state":  string(outcome.State),
		})
		if outcome.Canceled() {
			d.logg.Info(logCtx, "payment canceled before settlement")
			return
		}
		if outcome.Err != nil {
			d.logg.Warn(logCtx, "payment attempt failed: "+outcome.Err.Error())
		}
		if onComplete != nil {
			onComplete(context.WithoutCancel(ctx), outcome)
		}
	}()

	return task, nil
}

func (d *Dispatcher) observe(method enums.PaymentMethod, outcome Outcome, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	state := string(outcome.State)
	if outcome.Canceled() {
		state = "canceled"
	}
	d.metrics.ObservePayment(string(method), state, elapsed)
}

func withTimeout(parent context.Context, cancelParent context.CancelFunc, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		cancel()
		cancelParent()
	}
}
