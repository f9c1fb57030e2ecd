package payments

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// ErrCanceled is the outcome error of a task aborted before settlement.
var ErrCanceled = errors.New("payment canceled")

// Outcome is the terminal result of one payment attempt.
type Outcome struct {
	State     enums.PaymentState
	Method    enums.PaymentMethod
	Reference string
	Err       error
}

// Succeeded reports whether the attempt completed.
func (o Outcome) Succeeded() bool {
	return o.State == enums.PaymentStateCompleted && o.Err == nil
}

// Canceled reports whether the attempt was aborted.
func (o Outcome) Canceled() bool {
	return errors.Is(o.Err, ErrCanceled)
}

// Task is a cancellable in-flight payment. It resolves exactly once.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	once    sync.Once
	outcome Outcome
}

func newTask(cancel context.CancelFunc) *Task {
	if cancel == nil {
		cancel = func() {}
	}
	return &Task{cancel: cancel, done: make(chan struct{})}
}

func (t *Task) resolve(outcome Outcome) bool {
	resolved := false
	t.once.Do(func() {
		t.outcome = outcome
		resolved = true
		close(t.done)
	})
	return resolved
}

// Done is closed once the task has an outcome.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel aborts the gateway call. It has no effect after settlement.
func (t *Task) Cancel() {
	t.cancel()
}

// Outcome returns the result and whether the task has settled.
func (t *Task) Outcome() (Outcome, bool) {
	select {
	case <-t.done:
		return t.outcome, true
	default:
		return Outcome{State: enums.PaymentStateProcessing}, false
	}
}

// Wait blocks until the task settles or ctx ends.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{State: enums.PaymentStateProcessing}, ctx.Err()
	}
}
