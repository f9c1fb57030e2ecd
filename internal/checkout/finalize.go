package checkout

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/google/uuid"
)

const orderSaveFailed = "order could not be saved, please try again"

func (m *Machine) startPayment(ctx context.Context, s *Session, method payments.Method, charge payments.Charge, snap cartSnapshot) error {
	started := m.now().UTC()
	attempt := s.Payment.Attempt + 1
	s.Payment = Payment{
		State:     enums.PaymentStateProcessing,
		Method:    method.Kind(),
		Attempt:   attempt,
		StartedAt: &started,
	}
	// Persist before dispatching so the completion callback sees the attempt.
	if err := m.store.Save(ctx, s); err != nil {
		return err
	}

	userID, id := s.UserID, s.ID
	task, err := m.dispatcher.Dispatch(ctx, method, charge, func(cbCtx context.Context, outcome payments.Outcome) {
		m.complete(cbCtx, userID, id, attempt, snap, outcome)
	})
	if err != nil {
		s.Payment = Payment{State: enums.PaymentStateIdle, Method: method.Kind(), Attempt: attempt}
		return err
	}
	m.putTask(id, task)
	m.logg.Info(ctx, "payment dispatched")
	return nil
}

// complete is the payment callback. It finalizes only the attempt it was started for.
func (m *Machine) complete(ctx context.Context, userID string, id uuid.UUID, attempt int, snap cartSnapshot, outcome payments.Outcome) {
	m.dropTask(id)
	unlock := m.locks.lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil || s.UserID != userID {
		m.logg.Warn(m.logg.WithSessionID(ctx, id.String()), "payment settled for a session that no longer exists")
		return
	}
	ctx = m.logCtx(ctx, s)
	if !s.processing() || s.Payment.Attempt != attempt {
		m.logg.Warn(ctx, "ignoring stale payment outcome")
		return
	}

	if !outcome.Succeeded() {
		s.Payment.State = enums.PaymentStateFailed
		s.Payment.Error = paymentFailureMessage(outcome.Err)
	} else if err := m.finalize(ctx, s, outcome.Method, outcome.Reference, snap); err != nil {
		m.logg.Error(ctx, "finalize after payment failed", err)
		s.Payment.State = enums.PaymentStateFailed
		s.Payment.Reference = outcome.Reference
		s.Payment.Error = orderSaveFailed
	}
	s.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, s); err != nil {
		m.logg.Error(ctx, "save session after payment", err)
	}
}

// finalize is the only place orders are created. The order records snap, the
// cart as priced at submit. A session that already has an order is left alone,
// and orders.Append is idempotent per checkout pass as well.
func (m *Machine) finalize(ctx context.Context, s *Session, method enums.PaymentMethod, reference string, snap cartSnapshot) error {
	if s.OrderID != nil {
		return nil
	}
	if len(snap.items) == 0 {
		return pkgerrors.Validation("cart is empty", pkgerrors.FieldViolation{Field: "cart", Reason: "empty"})
	}

	order, created, err := m.orders.Append(ctx, orders.Draft{
		SessionID:        s.orderKey(),
		UserID:           s.UserID,
		CustomerName:     s.Contact.FullName,
		Phone:            s.Contact.Phone,
		Address:          s.Address,
		PaymentMethod:    method,
		PaymentReference: reference,
		Items:            snap.items,
		Price:            snap.price,
	})
	if err != nil {
		return err
	}

	now := m.now().UTC()
	orderID := order.ID
	s.OrderID = &orderID
	s.PaymentMethod = method
	s.Payment.State = enums.PaymentStateCompleted
	s.Payment.Method = method
	s.Payment.Reference = reference
	s.Payment.Error = ""
	s.CompletedAt = &now
	m.advance(s, enums.CheckoutStepSuccess)
	if created && m.metrics != nil {
		m.metrics.IncOrder(string(method))
	}
	m.logg.Info(m.logg.WithOrderID(ctx, orderID.String()), "checkout finalized")
	m.scheduleReset(s.UserID, s.ID)
	return nil
}

func (m *Machine) scheduleReset(userID string, id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if existing, ok := m.timers[id]; ok {
		existing.Stop()
	}
	m.timers[id] = time.AfterFunc(m.resetDelay, func() {
		m.reset(context.Background(), userID, id)
	})
}

func (m *Machine) reset(ctx context.Context, userID string, id uuid.UUID) {
	m.mu.Lock()
	delete(m.timers, id)
	m.mu.Unlock()

	unlock := m.locks.lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil || s.UserID != userID || s.Step != enums.CheckoutStepSuccess {
		return
	}
	if err := m.resetLocked(ctx, s); err != nil {
		m.logg.Error(m.logCtx(ctx, s), "reset checkout session", err)
	}
}

// resetLocked empties the cart and returns the session to step one. Caller holds the session lock.
func (m *Machine) resetLocked(ctx context.Context, s *Session) error {
	clearErr := m.cart.Clear(ctx, s.UserID)
	from := s.Step
	s.resetAfterSuccess(m.now().UTC())
	if m.metrics != nil {
		m.metrics.IncTransition(int(from), int(s.Step))
	}
	saveErr := m.store.Save(ctx, s)
	if err := combine(clearErr, saveErr); err != nil {
		return err
	}
	m.logg.Info(m.logCtx(ctx, s), "checkout session reset")
	return nil
}

func (m *Machine) resetDue(s *Session) bool {
	if s.Step != enums.CheckoutStepSuccess || s.CompletedAt == nil {
		return false
	}
	return !m.now().UTC().Before(s.CompletedAt.Add(m.resetDelay))
}

// putTask tracks an in-flight task. A task that already settled is skipped:
// its completion may have run dropTask before Dispatch returned.
func (m *Machine) putTask(id uuid.UUID, task *payments.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		task.Cancel()
		return
	}
	if _, settled := task.Outcome(); settled {
		return
	}
	m.tasks[id] = task
}

func (m *Machine) takeTask(id uuid.UUID) *payments.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[id]
	delete(m.tasks, id)
	return task
}

func (m *Machine) dropTask(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

func paymentFailureMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return pkgerrors.MetadataFor(pkgerrors.CodePaymentFailed).PublicMessage
}
