// Package checkout drives the four step checkout wizard: contact, delivery,
// payment and success. Every session is serialized by its own lock; payment
// completion and the post-success reset run on background goroutines.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/pricing"
	"github.com/angelmondragon/storefront-checkout/internal/promo"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type cartSource interface {
	Items(ctx context.Context, userID string) ([]cart.Item, error)
	Clear(ctx context.Context, userID string) error
}

type orderAppender interface {
	Append(ctx context.Context, draft orders.Draft) (*orders.OrderDTO, bool, error)
}

type promoLimiter interface {
	Allow(ctx context.Context, userID string) error
}

type checkoutObserver interface {
	IncTransition(from, to int)
	IncOrder(method string)
	IncPromo(result string)
}

// Deps groups the collaborators of a Machine. PromoLimit and Metrics are optional.
type Deps struct {
	Store      Store
	Cart       cartSource
	Promos     promo.Resolver
	PromoLimit promoLimiter
	Rates      pricing.RateSource
	Dispatcher *payments.Dispatcher
	Orders     orderAppender
	Metrics    checkoutObserver
	Logger     *logger.Logger
	ResetDelay time.Duration
}

// DeliveryInput is the raw step two form.
type DeliveryInput struct {
	Region      string
	ServiceTier string
	Address     string
}

// SubmitInput is the step three submit. Method overrides the selected method when set.
type SubmitInput struct {
	Method string
	Card   *payments.CardDetails
}

// View is a session plus its live price breakdown.
type View struct {
	Session *Session          `json:"session"`
	Items   []cart.Item       `json:"items"`
	Price   pricing.Breakdown `json:"price"`
}

// Machine is the checkout state machine.
type Machine struct {
	store      Store
	cart       cartSource
	promos     promo.Resolver
	limiter    promoLimiter
	rates      pricing.RateSource
	dispatcher *payments.Dispatcher
	orders     orderAppender
	metrics    checkoutObserver
	logg       *logger.Logger
	resetDelay time.Duration
	now        func() time.Time

	locks *sessionLocks

	mu     sync.Mutex
	tasks  map[uuid.UUID]*payments.Task
	timers map[uuid.UUID]*time.Timer
	closed bool
}

// NewMachine validates deps and builds a Machine.
func NewMachine(deps Deps) (*Machine, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("session store required")
	case deps.Cart == nil:
		return nil, fmt.Errorf("cart source required")
	case deps.Promos == nil:
		return nil, fmt.Errorf("promo resolver required")
	case deps.Rates == nil:
		return nil, fmt.Errorf("delivery rates required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("payment dispatcher required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("order appender required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Machine{
		store:      deps.Store,
		cart:       deps.Cart,
		promos:     deps.Promos,
		limiter:    deps.PromoLimit,
		rates:      deps.Rates,
		dispatcher: deps.Dispatcher,
		orders:     deps.Orders,
		metrics:    deps.Metrics,
		logg:       logg,
		resetDelay: deps.ResetDelay,
		now:        time.Now,
		locks:      newSessionLocks(),
		tasks:      map[uuid.UUID]*payments.Task{},
		timers:     map[uuid.UUID]*time.Timer{},
	}, nil
}

// Open starts a session at the contact step. The cart must not be empty.
func (m *Machine) Open(ctx context.Context, userID string, prefill Contact) (*View, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	items, err := m.cart.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.Validation("cart is empty", pkgerrors.FieldViolation{Field: "cart", Reason: "empty"})
	}

	s := newSession(userID, prefill, m.now().UTC())
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	m.logg.Info(m.logCtx(ctx, s), "checkout session opened")
	return m.view(s, items), nil
}

// Get returns the session view.
func (m *Machine) Get(ctx context.Context, userID string, id uuid.UUID) (*View, error) {
	return m.withSession(ctx, userID, id, func(ctx context.Context, s *Session) error { return nil })
}

// Quote prices the session against the live cart.
func (m *Machine) Quote(ctx context.Context, userID string, id uuid.UUID) (pricing.Breakdown, error) {
	v, err := m.Get(ctx, userID, id)
	if err != nil {
		return pricing.Breakdown{}, err
	}
	return v.Price, nil
}

// SubmitContact moves 1 -> 2 once a name and a phone beyond the bare prefix are present.
func (m *Machine) SubmitContact(ctx context.Context, userID string, id uuid.UUID, contact Contact) (*View, error) {
	return m.withSession(ctx, userID, id, func(ctx context.Context, s *Session) error {
		if err := requireStep(s, enums.CheckoutStepContact); err != nil {
			return err
		}
		s.Contact = Contact{
			FullName: strings.TrimSpace(contact.FullName),
			Phone:    FormatPhone(contact.Phone),
		}

		var violations []pkgerrors.FieldViolation
		if s.Contact.FullName == "" {
			violations = append(violations, pkgerrors.FieldViolation{Field: "fullName", Reason: "required"})
		}
		if IsBarePrefix(s.Contact.Phone) {
			violations = append(violations, pkgerrors.FieldViolation{Field: "phone", Reason: "required"})
		}
		if len(violations) > 0 {
			return pkgerrors.Validation("contact details are incomplete", violations...)
		}
		m.advance(s, enums.CheckoutStepDelivery)
		return nil
	})
}

// SubmitDelivery moves 2 -> 3 once region, address and tier are set. Tier defaults to standard.
func (m *Machine) SubmitDelivery(ctx context.Context, userID string, id uuid.UUID, input DeliveryInput) (*View, error) {
	return m.withSession(ctx, userID, id, func(ctx context.Context, s *Session) error {
		if err := requireStep(s, enums.CheckoutStepDelivery); err != nil {
			return err
		}
		var violations []pkgerrors.FieldViolation

		s.Address = strings.TrimSpace(input.Address)
		if s.Address == "" {
			violations = append(violations, pkgerrors.FieldViolation{Field: "address", Reason: "required"})
		}

		if strings.TrimSpace(input.Region) == "" {
			s.Delivery.Region = ""
			violations = append(violations, pkgerrors.FieldViolation{Field: "region", Reason: "required"})
		} else if region, err := enums.ParseRegion(input.Region); err != nil {
			violations = append(violations, pkgerrors.FieldViolation{Field: "region", Reason: "unsupported"})
		} else {
			s.Delivery.Region = region
		}

		if tier, err := enums.ParseServiceTier(input.ServiceTier); err != nil {
			violations = append(violations, pkgerrors.FieldViolation{Field: "serviceTier", Reason: "unsupported"})
		} else {
			s.Delivery.Tier = tier
		}

		if len(violations) > 0 {
			return pkgerrors.Validation("delivery details are incomplete", violations...)
		}
		m.advance(s, enums.CheckoutStepPayment)
		return nil
	})
}

// Back moves 2 -> 1 or 3 -> 2 keeping every entered field.
func (m *Machine) Back(ctx context.Context, userID string, id uuid.UUID) (*View, error) {
	return m.withSession(ctx, userID, id, func(ctx context.Context, s *Session) error {
		switch s.Step {
		case enums.CheckoutStepDelivery:
			m.advance(s, enums.CheckoutStepContact)
		case enums.CheckoutStepPayment:
			// The pending callback finalizes against this step, so the
			// way back opens once the attempt settles or is canceled.
			if s.processing() {
				return stateConflict(s, "payment is in progress")
			}
			m.advance(s, enums.CheckoutStepDelivery)
		default:
			return stateConflict(s, "cannot go back from this step")
		}
		return nil
	})
}

// ApplyPromo replaces the active promo. A miss leaves the session unchanged.
func (m *Machine) ApplyPromo(ctx context.Context, userID string, id uuid.UUID, code string) (*View, error) {
	return m.withSession(ctx, userID, id, func(ctx context.Context, s *Session) error {
		if err := requireEditable(s); err != nil {
			return err
		}
		if m.limiter != nil {
			if err := m.limiter.Allow(ctx, userID); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeRateLimit) {
					m.incPromo("rate_limited")
				}
				return err
			}
		}
		applied, err := m.promos.Resolve(code)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				m.incPromo("not_found")
			}
			return err
		}
		s.Promo = &applied
		m.incPromo("applied")
		return nil
	})
}

// RemovePromo clears the active promo.
func (m *Machine) RemovePromo(ctx context.Context, userID string, id uuid.UUID) (*View, error) {
	return m.withSession(ctx, userID, id, func(ctx context.Context, s *Session) error {
		if err := requireEditable(s); err != nil {
			return err
		}
		s.Promo = nil
		return nil
	})
}

// SelectPayment sets the method used by Submit. It clears a previous failure.
func (m *Machine) SelectPayment(ctx context.Context, userID string, id uuid.UUID, method string) (*View, error) {
	return m.withSession(ctx, userID, id, func(ctx context.Context, s *Session) error {
		if err := requireStep(s, enums.CheckoutStepPayment); err != nil {
			return err
		}
		if s.processing() {
			return stateConflict(s, "payment is in progress")
		}
		kind, err := enums.ParsePaymentMethod(method)
		if err != nil {
			return pkgerrors.Validation("unsupported payment method", pkgerrors.FieldViolation{Field: "method", Reason: "unsupported"})
		}
		s.PaymentMethod = kind
		s.Payment.State = enums.PaymentStateIdle
		s.Payment.Error = ""
		return nil
	})
}

// Submit confirms step three. Cash finalizes before returning without touching
// the dispatcher; every other method starts a payment task and finalization
// waits for its completion. The cart is priced once here and that snapshot is
// what the order records.
func (m *Machine) Submit(ctx context.Context, userID string, id uuid.UUID, input SubmitInput) (*View, error) {
	return m.withSession(ctx, userID, id, func(ctx context.Context, s *Session) error {
		if err := requireStep(s, enums.CheckoutStepPayment); err != nil {
			return err
		}
		if s.processing() {
			return stateConflict(s, "payment is in progress")
		}
		if strings.TrimSpace(input.Method) != "" {
			kind, err := enums.ParsePaymentMethod(input.Method)
			if err != nil {
				return pkgerrors.Validation("unsupported payment method", pkgerrors.FieldViolation{Field: "method", Reason: "unsupported"})
			}
			s.PaymentMethod = kind
		}
		method, err := payments.MethodFor(s.PaymentMethod, input.Card)
		if err != nil {
			return err
		}
		if err := method.Validate(); err != nil {
			return err
		}

		snap, err := m.snapshot(ctx, s)
		if err != nil {
			return err
		}
		if payments.IsCash(method) {
			return m.finalize(ctx, s, method.Kind(), "", snap)
		}
		charge := payments.Charge{
			SessionID: s.orderKey().String(),
			UserID:    s.UserID,
			Amount:    snap.price.GrandTotal,
		}
		return m.startPayment(ctx, s, method, charge, snap)
	})
}

// Cancel discards a session before success and aborts any in-flight payment.
func (m *Machine) Cancel(ctx context.Context, userID string, id uuid.UUID) error {
	unlock := m.locks.lock(id)
	defer unlock()

	s, err := m.load(ctx, userID, id)
	if err != nil {
		return err
	}
	if s.Step == enums.CheckoutStepSuccess {
		return stateConflict(s, "checkout already completed")
	}
	if task := m.takeTask(id); task != nil {
		task.Cancel()
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logg.Info(m.logCtx(ctx, s), "checkout session canceled")
	return nil
}

// Close stops pending resets and aborts in-flight payments.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
	}
	for id, task := range m.tasks {
		task.Cancel()
		delete(m.tasks, id)
	}
}

func (m *Machine) withSession(ctx context.Context, userID string, id uuid.UUID, fn func(ctx context.Context, s *Session) error) (*View, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	unlock := m.locks.lock(id)
	defer unlock()

	s, err := m.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	ctx = m.logCtx(ctx, s)

	fnErr := fn(ctx, s)
	if fnErr != nil && !pkgerrors.IsCode(fnErr, pkgerrors.CodeValidation) {
		return nil, fnErr
	}
	s.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	if fnErr != nil {
		return nil, fnErr
	}

	items, err := m.cart.Items(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	return m.view(s, items), nil
}

// load fetches a session owned by userID, applying an overdue reset on the way.
func (m *Machine) load(ctx context.Context, userID string, id uuid.UUID) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, sessionNotFound()
	}
	if m.resetDue(s) {
		if err := m.resetLocked(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (m *Machine) view(s *Session, items []cart.Item) *View {
	if items == nil {
		items = []cart.Item{}
	}
	return &View{Session: s.clone(), Items: items, Price: m.price(s, items)}
}

func (m *Machine) price(s *Session, items []cart.Item) pricing.Breakdown {
	return pricing.Compute(cart.Lines(items), s.Promo, s.Delivery, m.rates)
}

// cartSnapshot is the cart and its price as confirmed at submit.
type cartSnapshot struct {
	items []cart.Item
	price pricing.Breakdown
}

func (m *Machine) snapshot(ctx context.Context, s *Session) (cartSnapshot, error) {
	items, err := m.cart.Items(ctx, s.UserID)
	if err != nil {
		return cartSnapshot{}, err
	}
	if len(items) == 0 {
		return cartSnapshot{}, pkgerrors.Validation("cart is empty", pkgerrors.FieldViolation{Field: "cart", Reason: "empty"})
	}
	return cartSnapshot{items: items, price: m.price(s, items)}, nil
}

func (m *Machine) advance(s *Session, to enums.CheckoutStep) {
	from := s.Step
	s.Step = to
	if m.metrics != nil {
		m.metrics.IncTransition(int(from), int(to))
	}
}

func (m *Machine) incPromo(result string) {
	if m.metrics != nil {
		m.metrics.IncPromo(result)
	}
}

func (m *Machine) logCtx(ctx context.Context, s *Session) context.Context {
	ctx = m.logg.WithSessionID(ctx, s.ID.String())
	return m.logg.WithUserID(ctx, s.UserID)
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.Validation("user id is required", pkgerrors.FieldViolation{Field: "userId", Reason: "required"})
	}
	return nil
}

func requireStep(s *Session, step enums.CheckoutStep) error {
	if s.Step != step {
		return stateConflict(s, fmt.Sprintf("checkout is not at the %s step", step))
	}
	return nil
}

func requireEditable(s *Session) error {
	if s.Step == enums.CheckoutStepSuccess {
		return stateConflict(s, "checkout already completed")
	}
	if s.processing() {
		return stateConflict(s, "payment is in progress")
	}
	return nil
}

func stateConflict(s *Session, msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).WithDetails(map[string]any{
		"step":     int(s.Step),
		"stepName": s.Step.String(),
	})
}

func combine(errs ...error) error {
	return multierr.Combine(errs...)
}
