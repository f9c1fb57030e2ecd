package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/delivery"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/promo"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

type memCart struct {
	mu     sync.Mutex
	items  map[string][]cart.Item
	clears int
}

func newMemCart(userID string, items ...cart.Item) *memCart {
	return &memCart{items: map[string][]cart.Item{userID: items}}
}

func (c *memCart) Items(_ context.Context, userID string) ([]cart.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cart.Item(nil), c.items[userID]...), nil
}

func (c *memCart) Clear(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, userID)
	c.clears++
	return nil
}

func (c *memCart) add(userID string, item cart.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[userID] = append(c.items[userID], item)
}

func (c *memCart) size(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items[userID])
}

type recordingOrders struct {
	mu        sync.Mutex
	drafts    []orders.Draft
	bySession map[uuid.UUID]*orders.OrderDTO
	err       error
}

func newRecordingOrders() *recordingOrders {
	return &recordingOrders{bySession: map[uuid.UUID]*orders.OrderDTO{}}
}

func (r *recordingOrders) Append(_ context.Context, draft orders.Draft) (*orders.OrderDTO, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, false, r.err
	}
	if existing, ok := r.bySession[draft.SessionID]; ok {
		return existing, false, nil
	}
	r.drafts = append(r.drafts, draft)
	dto := &orders.OrderDTO{ID: uuid.New(), SessionID: draft.SessionID, Total: draft.Price.PostDiscountSubtotal}
	r.bySession[draft.SessionID] = dto
	return dto, true, nil
}

func (r *recordingOrders) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}

func (r *recordingOrders) last() orders.Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drafts[len(r.drafts)-1]
}

type paymentLog struct {
	mu     sync.Mutex
	states []string
}

func (p *paymentLog) ObservePayment(method, state string, _ time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, method+":"+state)
}

func (p *paymentLog) observed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.states...)
}

type machineFixture struct {
	machine  *Machine
	cart     *memCart
	orders   *recordingOrders
	gateway  *payments.SimulatedGateway
	payments *paymentLog
}

type fixtureOptions struct {
	cardDelay   time.Duration
	walletDelay time.Duration
	resetDelay  time.Duration
	timeout     time.Duration
	limiter     promoLimiter
}

const testUser = "user-1"

func newFixture(t *testing.T, opts fixtureOptions) *machineFixture {
	t.Helper()
	if opts.resetDelay == 0 {
		opts.resetDelay = time.Hour
	}
	gateway := payments.NewSimulatedGateway(opts.cardDelay, opts.walletDelay)
	payLog := &paymentLog{}
	dispatcher, err := payments.NewDispatcher(gateway, nil,
		payments.WithMetrics(payLog),
		payments.WithTimeout(opts.timeout),
	)
	require.NoError(t, err)

	c := newMemCart(testUser,
		cart.Item{ProductID: 1, Name: "Ko'ylak", UnitPrice: 50000, Quantity: 1, SelectedSize: "M"},
		cart.Item{ProductID: 2, Name: "Shim", UnitPrice: 25000, Quantity: 2},
	)
	recorder := newRecordingOrders()
	m, err := NewMachine(Deps{
		Store:      NewMemoryStore(time.Hour),
		Cart:       c,
		Promos:     promo.NewDefaultRegistry(),
		PromoLimit: opts.limiter,
		Rates:      delivery.NewTable(),
		Dispatcher: dispatcher,
		Orders:     recorder,
		ResetDelay: opts.resetDelay,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return &machineFixture{machine: m, cart: c, orders: recorder, gateway: gateway, payments: payLog}
}

// toPayment walks a fresh session to the payment step.
func (f *machineFixture) toPayment(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	v, err := f.machine.Open(ctx, testUser, Contact{})
	require.NoError(t, err)
	id := v.Session.ID

	_, err = f.machine.SubmitContact(ctx, testUser, id, Contact{FullName: "Aziz Karimov", Phone: "901234567"})
	require.NoError(t, err)
	v, err = f.machine.SubmitDelivery(ctx, testUser, id, DeliveryInput{Region: "tashkent", ServiceTier: "express", Address: "Chilonzor 9"})
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepPayment, v.Session.Step)
	return id
}

// step returns the current step, or zero when the session cannot be read.
func (f *machineFixture) step(id uuid.UUID) enums.CheckoutStep {
	v, err := f.machine.Get(context.Background(), testUser, id)
	if err != nil {
		return 0
	}
	return v.Session.Step
}

func TestCashFinalizesSynchronouslyAndResets(t *testing.T) {
	f := newFixture(t, fixtureOptions{resetDelay: 50 * time.Millisecond})
	ctx := context.Background()
	id := f.toPayment(t)

	_, err := f.machine.ApplyPromo(ctx, testUser, id, "chegirma30")
	require.NoError(t, err)

	v, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepSuccess, v.Session.Step)
	require.NotNil(t, v.Session.OrderID)
	require.Equal(t, 1, f.orders.count())

	draft := f.orders.last()
	assert.Equal(t, enums.PaymentMethodCash, draft.PaymentMethod)
	assert.Equal(t, "+998 90 123 45 67", draft.Phone)
	assert.Equal(t, int64(100000), draft.Price.Subtotal)
	assert.Equal(t, int64(30000), draft.Price.PromoDiscountAmount)
	assert.Equal(t, int64(70000), draft.Price.PostDiscountSubtotal)
	assert.Equal(t, int64(50000), draft.Price.DeliveryFee)
	assert.Equal(t, "1 day", draft.Price.LeadTime)
	assert.Equal(t, int64(120000), draft.Price.GrandTotal)
	assert.Empty(t, f.payments.observed(), "cash settles without the dispatcher")

	require.Eventually(t, func() bool {
		return f.step(id) == enums.CheckoutStepContact
	}, 2*time.Second, 10*time.Millisecond)

	after, err := f.machine.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Nil(t, after.Session.Promo)
	assert.Nil(t, after.Session.OrderID)
	assert.Equal(t, enums.PaymentStateIdle, after.Session.Payment.State)
	assert.Equal(t, 0, f.cart.size(testUser))
	assert.Empty(t, after.Items)
	assert.Equal(t, int64(0), after.Price.PromoDiscountAmount)
}

func TestBarePrefixPhoneDoesNotAdvance(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	v, err := f.machine.Open(ctx, testUser, Contact{})
	require.NoError(t, err)
	id := v.Session.ID

	_, err = f.machine.SubmitContact(ctx, testUser, id, Contact{FullName: "Aziz", Phone: "+998 "})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	got, err := f.machine.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepContact, got.Session.Step)
	assert.Equal(t, "Aziz", got.Session.Contact.FullName)
	assert.Equal(t, PhonePrefix, got.Session.Contact.Phone)

	_, err = f.machine.SubmitContact(ctx, testUser, id, Contact{FullName: "  ", Phone: "+998 90 123 45 67"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, enums.CheckoutStepContact, f.step(id))
}

func TestDeliveryStepValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	v, err := f.machine.Open(ctx, testUser, Contact{FullName: "Aziz", Phone: "+998901234567"})
	require.NoError(t, err)
	id := v.Session.ID
	_, err = f.machine.SubmitContact(ctx, testUser, id, v.Session.Contact)
	require.NoError(t, err)

	_, err = f.machine.SubmitDelivery(ctx, testUser, id, DeliveryInput{Region: "", Address: "Yunusobod"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.machine.SubmitDelivery(ctx, testUser, id, DeliveryInput{Region: "samarkand", Address: "   "})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.machine.SubmitDelivery(ctx, testUser, id, DeliveryInput{Region: "samarkand", ServiceTier: "rocket", Address: "Registon"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, enums.CheckoutStepDelivery, f.step(id))

	v, err = f.machine.SubmitDelivery(ctx, testUser, id, DeliveryInput{Region: "Samarkand", Address: "Registon"})
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepPayment, v.Session.Step)
	assert.Equal(t, enums.ServiceTierStandard, v.Session.Delivery.Tier)
	assert.Equal(t, int64(40000), v.Price.DeliveryFee)
}

func TestBackKeepsEnteredData(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	id := f.toPayment(t)

	v, err := f.machine.Back(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepDelivery, v.Session.Step)
	v, err = f.machine.Back(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepContact, v.Session.Step)
	assert.Equal(t, "Aziz Karimov", v.Session.Contact.FullName)
	assert.Equal(t, "Chilonzor 9", v.Session.Address)
	assert.Equal(t, enums.RegionTashkent, v.Session.Delivery.Region)
	assert.Equal(t, enums.ServiceTierExpress, v.Session.Delivery.Tier)

	_, err = f.machine.Back(ctx, testUser, id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestForwardSkippingIsRejected(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	v, err := f.machine.Open(ctx, testUser, Contact{})
	require.NoError(t, err)
	id := v.Session.ID

	_, err = f.machine.SubmitDelivery(ctx, testUser, id, DeliveryInput{Region: "tashkent", Address: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "cash"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.machine.SelectPayment(ctx, testUser, id, "card")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 0, f.orders.count())
	assert.Equal(t, enums.CheckoutStepContact, f.step(id))
}

func TestUnknownPromoKeepsPriorDiscount(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	id := f.toPayment(t)

	v, err := f.machine.ApplyPromo(ctx, testUser, id, "CHEGIRMA30")
	require.NoError(t, err)
	assert.Equal(t, 30, v.Price.DiscountPercent)

	_, err = f.machine.ApplyPromo(ctx, testUser, id, "BOGUS")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	quote, err := f.machine.Quote(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, 30, quote.DiscountPercent)
	assert.Equal(t, int64(30000), quote.PromoDiscountAmount)

	v, err = f.machine.ApplyPromo(ctx, testUser, id, "yangi10")
	require.NoError(t, err)
	assert.Equal(t, 10, v.Price.DiscountPercent)
	assert.Equal(t, "YANGI10", v.Session.Promo.Code)

	v, err = f.machine.RemovePromo(ctx, testUser, id)
	require.NoError(t, err)
	assert.Nil(t, v.Session.Promo)
	assert.Equal(t, 0, v.Price.DiscountPercent)
	assert.Equal(t, int64(0), v.Price.PromoDiscountAmount)
}

func TestCardFinalizesOnlyAfterCompletion(t *testing.T) {
	f := newFixture(t, fixtureOptions{cardDelay: 150 * time.Millisecond})
	ctx := context.Background()
	id := f.toPayment(t)

	v, err := f.machine.Submit(ctx, testUser, id, SubmitInput{
		Method: "card",
		Card:   &payments.CardDetails{Number: "8600123456789012", Holder: "aziz karimov", Expiry: "0927", CVV: "123"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepPayment, v.Session.Step)
	assert.Equal(t, enums.PaymentStateProcessing, v.Session.Payment.State)
	assert.Nil(t, v.Session.OrderID)
	assert.Equal(t, 0, f.orders.count())

	_, err = f.machine.Back(ctx, testUser, id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.machine.Submit(ctx, testUser, id, SubmitInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	require.Eventually(t, func() bool {
		return f.step(id) == enums.CheckoutStepSuccess
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, f.orders.count())
	draft := f.orders.last()
	assert.Equal(t, enums.PaymentMethodCard, draft.PaymentMethod)
	assert.NotEmpty(t, draft.PaymentReference)

	got, err := f.machine.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStateCompleted, got.Session.Payment.State)
}

func TestCardWithMissingFieldsIsRejected(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	id := f.toPayment(t)

	_, err := f.machine.Submit(ctx, testUser, id, SubmitInput{
		Method: "card",
		Card:   &payments.CardDetails{Number: "8600123456789012", Holder: "aziz", Expiry: "0927"},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	got, err := f.machine.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStateIdle, got.Session.Payment.State)
	assert.Equal(t, enums.PaymentMethodCard, got.Session.PaymentMethod)
	assert.Equal(t, 0, f.orders.count())
}

func TestCancelAbortsInFlightPayment(t *testing.T) {
	f := newFixture(t, fixtureOptions{walletDelay: time.Hour})
	ctx := context.Background()
	id := f.toPayment(t)

	_, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "payme"})
	require.NoError(t, err)
	require.NoError(t, f.machine.Cancel(ctx, testUser, id))

	_, err = f.machine.Get(ctx, testUser, id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, f.orders.count())
	assert.Equal(t, 2, f.cart.size(testUser))
}

func TestPaymentFailureKeepsPaymentStep(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.gateway.WithDecline(func(payments.Charge) error { return errors.New("insufficient funds") })
	ctx := context.Background()
	id := f.toPayment(t)

	_, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "click"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := f.machine.Get(ctx, testUser, id)
		return err == nil && v.Session.Payment.State == enums.PaymentStateFailed
	}, 2*time.Second, 10*time.Millisecond)
	got, err := f.machine.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepPayment, got.Session.Step)
	assert.NotEmpty(t, got.Session.Payment.Error)
	assert.Equal(t, 0, f.orders.count())

	_, err = f.machine.SelectPayment(ctx, testUser, id, "cash")
	require.NoError(t, err)
	v, err := f.machine.Submit(ctx, testUser, id, SubmitInput{})
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepSuccess, v.Session.Step)
	assert.Equal(t, 1, f.orders.count())
}

func TestFinalizeRunsOncePerSession(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	id := f.toPayment(t)

	s, err := f.machine.store.Get(ctx, id)
	require.NoError(t, err)
	snap, err := f.machine.snapshot(ctx, s)
	require.NoError(t, err)
	require.NoError(t, f.machine.finalize(ctx, s, enums.PaymentMethodCash, "", snap))
	first := *s.OrderID
	require.NoError(t, f.machine.finalize(ctx, s, enums.PaymentMethodClick, "ref", snap))
	assert.Equal(t, first, *s.OrderID)
	assert.Equal(t, 1, f.orders.count())
}

func TestFinalizeFailureAfterPaymentIsReported(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.orders.err = errors.New("db down")
	ctx := context.Background()
	id := f.toPayment(t)

	_, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "payme"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, err := f.machine.Get(ctx, testUser, id)
		return err == nil && v.Session.Payment.State == enums.PaymentStateFailed
	}, 2*time.Second, 10*time.Millisecond)
	got, err := f.machine.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, orderSaveFailed, got.Session.Payment.Error)
	assert.Nil(t, got.Session.OrderID)
}

func TestSessionsAreScopedToTheirUser(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	id := f.toPayment(t)
	_, err := f.machine.Get(context.Background(), "intruder", id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	err = f.machine.Cancel(context.Background(), "intruder", id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestOpenRequiresItems(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, err := f.machine.Open(context.Background(), "empty-cart", Contact{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.machine.Open(context.Background(), "", Contact{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) error {
	return pkgerrors.New(pkgerrors.CodeRateLimit, "too many promo code attempts")
}

func TestPromoAttemptsAreRateLimited(t *testing.T) {
	f := newFixture(t, fixtureOptions{limiter: denyLimiter{}})
	id := f.toPayment(t)
	_, err := f.machine.ApplyPromo(context.Background(), testUser, id, "CHEGIRMA30")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
	quote, err := f.machine.Quote(context.Background(), testUser, id)
	require.NoError(t, err)
	assert.Equal(t, 0, quote.DiscountPercent)
}

func TestOverdueResetAppliesOnRead(t *testing.T) {
	f := newFixture(t, fixtureOptions{resetDelay: time.Hour})
	ctx := context.Background()
	id := f.toPayment(t)

	v, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepSuccess, v.Session.Step)
	_, err = f.machine.ApplyPromo(ctx, testUser, id, "CHEGIRMA30")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	err = f.machine.Cancel(ctx, testUser, id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	f.machine.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	got, err := f.machine.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepContact, got.Session.Step)
	assert.Equal(t, 0, f.cart.size(testUser))
}

func TestResetSessionTakesASecondOrder(t *testing.T) {
	f := newFixture(t, fixtureOptions{resetDelay: 20 * time.Millisecond})
	ctx := context.Background()
	id := f.toPayment(t)

	first, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "cash"})
	require.NoError(t, err)
	require.NotNil(t, first.Session.OrderID)
	require.Eventually(t, func() bool {
		return f.step(id) == enums.CheckoutStepContact
	}, 2*time.Second, 10*time.Millisecond)

	f.cart.add(testUser, cart.Item{ProductID: 3, Name: "Kepka", UnitPrice: 30000, Quantity: 1})
	v, err := f.machine.SubmitContact(ctx, testUser, id, Contact{FullName: "Aziz Karimov", Phone: "901234567"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Session.CheckoutID, v.Session.CheckoutID)
	_, err = f.machine.SubmitDelivery(ctx, testUser, id, DeliveryInput{Region: "tashkent", Address: "Chilonzor 9"})
	require.NoError(t, err)

	second, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepSuccess, second.Session.Step)
	require.NotNil(t, second.Session.OrderID)
	assert.NotEqual(t, *first.Session.OrderID, *second.Session.OrderID)
	require.Equal(t, 2, f.orders.count())

	draft := f.orders.last()
	assert.Equal(t, second.Session.CheckoutID, draft.SessionID)
	require.Len(t, draft.Items, 1)
	assert.Equal(t, int64(3), draft.Items[0].ProductID)
}

func TestOrderRecordsCartPricedAtSubmit(t *testing.T) {
	f := newFixture(t, fixtureOptions{walletDelay: 100 * time.Millisecond})
	ctx := context.Background()
	id := f.toPayment(t)

	v, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "click"})
	require.NoError(t, err)
	charged := v.Price.GrandTotal
	f.cart.add(testUser, cart.Item{ProductID: 9, Name: "Sharf", UnitPrice: 90000, Quantity: 1})

	require.Eventually(t, func() bool {
		return f.step(id) == enums.CheckoutStepSuccess
	}, 2*time.Second, 10*time.Millisecond)
	draft := f.orders.last()
	assert.Len(t, draft.Items, 2)
	assert.Equal(t, charged, draft.Price.GrandTotal)
}

func TestSettledTaskIsNotTracked(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	id := f.toPayment(t)

	_, err := f.machine.Submit(ctx, testUser, id, SubmitInput{Method: "payme"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.step(id) == enums.CheckoutStepSuccess
	}, 2*time.Second, 10*time.Millisecond)

	f.machine.mu.Lock()
	defer f.machine.mu.Unlock()
	assert.Empty(t, f.machine.tasks)
}

func TestGatewayTimeoutFailsTheAttempt(t *testing.T) {
	f := newFixture(t, fixtureOptions{cardDelay: time.Hour, timeout: 20 * time.Millisecond})
	ctx := context.Background()
	id := f.toPayment(t)

	_, err := f.machine.Submit(ctx, testUser, id, SubmitInput{
		Method: "card",
		Card:   &payments.CardDetails{Number: "8600123456789012", Holder: "aziz karimov", Expiry: "0927", CVV: "123"},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, err := f.machine.Get(ctx, testUser, id)
		return err == nil && v.Session.Payment.State == enums.PaymentStateFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := f.machine.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepPayment, got.Session.Step)
	assert.Equal(t, "payment gateway timed out", got.Session.Payment.Error)
	assert.Equal(t, 0, f.orders.count())
	assert.Equal(t, []string{"card:failed"}, f.payments.observed())
}
