package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/clickcart/server/internal/module/order"
	"github.com/clickcart/server/internal/module/paypal"
	"github.com/clickcart/server/internal/module/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider fakes the payment provider with per-call hooks.
type stubProvider struct {
	createOrder  func(amount paypal.Money) (*paypal.Order, error)
	captureOrder func(orderID string) (*paypal.CaptureResult, error)
	retryCapture func(orderID string) (*paypal.CaptureResult, error)
	captureCalls int
	createCalls  int
	retryCalls   int
}

func (p *stubProvider) CreateOrder(_ context.Context, amount paypal.Money, _ string) (*paypal.Order, error) {
	p.createCalls++
	if p.createOrder != nil {
		return p.createOrder(amount)
	}
	return &paypal.Order{
		ID:     "5O190127TN364715T",
		Status: paypal.StatusCreated,
		Links:  []paypal.Link{{Href: "https://provider.example/approve?token=5O190127TN364715T", Rel: "approve"}},
	}, nil
}

func (p *stubProvider) CaptureOrder(_ context.Context, orderID string) (*paypal.CaptureResult, error) {
	p.captureCalls++
	if p.captureOrder != nil {
		return p.captureOrder(orderID)
	}
	return &paypal.CaptureResult{OrderID: orderID, CaptureID: "CAP-7", Status: paypal.StatusCaptured}, nil
}

func (p *stubProvider) RetryCapture(_ context.Context, orderID string) (*paypal.CaptureResult, error) {
	p.retryCalls++
	if p.retryCapture != nil {
		return p.retryCapture(orderID)
	}
	return nil, paypal.ErrOrderNotApproved
}

func (p *stubProvider) GenerateClientToken(context.Context) (string, error) {
	return "ct-test", nil
}

type identityRates struct{}

func (identityRates) Convert(_ context.Context, amount int64, _, _ string) int64 {
	return amount
}

func testCart() Cart {
	return Cart{
		Items: []LineItem{
			{ProductID: "sku-boots", Name: "Hiking Boots", Quantity: 1, UnitPrice: 9999},
		},
		Currency: "EUR",
	}
}

func testInput() CheckoutInput {
	return CheckoutInput{
		Email: "shopper@example.com",
		Shipping: ShippingDetails{
			FullName:   "Ada Shopper",
			Line1:      "1 Main St",
			City:       "Lisbon",
			PostalCode: "1000-001",
			Country:    "PT",
		},
		FundingSource: FundingPayPal,
	}
}

func newTestService(t *testing.T, provider *stubProvider) (*Service, *order.Repository) {
	t.Helper()
	repo := order.NewRepository(store.NewMemoryStore())
	finalizer := order.NewFinalizer(repo, nil, nil)
	svc := NewService(NewMemorySessionRepository(), provider, finalizer, identityRates{}, nil, nil)
	return svc, repo
}

func TestCreateSessionRejectsEmptyCart(t *testing.T) {
	svc, _ := newTestService(t, &stubProvider{})

	_, err := svc.CreateSession(context.Background(), Cart{Currency: "EUR"})

	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateSessionRejectsNonPositiveTotal(t *testing.T) {
	provider := &stubProvider{}
	svc, _ := newTestService(t, provider)

	cart := testCart()
	cart.Discount = cart.Subtotal() // total 0

	_, err := svc.CreateSession(context.Background(), cart)
	assert.ErrorIs(t, err, ErrInvalidTotal)

	cart.Discount = cart.Subtotal() + 500 // total negative
	_, err = svc.CreateSession(context.Background(), cart)
	assert.ErrorIs(t, err, ErrInvalidTotal)

	assert.Equal(t, 0, provider.createCalls)
}

func TestStartCreatesProviderOrder(t *testing.T) {
	provider := &stubProvider{}
	svc, _ := newTestService(t, provider)
	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)

	sess, err = svc.Start(context.Background(), sess.ID, testInput())

	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingApproval, sess.Status)
	assert.Equal(t, "5O190127TN364715T", sess.ProviderOrderID)
	assert.Contains(t, sess.ApprovalURL, "approve")
	assert.Equal(t, 1, provider.createCalls)
}

func TestStartRejectsInvalidInput(t *testing.T) {
	provider := &stubProvider{}
	svc, _ := newTestService(t, provider)
	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)

	input := testInput()
	input.Email = "not-an-email"
	_, err = svc.Start(context.Background(), sess.ID, input)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "email")
	assert.Equal(t, 0, provider.createCalls, "invalid input must not reach the provider")
}

func TestCheckoutEndToEnd(t *testing.T) {
	provider := &stubProvider{}
	svc, orderRepo := newTestService(t, provider)

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)

	sess, err = svc.HandleApprovalByOrder(context.Background(), sess.ProviderOrderID, "PAYER-1")

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.True(t, sess.Cart.IsEmpty(), "cart must be cleared after finalization")
	require.NotEmpty(t, sess.LocalOrderID)

	o, err := orderRepo.Get(context.Background(), sess.LocalOrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(9999), o.Total)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, order.FulfillmentProcessing, o.FulfillmentStatus)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "5O190127TN364715T", o.ProviderOrderID)
}

func TestCaptureFailurePreservesCart(t *testing.T) {
	provider := &stubProvider{
		captureOrder: func(string) (*paypal.CaptureResult, error) {
			return nil, &paypal.RequestError{Operation: "capture_order", StatusCode: 500}
		},
	}
	svc, orderRepo := newTestService(t, provider)

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)

	sess, err = svc.HandleApproval(context.Background(), sess.ID, sess.ProviderOrderID, "PAYER-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.Equal(t, StatusFailed, sess.Status)
	assert.False(t, sess.Cart.IsEmpty(), "cart must survive a failed capture")

	orders, err := orderRepo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders, "no local order may exist for an uncaptured payment")

	// The shopper can retry from the failed state. The stale order is
	// reconciled (nothing captured) before it is discarded.
	sess, err = svc.Retry(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCollectingInfo, sess.Status)
	assert.Empty(t, sess.ProviderOrderID)
	assert.False(t, sess.Cart.IsEmpty())
	assert.Equal(t, 1, provider.retryCalls)
}

func TestRetryReconcilesCaptureThatLanded(t *testing.T) {
	// The capture times out after the charge went through on the
	// provider side. Retry must discover the captured payment and
	// complete the session instead of creating a second order.
	provider := &stubProvider{
		captureOrder: func(string) (*paypal.CaptureResult, error) {
			return nil, context.DeadlineExceeded
		},
		retryCapture: func(orderID string) (*paypal.CaptureResult, error) {
			return &paypal.CaptureResult{
				OrderID:         orderID,
				CaptureID:       "CAP-9",
				Status:          paypal.StatusCaptured,
				AlreadyCaptured: true,
			}, nil
		},
	}
	svc, orderRepo := newTestService(t, provider)

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)

	sess, err = svc.HandleApproval(context.Background(), sess.ID, sess.ProviderOrderID, "PAYER-1")
	require.Error(t, err)
	require.Equal(t, StatusFailed, sess.Status)

	sess, err = svc.Retry(context.Background(), sess.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.True(t, sess.Cart.IsEmpty())
	require.NotEmpty(t, sess.LocalOrderID)
	assert.Equal(t, 1, provider.createCalls, "reconciliation must not create a second provider order")
	assert.Equal(t, 1, provider.retryCalls)

	orders, err := orderRepo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1, "the shopper must be charged exactly once")
	assert.Equal(t, "CAP-9", orders[0].CaptureID)
}

func TestRetryKeepsFailedSessionOnProviderError(t *testing.T) {
	provider := &stubProvider{
		captureOrder: func(string) (*paypal.CaptureResult, error) {
			return nil, &paypal.RequestError{Operation: "capture_order", StatusCode: 500}
		},
		retryCapture: func(string) (*paypal.CaptureResult, error) {
			return nil, &paypal.RequestError{Operation: "get_order", StatusCode: 503}
		},
	}
	svc, _ := newTestService(t, provider)

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)
	sess, err = svc.HandleApproval(context.Background(), sess.ID, sess.ProviderOrderID, "PAYER-1")
	require.Error(t, err)

	// The provider cannot say whether the payment landed, so the order
	// reference must not be dropped yet.
	_, err = svc.Retry(context.Background(), sess.ID)
	require.Error(t, err)

	sess, err = svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, sess.Status)
	assert.NotEmpty(t, sess.ProviderOrderID)
}

func TestRetryCancelledSessionSkipsProvider(t *testing.T) {
	provider := &stubProvider{}
	svc, _ := newTestService(t, provider)

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)
	sess, err = svc.HandleCancel(context.Background(), sess.ID)
	require.NoError(t, err)

	sess, err = svc.Retry(context.Background(), sess.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusCollectingInfo, sess.Status)
	assert.Equal(t, 0, provider.retryCalls, "a cancelled session has nothing to reconcile")
}

func TestCaptureBeforeApprovalFails(t *testing.T) {
	provider := &stubProvider{
		captureOrder: func(orderID string) (*paypal.CaptureResult, error) {
			return nil, paypal.ErrOrderNotApproved
		},
	}
	svc, _ := newTestService(t, provider)

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)

	sess, err = svc.HandleApproval(context.Background(), sess.ID, sess.ProviderOrderID, "")

	assert.ErrorIs(t, err, paypal.ErrOrderNotApproved)
	assert.Equal(t, StatusFailed, sess.Status)
}

func TestHandleApprovalCompletedSessionIsNoOp(t *testing.T) {
	provider := &stubProvider{}
	svc, orderRepo := newTestService(t, provider)

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)
	sess, err = svc.HandleApproval(context.Background(), sess.ID, sess.ProviderOrderID, "PAYER-1")
	require.NoError(t, err)

	again, err := svc.HandleApproval(context.Background(), sess.ID, "5O190127TN364715T", "PAYER-1")

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
	assert.Equal(t, 1, provider.captureCalls, "a completed session must not capture again")

	orders, err := orderRepo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestHandleApprovalOrderMismatch(t *testing.T) {
	svc, _ := newTestService(t, &stubProvider{})

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)

	_, err = svc.HandleApproval(context.Background(), sess.ID, "SOME-OTHER-ORDER", "PAYER-1")

	assert.ErrorIs(t, err, ErrOrderMismatch)
}

func TestHandleCancelPreservesCart(t *testing.T) {
	provider := &stubProvider{}
	svc, _ := newTestService(t, provider)

	sess, err := svc.CreateSession(context.Background(), testCart())
	require.NoError(t, err)
	sess, err = svc.Start(context.Background(), sess.ID, testInput())
	require.NoError(t, err)

	sess, err = svc.HandleCancel(context.Background(), sess.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, sess.Status)
	assert.False(t, sess.Cart.IsEmpty())
	assert.Equal(t, 0, provider.captureCalls)
}

func TestDisplayTotalConvertsCurrency(t *testing.T) {
	svc, _ := newTestService(t, &stubProvider{})
	sess := &Session{Cart: testCart()}

	same := svc.DisplayTotal(context.Background(), sess, "EUR")
	assert.Equal(t, int64(9999), same.Amount)
	assert.Equal(t, "EUR", same.Currency)

	converted := svc.DisplayTotal(context.Background(), sess, "USD")
	assert.Equal(t, "USD", converted.Currency)
}

func TestSessionTransitions(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCollectingInfo, StatusAwaitingApproval, true},
		{StatusCollectingInfo, StatusCapturing, false},
		{StatusAwaitingApproval, StatusCapturing, true},
		{StatusAwaitingApproval, StatusCancelled, true},
		{StatusCapturing, StatusCompleted, true},
		{StatusCapturing, StatusFailed, true},
		{StatusCompleted, StatusCollectingInfo, false},
		{StatusFailed, StatusCollectingInfo, true},
		{StatusFailed, StatusCompleted, true},
		{StatusCancelled, StatusCollectingInfo, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, sm.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestValidateCheckoutInput(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	t.Run("valid paypal input", func(t *testing.T) {
		in := testInput()
		assert.NoError(t, in.Validate(now))
	})

	t.Run("valid card input", func(t *testing.T) {
		in := testInput()
		in.FundingSource = FundingCard
		in.Card = &CardDetails{Number: "4111 1111 1111 1111", Expiry: "12/27", CVV: "123"}
		assert.NoError(t, in.Validate(now))
	})

	t.Run("card current month still valid", func(t *testing.T) {
		in := testInput()
		in.FundingSource = FundingCard
		in.Card = &CardDetails{Number: "4111111111111111", Expiry: "09/26", CVV: "1234"}
		assert.NoError(t, in.Validate(now))
	})

	cases := []struct {
		name  string
		mod   func(*CheckoutInput)
		field string
	}{
		{"bad email", func(in *CheckoutInput) { in.Email = "nope" }, "email"},
		{"blank city", func(in *CheckoutInput) { in.Shipping.City = "  " }, "shipping.city"},
		{"blank country", func(in *CheckoutInput) { in.Shipping.Country = "" }, "shipping.country"},
		{"unknown funding", func(in *CheckoutInput) { in.FundingSource = "crypto" }, "funding_source"},
		{"missing card", func(in *CheckoutInput) { in.FundingSource = FundingCard }, "card"},
		{"short card number", func(in *CheckoutInput) {
			in.FundingSource = FundingCard
			in.Card = &CardDetails{Number: "4111", Expiry: "12/27", CVV: "123"}
		}, "card.number"},
		{"expired card", func(in *CheckoutInput) {
			in.FundingSource = FundingCard
			in.Card = &CardDetails{Number: "4111111111111111", Expiry: "08/26", CVV: "123"}
		}, "card.expiry"},
		{"bad cvv", func(in *CheckoutInput) {
			in.FundingSource = FundingCard
			in.Card = &CardDetails{Number: "4111111111111111", Expiry: "12/27", CVV: "12"}
		}, "card.cvv"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := testInput()
			tc.mod(&in)

			err := in.Validate(now)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Fields, tc.field)
		})
	}
}

func TestPaymentOptionsOmitUnsupported(t *testing.T) {
	options := PaymentOptions([]string{"paypal", "applepay", "card"})

	require.Len(t, options, 2)
	assert.Equal(t, FundingPayPal, options[0].Source)
	assert.Equal(t, FundingCard, options[1].Source)
}

func TestMemorySessionRepository(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sess := &Session{ID: "sess-1", Status: StatusAwaitingApproval, ProviderOrderID: "ORD-1"}
	require.NoError(t, repo.Save(ctx, sess))

	got, err := repo.GetByProviderOrder(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)

	require.NoError(t, repo.Delete(ctx, "sess-1"))
	_, err = repo.GetByProviderOrder(ctx, "ORD-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
