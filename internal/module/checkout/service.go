package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clickcart/server/internal/module/order"
	"github.com/clickcart/server/internal/module/paypal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProviderClient is the slice of the payment provider the orchestrator
// uses.
type ProviderClient interface {
	CreateOrder(ctx context.Context, amount paypal.Money, description string) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
	RetryCapture(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
	GenerateClientToken(ctx context.Context) (string, error)
}

// Finalizer turns a captured payment into a local order.
type Finalizer interface {
	Finalize(ctx context.Context, req order.FinalizeRequest) (*order.LocalOrder, error)
}

// RateConverter converts display amounts between currencies.
type RateConverter interface {
	Convert(ctx context.Context, amount int64, from, to string) int64
}

// Service orchestrates the checkout flow. All session mutations go
// through here; handlers never touch the repository directly.
type Service struct {
	repo      SessionRepository
	provider  ProviderClient
	finalizer Finalizer
	rates     RateConverter
	machine   *StateMachine
	logger    *zap.Logger
	enabled   []string
}

// NewService creates the checkout orchestrator.
func NewService(repo SessionRepository, provider ProviderClient, finalizer Finalizer, rates RateConverter, enabledSources []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(enabledSources) == 0 {
		enabledSources = []string{string(FundingPayPal), string(FundingCard), string(FundingGooglePay)}
	}
	return &Service{
		repo:      repo,
		provider:  provider,
		finalizer: finalizer,
		rates:     rates,
		machine:   NewStateMachine(),
		logger:    logger,
		enabled:   enabledSources,
	}
}

// CreateSession opens a checkout session for a non-empty cart.
func (s *Service) CreateSession(ctx context.Context, cart Cart) (*Session, error) {
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if cart.Total() <= 0 {
		return nil, ErrInvalidTotal
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Status:    StatusCollectingInfo,
		Cart:      cart,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.repo.Get(ctx, sessionID)
}

// Start validates the shopper's input and creates the provider order,
// moving the session to AwaitingApproval. The approval URL (redirect
// flow) or the provider order id (embedded flow) comes back on the
// session.
func (s *Service) Start(ctx context.Context, sessionID string, input CheckoutInput) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusCollectingInfo {
		return nil, fmt.Errorf("%w: cannot start payment from %s", ErrInvalidTransition, sess.Status)
	}
	if sess.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if sess.Cart.Total() <= 0 {
		return nil, ErrInvalidTotal
	}
	if err := input.Validate(time.Now()); err != nil {
		return nil, err
	}

	amount := paypal.NewMoney(sess.Cart.Total(), sess.Cart.Currency)
	providerOrder, err := s.provider.CreateOrder(ctx, amount, "clickcart checkout "+sess.ID)
	if err != nil {
		s.logger.Error("provider order creation failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		return nil, err
	}

	sess.Email = input.Email
	sess.Shipping = input.Shipping
	sess.FundingSource = input.FundingSource
	sess.ProviderOrderID = providerOrder.ID
	sess.ApprovalURL = providerOrder.ApprovalLink()
	if err := s.machine.Transition(sess, StatusAwaitingApproval); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("checkout started",
		zap.String("session_id", sess.ID),
		zap.String("provider_order_id", sess.ProviderOrderID),
		zap.String("funding_source", string(sess.FundingSource)),
		zap.String("amount", amount.String()),
	)
	return sess, nil
}

// HandleApproval captures an approved provider order and finalizes the
// local order. The cart is cleared only after the order is recorded. A
// capture or persistence failure leaves the session Failed with the cart
// intact so the shopper can retry.
func (s *Service) HandleApproval(ctx context.Context, sessionID, providerOrderID, payerID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusCompleted {
		return sess, nil
	}
	if sess.ProviderOrderID != providerOrderID {
		return nil, fmt.Errorf("%w: session %s", ErrOrderMismatch, sessionID)
	}
	if err := s.machine.Transition(sess, StatusCapturing); err != nil {
		return nil, err
	}
	sess.PayerID = payerID
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	capture, err := s.provider.CaptureOrder(ctx, sess.ProviderOrderID)
	if err != nil {
		return s.fail(ctx, sess, fmt.Errorf("%w: %w", ErrCaptureFailed, err))
	}

	completed, err := s.complete(ctx, sess, capture)
	if err != nil {
		// Payment captured but no order recorded: the session fails
		// with the cart intact and the finalizer has already screamed.
		return s.fail(ctx, sess, err)
	}
	return completed, nil
}

// complete finalizes a captured payment into a local order and closes
// the session. The cart is cleared only after the order is recorded.
func (s *Service) complete(ctx context.Context, sess *Session, capture *paypal.CaptureResult) (*Session, error) {
	localOrder, err := s.finalizer.Finalize(ctx, order.FinalizeRequest{
		ProviderOrderID: sess.ProviderOrderID,
		CaptureID:       capture.CaptureID,
		Email:           sess.Email,
		Items:           toOrderItems(sess.Cart.Items),
		Currency:        sess.Cart.Currency,
		Subtotal:        sess.Cart.Subtotal(),
		Discount:        sess.Cart.Discount,
		ShippingCost:    sess.Cart.Shipping,
		Address:         toOrderAddress(sess.Shipping),
	})
	if err != nil {
		return nil, err
	}

	sess.LocalOrderID = localOrder.ID
	sess.Cart = Cart{Currency: sess.Cart.Currency}
	sess.FailureReason = ""
	if err := s.machine.Transition(sess, StatusCompleted); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("checkout completed",
		zap.String("session_id", sess.ID),
		zap.String("order_id", localOrder.ID),
	)
	return sess, nil
}

// HandleApprovalByOrder resolves the redirect callback, which carries
// only the provider order token and payer id.
func (s *Service) HandleApprovalByOrder(ctx context.Context, providerOrderID, payerID string) (*Session, error) {
	sess, err := s.repo.GetByProviderOrder(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	return s.HandleApproval(ctx, sess.ID, providerOrderID, payerID)
}

// HandleCancel records the shopper abandoning approval. No provider call
// is made and no order is created; the cart stays as it was.
func (s *Service) HandleCancel(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.machine.Transition(sess, StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("checkout cancelled", zap.String("session_id", sess.ID))
	return sess, nil
}

// HandleCancelByOrder resolves the cancel redirect by provider order id.
func (s *Service) HandleCancelByOrder(ctx context.Context, providerOrderID string) (*Session, error) {
	sess, err := s.repo.GetByProviderOrder(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	return s.HandleCancel(ctx, sess.ID)
}

// Retry returns a Failed or Cancelled session to CollectingInfo, dropping
// the stale provider order reference. The cart is preserved.
//
// A failed capture may still have landed on the provider side (a timeout
// after the charge went through), so a Failed session first reconciles
// against the provider order. If the payment turns out to be captured the
// session completes instead of starting over; only a confirmed
// not-captured order is discarded. An inconclusive provider answer keeps
// the session Failed rather than risk a second charge.
func (s *Service) Retry(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusFailed && sess.ProviderOrderID != "" {
		capture, rerr := s.provider.RetryCapture(ctx, sess.ProviderOrderID)
		switch {
		case rerr == nil:
			s.logger.Info("retry reconciled a captured payment",
				zap.String("session_id", sess.ID),
				zap.String("provider_order_id", sess.ProviderOrderID),
			)
			return s.complete(ctx, sess, capture)
		case errors.Is(rerr, paypal.ErrOrderNotApproved):
			// Nothing was captured; safe to start over.
		default:
			return nil, rerr
		}
	}
	if err := s.machine.Transition(sess, StatusCollectingInfo); err != nil {
		return nil, err
	}
	sess.ProviderOrderID = ""
	sess.ApprovalURL = ""
	sess.PayerID = ""
	sess.FailureReason = ""
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ClientToken issues a provider client token for the embedded payment UI.
func (s *Service) ClientToken(ctx context.Context) (string, error) {
	return s.provider.GenerateClientToken(ctx)
}

// PaymentOptions lists the enabled payment methods.
func (s *Service) PaymentOptions() []PaymentOption {
	return PaymentOptions(s.enabled)
}

// DisplayTotal converts the cart total into the shopper's display
// currency. Conversion is presentational; the charge currency never
// changes.
func (s *Service) DisplayTotal(ctx context.Context, sess *Session, displayCurrency string) paypal.Money {
	total := sess.Cart.Total()
	if displayCurrency == "" || displayCurrency == sess.Cart.Currency {
		return paypal.NewMoney(total, sess.Cart.Currency)
	}
	converted := s.rates.Convert(ctx, total, sess.Cart.Currency, displayCurrency)
	return paypal.NewMoney(converted, displayCurrency)
}

// fail parks the session in Failed with the cart intact. The original
// error is returned alongside the updated session.
func (s *Service) fail(ctx context.Context, sess *Session, cause error) (*Session, error) {
	sess.FailureReason = cause.Error()
	if terr := s.machine.Transition(sess, StatusFailed); terr != nil {
		return nil, errors.Join(cause, terr)
	}
	if serr := s.repo.Save(ctx, sess); serr != nil {
		return nil, errors.Join(cause, serr)
	}

	s.logger.Warn("checkout failed",
		zap.String("session_id", sess.ID),
		zap.String("provider_order_id", sess.ProviderOrderID),
		zap.Error(cause),
	)
	return sess, cause
}

func toOrderItems(items []LineItem) []order.Item {
	out := make([]order.Item, len(items))
	for i, item := range items {
		out[i] = order.Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Options:   item.Options,
		}
	}
	return out
}

func toOrderAddress(s ShippingDetails) order.Address {
	return order.Address{
		FullName:   s.FullName,
		Line1:      s.Line1,
		Line2:      s.Line2,
		City:       s.City,
		PostalCode: s.PostalCode,
		Country:    s.Country,
	}
}
