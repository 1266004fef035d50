package order

import (
	"context"
	"errors"
	"time"

	"github.com/clickcart/server/internal/shared/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	persistAttempts = 3
	persistBackoff  = 100 * time.Millisecond
)

// FinalizeRequest carries everything needed to build a local order from a
// captured payment. Amounts are minor units in Currency.
type FinalizeRequest struct {
	ProviderOrderID string
	CaptureID       string
	Email           string
	Items           []Item
	Currency        string
	Subtotal        int64
	Discount        int64
	ShippingCost    int64
	Address         Address
}

// Finalizer turns captured payments into local orders. Finalization is
// idempotent per provider order id: the money has already moved, so a
// repeat call returns the existing order instead of creating a second one.
type Finalizer struct {
	repo    *Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
	backoff time.Duration
}

// NewFinalizer creates a finalizer. Metrics may be nil.
func NewFinalizer(repo *Repository, m *metrics.Metrics, logger *zap.Logger) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{repo: repo, metrics: m, logger: logger, backoff: persistBackoff}
}

// Finalize builds and persists the local order for a captured payment.
// Persistence is retried; a final failure surfaces as ErrPersistFailed
// because a paid-but-unrecorded order must never be silently dropped.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (*LocalOrder, error) {
	existing, err := f.repo.GetByProviderOrder(ctx, req.ProviderOrderID)
	if err == nil {
		f.logger.Info("order already finalized, returning existing",
			zap.String("provider_order_id", req.ProviderOrderID),
			zap.String("order_id", existing.ID),
		)
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	o := &LocalOrder{
		ID:                uuid.NewString(),
		ProviderOrderID:   req.ProviderOrderID,
		CaptureID:         req.CaptureID,
		Email:             req.Email,
		Items:             req.Items,
		Currency:          req.Currency,
		Subtotal:          req.Subtotal,
		Discount:          req.Discount,
		ShippingCost:      req.ShippingCost,
		Total:             req.Subtotal - req.Discount + req.ShippingCost,
		FulfillmentStatus: FulfillmentProcessing,
		PaymentStatus:     PaymentPaid,
		Address:           req.Address,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	o.RecordAudit("finalized", "capture "+req.CaptureID)

	if err := f.persistWithRetry(ctx, o); err != nil {
		f.logger.Error("CAPTURED PAYMENT NOT RECORDED, manual reconciliation required",
			zap.String("provider_order_id", req.ProviderOrderID),
			zap.String("capture_id", req.CaptureID),
			zap.Int64("total", o.Total),
			zap.String("currency", o.Currency),
			zap.Error(err),
		)
		return nil, err
	}

	if f.metrics != nil {
		f.metrics.OrdersFinalizedTotal.Inc()
	}
	f.logger.Info("order finalized",
		zap.String("order_id", o.ID),
		zap.String("provider_order_id", o.ProviderOrderID),
		zap.Int64("total", o.Total),
		zap.String("currency", o.Currency),
	)
	return o, nil
}

func (f *Finalizer) persistWithRetry(ctx context.Context, o *LocalOrder) error {
	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		lastErr = f.repo.Create(ctx, o)
		if lastErr == nil {
			return nil
		}
		if attempt == persistAttempts {
			break
		}

		f.logger.Warn("order persistence failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}
