package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clickcart/server/internal/module/order"
	"github.com/clickcart/server/internal/module/paypal"
	"github.com/clickcart/server/internal/module/store"
	"github.com/clickcart/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// Outcomes recorded per event.
const (
	OutcomeApplied       = "applied"
	OutcomeDuplicate     = "duplicate"
	OutcomeUnknownOrder  = "unknown_order"
	OutcomeInformational = "informational"
	OutcomeIgnored       = "ignored"
)

// eventRecord is the processed-event marker persisted per delivery. Its
// presence makes redelivery a no-op.
type eventRecord struct {
	ID           string    `json:"id"`
	EventType    string    `json:"event_type"`
	Outcome      string    `json:"outcome"`
	LocalOrderID string    `json:"local_order_id,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

func (r *eventRecord) ContentID() string { return r.ID }

// Result reports what processing one delivery did.
type Result struct {
	EventID   string
	EventType string
	Outcome   string
	Duplicate bool
}

// Processor applies verified webhook events to local orders, exactly
// once per event id. A per-event mutex serializes concurrent deliveries
// of the same id so the duplicate check and the apply are atomic.
type Processor struct {
	store   store.ContentStore
	orders  *order.Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
	locks   keyedMutex
}

// NewProcessor creates a webhook processor. Metrics may be nil.
func NewProcessor(cs store.ContentStore, orders *order.Repository, m *metrics.Metrics, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{store: cs, orders: orders, metrics: m, logger: logger}
}

// Process applies one verified event. A previously seen event id is a
// no-op. Events referencing unknown orders are recorded without creating
// an order: local orders only come from finalization.
func (p *Processor) Process(ctx context.Context, evt *paypal.WebhookEvent) (*Result, error) {
	if evt.ID == "" {
		return nil, fmt.Errorf("webhook event has no id")
	}

	unlock := p.locks.lock(evt.ID)
	defer unlock()

	var existing eventRecord
	err := p.store.Get(ctx, store.TypeWebhookEvent, evt.ID, &existing)
	if err == nil {
		p.logger.Info("duplicate webhook delivery ignored",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.EventType),
		)
		p.count(evt.EventType, OutcomeDuplicate)
		return &Result{EventID: evt.ID, EventType: evt.EventType, Outcome: existing.Outcome, Duplicate: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	outcome, localOrderID, err := p.apply(ctx, evt)
	if err != nil {
		return nil, err
	}

	record := &eventRecord{
		ID:           evt.ID,
		EventType:    evt.EventType,
		Outcome:      outcome,
		LocalOrderID: localOrderID,
		ProcessedAt:  time.Now().UTC(),
	}
	if err := p.store.Upsert(ctx, store.TypeWebhookEvent, record); err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}

	p.count(evt.EventType, outcome)
	return &Result{EventID: evt.ID, EventType: evt.EventType, Outcome: outcome}, nil
}

func (p *Processor) apply(ctx context.Context, evt *paypal.WebhookEvent) (outcome, localOrderID string, err error) {
	kind := Classify(evt.EventType)

	var status order.PaymentStatus
	switch kind {
	case KindCaptureCompleted:
		status = order.PaymentPaid
	case KindCaptureDenied:
		status = order.PaymentFailed
	case KindCaptureRefunded:
		status = order.PaymentRefunded
	case KindCaptureReversed:
		status = order.PaymentReversed
	case KindCapturePending, KindOrderApproved, KindOrderCompleted:
		p.logger.Info("informational webhook event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.EventType),
			zap.String("summary", evt.Summary),
		)
		return OutcomeInformational, "", nil
	default:
		p.logger.Info("unrecognized webhook event ignored",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.EventType),
		)
		return OutcomeIgnored, "", nil
	}

	providerID := providerOrderID(kind, evt)
	if providerID == "" {
		p.logger.Warn("capture event without order reference",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.EventType),
		)
		return OutcomeUnknownOrder, "", nil
	}

	o, err := p.orders.UpdateByProviderOrder(ctx, providerID, func(o *order.LocalOrder) error {
		o.SetPaymentStatus(status, "webhook "+evt.ID)
		return nil
	})
	if errors.Is(err, order.ErrNotFound) {
		// A payment event can outrun finalization. Record it; never
		// fabricate an order from a webhook.
		p.logger.Warn("webhook event for unknown order recorded",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.EventType),
			zap.String("provider_order_id", providerID),
		)
		return OutcomeUnknownOrder, "", nil
	}
	if err != nil {
		return "", "", err
	}

	p.logger.Info("webhook event applied",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.EventType),
		zap.String("order_id", o.ID),
		zap.String("payment_status", string(status)),
	)
	return OutcomeApplied, o.ID, nil
}

func (p *Processor) count(eventType, outcome string) {
	if p.metrics != nil {
		p.metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	}
}

// keyedMutex hands out one mutex per event id. Entries are never reaped;
// the working set is bounded by distinct event ids seen in a process
// lifetime.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
