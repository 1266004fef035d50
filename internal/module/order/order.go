package order

import (
	"time"
)

// FulfillmentStatus tracks physical fulfillment of a local order.
type FulfillmentStatus string

const (
	FulfillmentProcessing FulfillmentStatus = "processing"
	FulfillmentShipped    FulfillmentStatus = "shipped"
	FulfillmentDelivered  FulfillmentStatus = "delivered"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

// IsTerminal reports whether the order can no longer change fulfillment.
func (s FulfillmentStatus) IsTerminal() bool {
	return s == FulfillmentDelivered || s == FulfillmentCancelled
}

// PaymentStatus tracks the money side, driven by capture results and
// webhook events. The provider is authoritative for these.
type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "payment_failed"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentReversed PaymentStatus = "reversed"
)

// Item is one purchased line, snapshotted at finalization time.
type Item struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	UnitPrice int64             `json:"unit_price"`
	Options   map[string]string `json:"options,omitempty"`
}

// Address is where the order ships.
type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// AuditEntry records one change to an order.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// LocalOrder is the merchant-side record of a captured payment. Each
// references exactly one provider order. Amounts are minor units.
type LocalOrder struct {
	ID              string `json:"id"`
	ProviderOrderID string `json:"provider_order_id"`
	CaptureID       string `json:"capture_id,omitempty"`
	Email           string `json:"email"`
	Items           []Item `json:"items"`
	Currency        string `json:"currency"`
	Subtotal        int64  `json:"subtotal"`
	Discount        int64  `json:"discount"`
	ShippingCost    int64  `json:"shipping_cost"`
	Total           int64  `json:"total"`

	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	// ManualReview is set when the provider reverses a capture; the
	// order needs a human decision before fulfillment continues.
	ManualReview bool `json:"manual_review"`

	Address   Address      `json:"address"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Audit     []AuditEntry `json:"audit,omitempty"`
}

// ContentID keys the order in the content store.
func (o *LocalOrder) ContentID() string {
	return o.ID
}

// RecordAudit appends an audit entry. Audit fields stay writable even
// after the order reaches a terminal fulfillment state.
func (o *LocalOrder) RecordAudit(action, detail string) {
	o.Audit = append(o.Audit, AuditEntry{At: time.Now().UTC(), Action: action, Detail: detail})
	o.UpdatedAt = time.Now().UTC()
}

// SetPaymentStatus applies a provider-reported payment fact. A reversal
// flags the order for manual review.
func (o *LocalOrder) SetPaymentStatus(status PaymentStatus, detail string) {
	o.PaymentStatus = status
	if status == PaymentReversed {
		o.ManualReview = true
	}
	o.RecordAudit("payment_status", string(status)+" "+detail)
}
