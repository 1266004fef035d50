package checkout

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a checkout session.
type Status string

const (
	StatusCollectingInfo   Status = "collecting_info"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCapturing        Status = "capturing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// StateMachine validates and executes session state transitions.
type StateMachine struct {
	transitions map[Status][]Status
}

// NewStateMachine creates the checkout session state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[Status][]Status{
			StatusCollectingInfo:   {StatusAwaitingApproval},
			StatusAwaitingApproval: {StatusCapturing, StatusCancelled},
			StatusCapturing:        {StatusCompleted, StatusFailed},
			StatusCompleted:        {},                                      // Terminal state
			StatusFailed:           {StatusCollectingInfo, StatusCompleted}, // Retry, or reconcile a capture that landed
			StatusCancelled:        {StatusCollectingInfo},                  // Can restart
		},
	}
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to Status) bool {
	for _, s := range sm.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition attempts to move a session to a new state.
func (sm *StateMachine) Transition(sess *Session, to Status) error {
	if !sm.CanTransition(sess.Status, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, sess.Status, to)
	}
	sess.Status = to
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// LineItem is one cart line.
type LineItem struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	UnitPrice int64             `json:"unit_price"`
	Options   map[string]string `json:"options,omitempty"`
}

// Cart holds the items being purchased. All amounts are minor units in
// the cart currency.
type Cart struct {
	Items    []LineItem `json:"items"`
	Currency string     `json:"currency"`
	Discount int64      `json:"discount"`
	Shipping int64      `json:"shipping"`
}

// IsEmpty reports whether the cart has no purchasable items.
func (c *Cart) IsEmpty() bool {
	for _, item := range c.Items {
		if item.Quantity > 0 {
			return false
		}
	}
	return true
}

// Subtotal is the sum of line totals before discount and shipping.
func (c *Cart) Subtotal() int64 {
	var sum int64
	for _, item := range c.Items {
		sum += item.UnitPrice * int64(item.Quantity)
	}
	return sum
}

// Total is the amount to charge: subtotal minus discount plus shipping.
func (c *Cart) Total() int64 {
	return c.Subtotal() - c.Discount + c.Shipping
}

// ShippingDetails is the address collected during checkout.
type ShippingDetails struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Session is one shopper's checkout attempt. Sessions are stored whole in
// the session repository and mutated only through the Service.
type Session struct {
	ID              string          `json:"id"`
	Status          Status          `json:"status"`
	Cart            Cart            `json:"cart"`
	Email           string          `json:"email,omitempty"`
	Shipping        ShippingDetails `json:"shipping,omitempty"`
	FundingSource   FundingSource   `json:"funding_source,omitempty"`
	ProviderOrderID string          `json:"provider_order_id,omitempty"`
	ApprovalURL     string          `json:"approval_url,omitempty"`
	PayerID         string          `json:"payer_id,omitempty"`
	LocalOrderID    string          `json:"local_order_id,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
