package paypal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OrderStatus is the provider-side status of a payment order. The provider
// is the source of truth: statuses only ever come from provider responses.
type OrderStatus string

const (
	StatusCreated  OrderStatus = "CREATED"
	StatusApproved OrderStatus = "APPROVED"
	StatusCaptured OrderStatus = "COMPLETED"
	StatusDenied   OrderStatus = "DENIED"
	StatusReversed OrderStatus = "REVERSED"
	StatusRefunded OrderStatus = "REFUNDED"
)

// IsTerminal returns true when no further provider transition is expected.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCaptured, StatusDenied, StatusReversed, StatusRefunded:
		return true
	}
	return false
}

// zeroDecimalCurrencies have no minor unit on the provider wire format.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"HUF": true,
	"TWD": true,
}

// Money is a monetary amount in minor units with an ISO 4217 currency code.
type Money struct {
	Amount   int64
	Currency string
}

// NewMoney creates a Money value.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

// Value renders the amount in the provider's decimal string format.
func (m Money) Value() string {
	if zeroDecimalCurrencies[m.Currency] {
		return fmt.Sprintf("%d", m.Amount)
	}
	return fmt.Sprintf("%d.%02d", m.Amount/100, m.Amount%100)
}

func (m Money) String() string {
	return m.Value() + " " + m.Currency
}

// Order is a provider payment order.
type Order struct {
	ID     string      `json:"id"`
	Status OrderStatus `json:"status"`
	Links  []Link      `json:"links"`
}

// Link is a HATEOAS link returned by the provider.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// ApprovalLink returns the URL the payer must visit to approve the order,
// or empty when absent.
func (o *Order) ApprovalLink() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// CaptureResult is the outcome of a capture call.
type CaptureResult struct {
	OrderID   string
	CaptureID string
	Status    OrderStatus
	// AlreadyCaptured is set when the provider reported the order as
	// captured before this call. Treated as success, never escalated.
	AlreadyCaptured bool
}

// WebhookEvent is the provider's webhook event envelope. Resource is kept
// raw: its shape depends on event_type and is decoded by the receiver.
type WebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
	CreateTime   string          `json:"create_time"`
	Summary      string          `json:"summary"`
}

// --- wire types ---

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type clientTokenResponse struct {
	ClientToken string `json:"client_token"`
}

type amountPayload struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnitPayload struct {
	Amount      amountPayload `json:"amount"`
	Description string        `json:"description,omitempty"`
}

type applicationContextPayload struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type createOrderPayload struct {
	Intent             string                    `json:"intent"`
	PurchaseUnits      []purchaseUnitPayload     `json:"purchase_units"`
	ApplicationContext applicationContextPayload `json:"application_context"`
}

type captureResponse struct {
	ID            string      `json:"id"`
	Status        OrderStatus `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

type verifySignatureRequest struct {
	TransmissionID   string          `json:"transmission_id"`
	TransmissionTime string          `json:"transmission_time"`
	CertURL          string          `json:"cert_url"`
	AuthAlgo         string          `json:"auth_algo"`
	TransmissionSig  string          `json:"transmission_sig"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}
