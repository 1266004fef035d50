package checkout

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	digitsOnly   = regexp.MustCompile(`^\d+$`)
)

// CardDetails is collected only when the funding source is card. The
// number and CVV are validated for shape locally, never stored, and never
// sent anywhere but the provider.
type CardDetails struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"` // MM/YY
	CVV    string `json:"cvv"`
}

// CheckoutInput is the shopper-submitted data that starts payment.
type CheckoutInput struct {
	Email         string          `json:"email"`
	Shipping      ShippingDetails `json:"shipping"`
	FundingSource FundingSource   `json:"funding_source"`
	Card          *CardDetails    `json:"card,omitempty"`
}

// ValidationError reports per-field validation failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks the input locally before any provider call.
func (in *CheckoutInput) Validate(now time.Time) error {
	fields := map[string]string{}

	if !emailPattern.MatchString(in.Email) {
		fields["email"] = "must be a valid email address"
	}

	checkNonEmpty(fields, "shipping.full_name", in.Shipping.FullName)
	checkNonEmpty(fields, "shipping.line1", in.Shipping.Line1)
	checkNonEmpty(fields, "shipping.city", in.Shipping.City)
	checkNonEmpty(fields, "shipping.postal_code", in.Shipping.PostalCode)
	checkNonEmpty(fields, "shipping.country", in.Shipping.Country)

	if !in.FundingSource.Valid() {
		fields["funding_source"] = "unsupported funding source"
	}

	if in.FundingSource == FundingCard {
		validateCard(fields, in.Card, now)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkNonEmpty(fields map[string]string, name, value string) {
	if strings.TrimSpace(value) == "" {
		fields[name] = "must not be empty"
	}
}

func validateCard(fields map[string]string, card *CardDetails, now time.Time) {
	if card == nil {
		fields["card"] = "card details required"
		return
	}

	number := strings.ReplaceAll(card.Number, " ", "")
	if len(number) != 16 || !digitsOnly.MatchString(number) {
		fields["card.number"] = "must be 16 digits"
	}

	if !validExpiry(card.Expiry, now) {
		fields["card.expiry"] = "must be MM/YY and not in the past"
	}

	if l := len(card.CVV); l < 3 || l > 4 || !digitsOnly.MatchString(card.CVV) {
		fields["card.cvv"] = "must be 3 or 4 digits"
	}
}

// validExpiry accepts MM/YY where the card is valid through the end of
// the named month.
func validExpiry(expiry string, now time.Time) bool {
	t, err := time.Parse("01/06", expiry)
	if err != nil {
		return false
	}
	endOfMonth := t.AddDate(0, 1, 0)
	return now.Before(endOfMonth)
}
