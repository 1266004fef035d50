package paypal

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialsMissing is returned when client id or secret is not
	// configured. Checked at startup: payment routes are not registered
	// without credentials.
	ErrCredentialsMissing = errors.New("paypal credentials missing")

	// ErrOrderNotApproved is returned when a capture is attempted on an
	// order the payer has not approved yet.
	ErrOrderNotApproved = errors.New("order not approved")
)

// AuthError is returned when the provider rejects our credentials or token.
// Never retried beyond a single token re-fetch.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("paypal auth failed: status %d: %s", e.StatusCode, e.Body)
}

// RequestError is a non-2xx provider response carrying the provider's
// error body. Surfaced to the checkout flow as a retryable failure.
type RequestError struct {
	Operation  string
	StatusCode int
	Name       string
	Body       string
}

func (e *RequestError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("paypal %s failed: status %d: %s", e.Operation, e.StatusCode, e.Name)
	}
	return fmt.Sprintf("paypal %s failed: status %d", e.Operation, e.StatusCode)
}

// Transient reports whether the failure is worth retrying with backoff.
// Client errors (4xx) are never transient.
func (e *RequestError) Transient() bool {
	return e.StatusCode >= 500
}
