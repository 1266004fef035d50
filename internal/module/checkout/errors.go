package checkout

import "errors"

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidTotal      = errors.New("cart total must be positive")
	ErrSessionNotFound   = errors.New("checkout session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrOrderMismatch     = errors.New("provider order does not belong to session")
	ErrCaptureFailed     = errors.New("payment capture failed")
)
