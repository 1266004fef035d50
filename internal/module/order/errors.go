package order

import "errors"

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid fulfillment transition")
	ErrOrderImmutable    = errors.New("order is in a terminal state")
	// ErrPersistFailed wraps a content store failure after a capture. The
	// payment has been taken; this error must reach the caller.
	ErrPersistFailed = errors.New("order persistence failed")
)
