package order

import "fmt"

// StateMachine validates fulfillment transitions. Terminal orders are
// immutable apart from audit fields and provider-driven payment facts.
type StateMachine struct {
	transitions map[FulfillmentStatus][]FulfillmentStatus
}

// NewStateMachine creates the fulfillment state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[FulfillmentStatus][]FulfillmentStatus{
			FulfillmentProcessing: {FulfillmentShipped, FulfillmentCancelled},
			FulfillmentShipped:    {FulfillmentDelivered, FulfillmentCancelled},
			FulfillmentDelivered:  {}, // Terminal state
			FulfillmentCancelled:  {}, // Terminal state
		},
	}
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to FulfillmentStatus) bool {
	for _, s := range sm.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition attempts to move an order to a new fulfillment state.
func (sm *StateMachine) Transition(o *LocalOrder, to FulfillmentStatus) error {
	if o.FulfillmentStatus.IsTerminal() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderImmutable, o.ID, o.FulfillmentStatus)
	}
	if !sm.CanTransition(o.FulfillmentStatus, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.FulfillmentStatus, to)
	}
	o.FulfillmentStatus = to
	o.RecordAudit("fulfillment_status", string(to))
	return nil
}
