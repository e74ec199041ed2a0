package domain

import "fmt"

// DeliveryState tracks a webhook delivery through its lifecycle.
//
//	RECEIVED -> VERIFIED -> DISPATCHED -> PROCESSING -> ANSWERED | FAILED
//	RECEIVED -> REJECTED
type DeliveryState string

const (
	DeliveryReceived   DeliveryState = "RECEIVED"
	DeliveryVerified   DeliveryState = "VERIFIED"
	DeliveryRejected   DeliveryState = "REJECTED"
	DeliveryDispatched DeliveryState = "DISPATCHED"
	DeliveryProcessing DeliveryState = "PROCESSING"
	DeliveryAnswered   DeliveryState = "ANSWERED"
	DeliveryFailed     DeliveryState = "FAILED"
)

var deliveryTransitions = map[DeliveryState][]DeliveryState{
	DeliveryReceived:   {DeliveryVerified, DeliveryRejected},
	DeliveryVerified:   {DeliveryDispatched},
	DeliveryDispatched: {DeliveryProcessing},
	DeliveryProcessing: {DeliveryAnswered, DeliveryFailed},
}

// IsTerminal reports whether no further transitions are allowed.
func (s DeliveryState) IsTerminal() bool {
	return s == DeliveryRejected || s == DeliveryAnswered || s == DeliveryFailed
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s DeliveryState) CanTransitionTo(next DeliveryState) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error for illegal state changes.
func ValidateTransition(from, to DeliveryState) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: delivery state %s -> %s", ErrInvalidInput, from, to)
	}
	return nil
}
