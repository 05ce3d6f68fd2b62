package lnliquid

import "github.com/lightningnetwork/lnliquid/eventbus"

// SdkEvent is the public notification shape a host application
// subscribes to (spec.md §5): which swap changed and what happened to
// it. It's a plain re-export of eventbus.Event so callers outside this
// module never need to import the eventbus package directly.
type SdkEvent = eventbus.Event

// Events re-exports the kind strings handlers publish, so a host
// application can switch on SdkEvent.Kind without importing handlers.
const (
	EventPaymentPending                = "PaymentPending"
	EventPaymentSucceeded               = "PaymentSucceeded"
	EventPaymentFailed                  = "PaymentFailed"
	EventPaymentRefundable              = "PaymentRefundable"
	EventPaymentWaitingFeeAcceptance    = "PaymentWaitingFeeAcceptance"
)

// Subscription is a live subscription to the Sdk's event bus.
type Subscription = eventbus.Subscription

// Subscribe returns a new Subscription; call Next on it in a loop and
// Unsubscribe when done.
func (s *Sdk) Subscribe() *Subscription {
	return s.bus.Subscribe()
}
