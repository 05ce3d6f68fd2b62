package swap

import "fmt"

// InvalidStateTransition is returned when a caller attempts a
// transition not present in the allowed graph (spec.md §4.1).
type InvalidStateTransition struct {
	From PaymentState
	To   PaymentState
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// allowedFrom maps each destination state to the set of source states
// the transition is permitted from, transcribed directly from the
// table in spec.md §4.1.
var allowedFrom = map[PaymentState]map[PaymentState]bool{
	// Created has no allowed incoming transitions: it's only produced
	// by insertion.
	Created: {},

	Pending: {
		Created:              true,
		Pending:               true,
		WaitingFeeAcceptance:  true,
	},

	WaitingFeeAcceptance: {
		Created:              true,
		Pending:               true,
		WaitingFeeAcceptance: true,
	},

	Complete: {
		Created:              true,
		Pending:               true,
		WaitingFeeAcceptance: true,
		RefundPending:        true,
	},

	TimedOut: {
		Created: true,
	},

	Refundable: {
		Created:              true,
		Pending:               true,
		WaitingFeeAcceptance: true,
		RefundPending:        true,
		Failed:                true,
		Complete:              true,
	},

	RefundPending: {
		Pending:       true,
		WaitingFeeAcceptance: true,
		Refundable:    true,
		RefundPending: true,
	},

	// Failed is allowed from any state except Complete; handled
	// specially in ValidateTransition below.
}

// ValidateTransition reports whether moving a swap from `from` to `to`
// is permitted by the state graph. It returns an *InvalidStateTransition
// error otherwise (invariant 2).
func ValidateTransition(from, to PaymentState) error {
	if to == Failed {
		if from == Complete {
			return &InvalidStateTransition{From: from, To: to}
		}
		return nil
	}

	allowed, ok := allowedFrom[to]
	if !ok || !allowed[from] {
		return &InvalidStateTransition{From: from, To: to}
	}
	return nil
}
