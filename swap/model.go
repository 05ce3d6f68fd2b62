// Package swap defines the swap data model (the three swap variants and
// the composite Payment view) and the PaymentState transition graph.
// It has no dependency on persistence, transport or chain access — it is
// the vocabulary every other package shares, grounded on the same
// layering channeldb.ChannelConstraints/lnwallet types play for lnd's
// channel model.
package swap

import "time"

// PaymentState is the lifecycle state of a swap, persisted as a small
// integer.
type PaymentState uint8

const (
	// Created is the initial state of every swap.
	Created PaymentState = iota
	// Pending is set once a relevant lockup tx is observed.
	Pending
	// Complete is a terminal success state.
	Complete
	// Failed is a terminal failure state.
	Failed
	// TimedOut is a terminal state for swaps that expired before any
	// lockup was observed.
	TimedOut
	// Refundable is a user-actionable terminal-adjacent state.
	Refundable
	// RefundPending is an in-flight-refund terminal-adjacent state.
	RefundPending
	// WaitingFeeAcceptance is a non-terminal state unique to amountless
	// chain swaps awaiting a fee quote decision.
	WaitingFeeAcceptance
)

// String renders the state for logs and events.
func (s PaymentState) String() string {
	switch s {
	case Created:
		return "Created"
	case Pending:
		return "Pending"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	case TimedOut:
		return "TimedOut"
	case Refundable:
		return "Refundable"
	case RefundPending:
		return "RefundPending"
	case WaitingFeeAcceptance:
		return "WaitingFeeAcceptance"
	default:
		return "Unknown"
	}
}

// Resolved reports whether the state is one a Payment can be considered
// resolved in (spec.md §7): Complete, Failed, Refundable or TimedOut.
func (s PaymentState) Resolved() bool {
	switch s {
	case Complete, Failed, Refundable, TimedOut:
		return true
	default:
		return false
	}
}

// Kind distinguishes the three swap variants.
type Kind uint8

const (
	// KindSend is a submarine swap (Lightning invoice paid by locking
	// up Liquid funds).
	KindSend Kind = iota
	// KindReceive is a reverse submarine swap (Lightning invoice paid
	// to the user, funds claimed on Liquid).
	KindReceive
	// KindChain is an on-chain <-> on-chain swap between Bitcoin and
	// Liquid.
	KindChain
)

// Direction selects which chain carries the user lockup in a ChainSwap.
type Direction uint8

const (
	// Incoming: the server locks up on the user's home chain (Liquid)
	// bound for our claim address, the user's lockup is on Bitcoin.
	Incoming Direction = iota
	// Outgoing: the user's lockup is on Liquid, the server's lockup
	// (for us to claim) is on Bitcoin.
	Outgoing
)

// Metadata carries attributes common to every swap that are not part of
// the server-facing contract.
type Metadata struct {
	// IsLocal is true when this wallet originated the swap, false when
	// it was learned via cross-wallet sync (spec.md invariant 7: such
	// swaps never broadcast claim/refund transactions).
	IsLocal bool
}

// Swap is the data shared by every swap variant.
type Swap struct {
	SwapID      string
	CreatedAt   int64 // epoch seconds
	State       PaymentState
	Description string
	Metadata    Metadata
}

// SendSwap models a submarine swap (§3).
type SendSwap struct {
	Swap

	Invoice            string
	PayerAmountSat     uint64
	ReceiverAmountSat  uint64
	CreateResponseJSON string
	RefundPrivateKey   [32]byte

	LockupTxID *string
	RefundTxID *string
	Preimage   *[32]byte
}

// ReceiveSwap models a reverse submarine swap (§3).
type ReceiveSwap struct {
	Swap

	Preimage          [32]byte
	ClaimPrivateKey   [32]byte
	Invoice           string
	PayerAmountSat    uint64
	ReceiverAmountSat uint64
	ClaimFeesSat      uint64

	CreateResponseJSON string

	ClaimTxID  *string
	LockupTxID *string

	MRHAddress   *string
	MRHTxID      *string
	MRHAmountSat *uint64
}

// ClaimedByMRH reports whether this swap was resolved by a direct
// Magic Routing Hint payment rather than a server claim, per invariant
// 5: no server claim is attempted once an MRH payment is confirmed.
func (r *ReceiveSwap) ClaimedByMRH() bool {
	return r.MRHTxID != nil && r.ClaimTxID == nil
}

// ChainSwap models an on-chain <-> on-chain swap (§3).
type ChainSwap struct {
	Swap

	Direction Direction

	LockupAddress   string
	ClaimAddress    *string
	ClaimPrivateKey [32]byte
	RefundPrivateKey [32]byte

	// PayerAmountSat is 0 for an amountless chain swap.
	PayerAmountSat            uint64
	ReceiverAmountSat         uint64
	AcceptedReceiverAmountSat *uint64

	ClaimFeesSat      uint64
	AcceptZeroConf    bool
	TimeoutBlockHeight uint32

	UserLockupTxID   *string
	ServerLockupTxID *string
	ClaimTxID        *string
	RefundTxID       *string

	ActualPayerAmountSat *uint64
	AutoAcceptedFees     bool
}

// IsAmountless reports whether this chain swap was created without a
// fixed payer amount.
func (c *ChainSwap) IsAmountless() bool {
	return c.PayerAmountSat == 0
}

// PaymentType distinguishes the direction of an on-chain transaction
// the wallet observed.
type PaymentType uint8

const (
	// Send is an outgoing on-chain payment.
	Send PaymentType = iota
	// Receive is an incoming on-chain payment.
	Receive
)

// PaymentTxData is a per-transaction record of an on-chain payment the
// wallet has seen, independent of any swap (§3).
type PaymentTxData struct {
	TxID        string
	Timestamp   *int64
	AssetID     string
	AmountSat   int64
	FeesSat     uint64
	PaymentType PaymentType
	IsConfirmed bool
}

// Payment is a composite read view over an optional tx and an optional
// swap, following the original Payment constructors' precedence rules:
// a tx without a swap follows confirmation; a swap without a tx follows
// the swap state; both present prefers the swap's richer state but
// keeps the tx's timestamp/fees.
type Payment struct {
	TxID        string
	Timestamp   int64
	AmountSat   int64
	FeesSat     uint64
	PaymentType PaymentType
	Description string
	State       PaymentState
	SwapID      *string
}

// NewPaymentFromTx builds a Payment with no associated swap: status
// follows confirmation only.
func NewPaymentFromTx(tx PaymentTxData) Payment {
	state := Pending
	if tx.IsConfirmed {
		state = Complete
	}
	ts := int64(0)
	if tx.Timestamp != nil {
		ts = *tx.Timestamp
	} else {
		ts = time.Now().Unix()
	}
	return Payment{
		TxID:        tx.TxID,
		Timestamp:   ts,
		AmountSat:   tx.AmountSat,
		FeesSat:     tx.FeesSat,
		PaymentType: tx.PaymentType,
		State:       state,
	}
}

// NewPaymentFromSwap builds a Payment for a swap that has no
// corresponding tx yet (e.g. Created, WaitingFeeAcceptance): status
// follows the swap state directly.
func NewPaymentFromSwap(s Swap, amountSat int64, paymentType PaymentType) Payment {
	return Payment{
		Timestamp:   s.CreatedAt,
		AmountSat:   amountSat,
		PaymentType: paymentType,
		Description: s.Description,
		State:       s.State,
		SwapID:      &s.SwapID,
	}
}

// NewPaymentFromTxAndSwap merges a tx and a swap: the swap state wins
// (it encodes more than confirmation - e.g. Refundable), but timestamp
// and fees come from the tx since it's the concrete on-chain event.
func NewPaymentFromTxAndSwap(tx PaymentTxData, s Swap, description string) Payment {
	ts := s.CreatedAt
	if tx.Timestamp != nil {
		ts = *tx.Timestamp
	}
	return Payment{
		TxID:        tx.TxID,
		Timestamp:   ts,
		AmountSat:   tx.AmountSat,
		FeesSat:     tx.FeesSat,
		PaymentType: tx.PaymentType,
		Description: description,
		State:       s.State,
		SwapID:      &s.SwapID,
	}
}
