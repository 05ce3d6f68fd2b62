package reconcile

import (
	"time"

	"github.com/lightningnetwork/lnliquid/swap"
)

// WithinGracePeriod reports whether now is close enough to lastWritten
// that a reconciliation pass must not act on a derived state that would
// clear a tx id this very process persisted but that the chain service
// hasn't indexed yet (spec.md §4.9, suggested 120s). A zero lastWritten
// (unknown, e.g. after a restart) is never within the grace period: it
// degrades to deriving state fully from chain data, which is the
// conservative choice since there's nothing local left to protect.
func WithinGracePeriod(lastWritten, now time.Time, grace time.Duration) bool {
	if lastWritten.IsZero() {
		return false
	}
	return now.Sub(lastWritten) < grace
}

// ShouldSkipSend reports whether applying r to s would clear an
// already-set refund tx id while within the grace period.
func ShouldSkipSend(s *swap.SendSwap, r RecoveredSend, withinGrace bool) bool {
	return withinGrace && s.RefundTxID != nil && r.RefundTxID == nil
}

// ShouldSkipReceive reports whether applying r to s would clear an
// already-set claim tx id while within the grace period.
func ShouldSkipReceive(s *swap.ReceiveSwap, r RecoveredReceive, withinGrace bool) bool {
	return withinGrace && s.ClaimTxID != nil && r.ClaimTxID == nil
}

// ShouldSkipChain reports whether applying r to s would clear an
// already-set claim or refund tx id while within the grace period.
func ShouldSkipChain(s *swap.ChainSwap, r RecoveredChain, withinGrace bool) bool {
	if !withinGrace {
		return false
	}
	return (s.ClaimTxID != nil && r.ClaimTxID == nil) ||
		(s.RefundTxID != nil && r.RefundTxID == nil)
}
