package handlers

import (
	"context"

	"github.com/lightningnetwork/lnliquid/swapper"
)

// RefundDeps collects what the shared refund path needs, reused by the
// Send handler (component F, spec.md §4.6) and the outgoing-direction
// Chain-swap handler (component H). Both spend the same lockup output
// back to the payer once a swap is Refundable.
type RefundDeps struct {
	Builder    *swapper.Builder
	Signer     swapper.CooperativeSigner
	Unilateral swapper.UnilateralSigner
	Scripts    ScriptDeriver
}

// refund runs create_refund_tx, preferring the cooperative path
// (spec.md §4.4) and falling back to a unilateral HTLC-timeout spend
// whenever the cooperative round trip fails and a
// ScriptDeriver/UnilateralSigner pair is wired in. No check is made
// here that the lockup's timeout has passed.
func refund(ctx context.Context, deps RefundDeps, swapID, lockupTxID string, lockupVout uint32, lockupValueSat int64) (string, error) {
	var unilateral *swapper.UnilateralRefundInputs
	if deps.Scripts != nil && deps.Unilateral != nil {
		lockupScript, err := deps.Scripts.LockupScript(swapID)
		if err == nil {
			var refundScript []byte
			refundScript, err = deps.Scripts.RefundScript(swapID)
			if err == nil {
				unilateral = &swapper.UnilateralRefundInputs{
					LockupTxID:   lockupTxID,
					LockupVout:   lockupVout,
					LockupValue:  lockupValueSat,
					LockupScript: lockupScript,
					RefundScript: refundScript,
					Signer:       deps.Unilateral,
				}
			}
		}
	}
	return deps.Builder.CreateRefundTx(ctx, swapID, deps.Signer, unilateral)
}
