package handlers

import (
	"context"

	"github.com/lightningnetwork/lnliquid/errkind"
	"github.com/lightningnetwork/lnliquid/invoice"
	"github.com/lightningnetwork/lnliquid/swapper"
)

// ClaimDeps collects what the shared claim path needs, reused by both
// the Receive handler (component G, spec.md §4.7 step 4) and the
// incoming-direction Chain-swap handler (component H).
type ClaimDeps struct {
	Builder    *swapper.Builder
	Signer     swapper.CooperativeSigner
	Unilateral swapper.UnilateralSigner
	Scripts    ScriptDeriver
}

// claim runs create_claim_tx for a lockup observed at lockupTxID:vout,
// preferring the cooperative musig2 round trip and only falling back to
// a unilateral HTLC-path spend when a ScriptDeriver and UnilateralSigner
// are both wired in. chain selects the claim-details endpoint: Chain
// swaps key their cooperative signing material separately from
// submarine/reverse swaps (see Builder.CreateChainClaimTx). For a
// submarine/reverse claim (chain=false), expectedPaymentHash must be the
// invoice's payment hash so the cooperative path can refuse to sign over
// a preimage that doesn't actually redeem it; chain swaps have no
// invoice and pass nil.
func claim(ctx context.Context, deps ClaimDeps, swapID, lockupTxID string, lockupVout uint32, lockupValueSat int64, chain bool, expectedPaymentHash *[32]byte) (string, error) {
	var unilateral *swapper.UnilateralClaimInputs
	if deps.Scripts != nil && deps.Unilateral != nil {
		lockupScript, err := deps.Scripts.LockupScript(swapID)
		if err == nil {
			var claimScript []byte
			claimScript, err = deps.Scripts.ClaimScript(swapID)
			if err == nil {
				unilateral = &swapper.UnilateralClaimInputs{
					LockupTxID:   lockupTxID,
					LockupVout:   lockupVout,
					LockupValue:  lockupValueSat,
					LockupScript: lockupScript,
					ClaimScript:  claimScript,
					Signer:       deps.Unilateral,
				}
			}
		}
	}
	if chain {
		return deps.Builder.CreateChainClaimTx(ctx, swapID, deps.Signer, unilateral)
	}
	return deps.Builder.CreateClaimTx(ctx, swapID, deps.Signer, expectedPaymentHash, unilateral)
}

// invoicePaymentHash decodes bolt11 and returns its payment hash, the
// value CreateClaimTx checks the server's claimed preimage against
// before cooperatively signing (spec.md §4.6, §7).
func invoicePaymentHash(bolt11 string) (*[32]byte, error) {
	inv, err := invoice.Decode(bolt11)
	if err != nil {
		return nil, errkind.New(errkind.Protocol, "decode invoice for payment hash", err)
	}
	if inv.PaymentHash == nil {
		return nil, errkind.New(errkind.Protocol, "invoice has no payment hash", nil)
	}
	return inv.PaymentHash, nil
}
