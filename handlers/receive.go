package handlers

import (
	"encoding/json"

	"context"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/errkind"
	"github.com/lightningnetwork/lnliquid/eventbus"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/statusstream"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
)

// Swap-server status strings a Receive swap's update stream carries
// (spec.md §4.7).
const (
	receiveStatusTransactionMempool   = "transaction.mempool"
	receiveStatusTransactionConfirmed = "transaction.confirmed"
	receiveStatusSwapExpired          = "swap.expired"
	receiveStatusInvoiceExpired       = "invoice.expired"
	receiveStatusTransactionFailed    = "transaction.failed"
	receiveStatusTransactionRefunded  = "transaction.refunded"
)

// ReceiveHandler drives reverse submarine swaps (component G, spec.md
// §4.7): the server locks up Liquid funds once our Lightning invoice is
// paid, and we claim them, either directly via a Magic Routing Hint
// payment or by a cooperative/unilateral claim transaction.
type ReceiveHandler struct {
	DB      *persist.DB
	Liquid  chainsvc.ChainService
	Client  *swapper.Client
	Claim   ClaimDeps
	Bus     *eventbus.Bus
	Wallet  Wallet
	Params  Params
}

// HandleStatusUpdate applies one status-stream update for a receive
// swap.
func (h *ReceiveHandler) HandleStatusUpdate(ctx context.Context, update statusstream.Update) error {
	s, err := h.DB.FetchReceiveSwapByID(update.SwapID)
	if err != nil {
		return err
	}

	// Invariant 5: once an MRH payment has already completed this
	// swap, no server claim is ever attempted.
	if s.ClaimedByMRH() {
		return nil
	}

	switch update.Status {
	case receiveStatusTransactionMempool:
		return h.onLockupObserved(ctx, s, update, false)
	case receiveStatusTransactionConfirmed:
		return h.onLockupObserved(ctx, s, update, true)
	case receiveStatusSwapExpired, receiveStatusInvoiceExpired, receiveStatusTransactionFailed:
		return h.onTerminalFailure(s)
	case receiveStatusTransactionRefunded:
		_, err := h.DB.TryHandleReceiveSwapUpdate(s.SwapID, swap.Failed, nil, nil)
		if err != nil {
			return err
		}
		h.publish(s.SwapID, eventPaymentFailed)
		return nil
	default:
		return nil
	}
}

// onLockupObserved implements the Mempool/Confirmed branches of §4.7:
// verify_tx the observed lockup (confirmation required only for the
// Confirmed event), reject underpayment outright, then either wait for
// confirmation (zero-conf ceiling exceeded or RBF still signaled) or
// attempt the claim.
func (h *ReceiveHandler) onLockupObserved(ctx context.Context, s *swap.ReceiveSwap, update statusstream.Update, confirmed bool) error {
	var payload struct {
		TxID string `json:"transaction_id"`
	}
	if len(update.Payload) > 0 {
		_ = json.Unmarshal(update.Payload, &payload)
	}
	if payload.TxID == "" {
		return errkind.New(errkind.Protocol, "lockup status update missing transaction id", nil)
	}

	_, paidAmount, rbf, err := h.verifyLockupOutput(ctx, s, payload.TxID, confirmed)
	if err != nil {
		return err
	}
	if uint64(paidAmount) < s.ReceiverAmountSat+s.ClaimFeesSat {
		_, err := h.DB.TryHandleReceiveSwapUpdate(s.SwapID, swap.Failed, nil, nil)
		if err != nil {
			return err
		}
		h.publish(s.SwapID, eventPaymentFailed)
		return nil
	}

	if _, err := h.DB.TryHandleReceiveSwapUpdate(s.SwapID, swap.Pending, &payload.TxID, nil); err != nil {
		return err
	}
	h.publish(s.SwapID, eventPaymentPending)

	// Zero-conf claims are only attempted under the configured
	// threshold and never while the lockup still signals RBF (spec.md
	// §4.7, invariant 6); above either bar we wait for the confirmed
	// status update before claiming.
	if !confirmed && (s.ReceiverAmountSat > h.Params.ZeroConfMaxAmountSat || rbf) {
		return nil
	}
	return h.claimSwap(ctx, s.SwapID)
}

// claimSwap implements the 5-step claim(swap_id) path (spec.md §4.7):
//  1. re-fetch the swap record (picks up the lockup tx id just stored)
//  2. short-circuit if an MRH payment already resolved it
//  3. locate the lockup output on chain
//  4. run the shared cooperative/unilateral claim
//  5. persist the claim tx id and publish the outcome; the cooperative
//     path yields no claim tx id, so nothing is persisted for it here
func (h *ReceiveHandler) claimSwap(ctx context.Context, swapID string) error {
	s, err := h.DB.FetchReceiveSwapByID(swapID)
	if err != nil {
		return err
	}
	if s.ClaimedByMRH() || s.ClaimTxID != nil {
		return nil
	}
	if s.LockupTxID == nil {
		return errkind.New(errkind.State, "claim attempted before any lockup was observed", nil)
	}
	// Invariant 7 / Testable Property 5: a swap learned via cross-wallet
	// sync never originates a claim broadcast of its own.
	if !s.Metadata.IsLocal {
		return nil
	}

	lockupVout, lockupValue, rbf, err := h.verifyLockupOutput(ctx, s, *s.LockupTxID, false)
	if err != nil {
		return err
	}
	if uint64(lockupValue) < s.ReceiverAmountSat+s.ClaimFeesSat {
		log.Debugf("receive swap %s: lockup re-verification underpaid, deferring claim", s.SwapID)
		return nil
	}
	if rbf {
		log.Debugf("receive swap %s: lockup still signals RBF, deferring claim", s.SwapID)
		return nil
	}

	claimAddress, err := h.Wallet.NewAddress("liquid")
	if err != nil {
		return err
	}

	paymentHash, err := invoicePaymentHash(s.Invoice)
	if err != nil {
		return err
	}

	txHex, err := claim(ctx, h.Claim, s.SwapID, *s.LockupTxID, lockupVout, lockupValue, false, paymentHash)
	if err != nil {
		if isAlreadyClaimed(err) {
			return nil
		}
		return err
	}

	if txHex == "" {
		// Cooperative path: the server broadcasts. We don't yet have a
		// claim tx id to persist; the reconciler's chain scan will
		// observe it landing on the claim address eventually.
		return nil
	}

	txid, err := broadcast(ctx, h.Liquid, h.Client, "liquid", txHex)
	if err != nil {
		return err
	}
	if err := h.DB.SetReceiveClaimTxID(s.SwapID, &claimAddress, txid); err != nil {
		if isAlreadyClaimed(err) {
			return nil
		}
		return err
	}
	if _, err := h.DB.TryHandleReceiveSwapUpdate(s.SwapID, swap.Complete, nil, &txid); err != nil {
		return err
	}
	h.publish(s.SwapID, eventPaymentSucceeded)
	return nil
}

func (h *ReceiveHandler) onTerminalFailure(s *swap.ReceiveSwap) error {
	if s.LockupTxID == nil {
		_, err := h.DB.TryHandleReceiveSwapUpdate(s.SwapID, swap.TimedOut, nil, nil)
		if err != nil {
			return err
		}
		h.publish(s.SwapID, eventPaymentFailed)
		return nil
	}
	// The server already holds a lockup we haven't claimed; nothing for
	// us to refund (we never locked anything up in a receive swap), so
	// this is simply a failed claim attempt.
	_, err := h.DB.TryHandleReceiveSwapUpdate(s.SwapID, swap.Failed, nil, nil)
	if err != nil {
		return err
	}
	h.publish(s.SwapID, eventPaymentFailed)
	return nil
}

// OnBlock rescans every ongoing receive swap with an unclaimed lockup
// on each new Liquid block (spec.md §4.7's Liquid block-driven
// rescan): covers the case where a status-stream update was missed.
func (h *ReceiveHandler) OnBlock(ctx context.Context, _ int32) {
	pending, err := h.DB.ListPendingReceiveSwapsByLockupTxID()
	if err != nil {
		return
	}
	for _, s := range pending {
		_ = h.claimSwap(ctx, s.SwapID)
	}
}

// verifyLockupOutput runs chainsvc.VerifyTx against the observed lockup
// txID (spec.md §4.7's "fetch + verify the lockup tx" step) and returns
// the vout/value of the output paying the swap's lockup address plus
// whether the tx still signals RBF.
func (h *ReceiveHandler) verifyLockupOutput(ctx context.Context, s *swap.ReceiveSwap, txID string, requireConfirmed bool) (vout uint32, value int64, rbf bool, err error) {
	var created swapper.CreateReverseResponse
	if err := json.Unmarshal([]byte(s.CreateResponseJSON), &created); err != nil {
		return 0, 0, false, errkind.New(errkind.Generic, "decode create-reverse response", err)
	}

	raw, err := h.Liquid.GetTransactionHex(ctx, txID)
	if err != nil {
		return 0, 0, false, err
	}
	if raw == nil {
		return 0, 0, false, chainsvc.ErrTxNotFound
	}

	tx, err := chainsvc.VerifyTx(ctx, h.Liquid, created.LockupAddress, txID, raw.Hex, requireConfirmed)
	if err != nil {
		return 0, 0, false, err
	}
	for i, out := range tx.Outputs {
		if out.Address == created.LockupAddress {
			return uint32(i), out.ValueSat, tx.SignalsRBF, nil
		}
	}
	return 0, 0, false, errkind.New(errkind.Protocol, "lockup tx has no output paying the swap's lockup address", nil)
}

func (h *ReceiveHandler) publish(swapID, kind string) {
	if h.Bus != nil {
		h.Bus.Publish(eventFor(swapID, kind))
	}
}
