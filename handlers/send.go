package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/errkind"
	"github.com/lightningnetwork/lnliquid/eventbus"
	"github.com/lightningnetwork/lnliquid/invoice"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/statusstream"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
)

// Swap-server status strings a Send swap's update stream carries
// (spec.md §4.6). These are the server's own vocabulary, not ours:
// handlers only switch on them, they never originate them.
const (
	sendStatusInvoiceSet           = "invoice.set"
	sendStatusTransactionMempool   = "transaction.mempool"
	sendStatusTransactionConfirmed = "transaction.confirmed"
	sendStatusClaimPending         = "transaction.claim.pending"
	sendStatusInvoiceFailedToPay   = "invoice.failedToPay"
	sendStatusSwapExpired          = "swap.expired"
	sendStatusLockupFailed         = "transaction.lockupFailed"
)

// SendHandler drives submarine swaps (component F, spec.md §4.6): the
// user locks funds on Liquid so the server will pay a Lightning
// invoice on their behalf, then cooperatively signs so the server can
// claim the lockup once the invoice is paid.
type SendHandler struct {
	DB     *persist.DB
	Liquid chainsvc.ChainService
	Client *swapper.Client
	Claim  ClaimDeps
	Refund RefundDeps
	Bus    *eventbus.Bus
}

// HandleStatusUpdate applies one status-stream update for a send swap.
func (h *SendHandler) HandleStatusUpdate(ctx context.Context, update statusstream.Update) error {
	s, err := h.DB.FetchSendSwapByID(update.SwapID)
	if err != nil {
		return err
	}

	switch update.Status {
	case sendStatusInvoiceSet:
		// No persisted state change: this is informational until a
		// lockup or claim event actually moves the swap.
		h.publish(update.SwapID, eventPaymentPending)
		return nil

	case sendStatusTransactionMempool, sendStatusTransactionConfirmed:
		return h.onLockupObserved(ctx, s, update)

	case sendStatusClaimPending:
		return h.onClaimPending(ctx, s)

	case sendStatusInvoiceFailedToPay, sendStatusSwapExpired, sendStatusLockupFailed:
		return h.onFailureState(ctx, s)

	default:
		return nil
	}
}

func (h *SendHandler) onLockupObserved(ctx context.Context, s *swap.SendSwap, update statusstream.Update) error {
	var payload struct {
		TxID string `json:"transaction_id"`
	}
	if len(update.Payload) > 0 {
		_ = json.Unmarshal(update.Payload, &payload)
	}
	if payload.TxID == "" {
		return errkind.New(errkind.Protocol, "lockup status update missing transaction id", nil)
	}

	if _, err := h.DB.TryHandleSendSwapUpdate(s.SwapID, swap.Pending, &payload.TxID, nil); err != nil {
		return err
	}
	_ = h.DB.InsertOrUpdatePayment(swap.PaymentTxData{
		TxID:        payload.TxID,
		AssetID:     "liquid",
		AmountSat:   -int64(s.PayerAmountSat),
		PaymentType: swap.Send,
		IsConfirmed: update.Status == sendStatusTransactionConfirmed,
	})
	h.publish(s.SwapID, eventPaymentPending)
	return nil
}

// onClaimPending signs cooperatively so the server can claim the
// lockup it's owed now that our invoice has been paid (spec.md §4.6:
// this is the server's claim of our funds, the counterpart to the
// receive-swap claim we make of the server's funds).
func (h *SendHandler) onClaimPending(ctx context.Context, s *swap.SendSwap) error {
	if s.LockupTxID == nil {
		return errkind.New(errkind.State, "claim pending before any lockup was observed", nil)
	}

	lockupVout, lockupValue, err := h.locateLockupOutput(ctx, s)
	if err != nil {
		return err
	}

	paymentHash, err := invoicePaymentHash(s.Invoice)
	if err != nil {
		return err
	}

	if _, err := claim(ctx, h.Claim, s.SwapID, *s.LockupTxID, lockupVout, lockupValue, false, paymentHash); err != nil {
		if isAlreadyClaimed(err) {
			return nil
		}
		return err
	}

	if _, err := h.DB.TryHandleSendSwapUpdate(s.SwapID, swap.Complete, nil, nil); err != nil {
		return err
	}
	h.publish(s.SwapID, eventPaymentSucceeded)
	return nil
}

// onFailureState moves the swap toward Refundable (if we already
// locked up funds) or a terminal failure (if we never did).
func (h *SendHandler) onFailureState(ctx context.Context, s *swap.SendSwap) error {
	if s.LockupTxID == nil {
		_, err := h.DB.TryHandleSendSwapUpdate(s.SwapID, swap.Failed, nil, nil)
		if err != nil {
			return err
		}
		h.publish(s.SwapID, eventPaymentFailed)
		return nil
	}

	if _, err := h.DB.TryHandleSendSwapUpdate(s.SwapID, swap.Refundable, nil, nil); err != nil {
		return err
	}
	h.publish(s.SwapID, eventPaymentRefundable)
	return h.tryRefund(ctx, s.SwapID)
}

// TriggerRefund attempts a refund for a refundable send swap on
// demand, the path the CLI's idempotent "refund" verb calls into: safe
// to call repeatedly, a no-op once a refund tx id is already on file.
func (h *SendHandler) TriggerRefund(ctx context.Context, swapID string) error {
	return h.tryRefund(ctx, swapID)
}

// OnBlock retries every send swap waiting on a refund whenever a new
// Liquid block arrives (spec.md §4.6's Liquid block-driven refund
// retry): the cooperative refund round trip may have failed earlier
// because the server was briefly unreachable.
func (h *SendHandler) OnBlock(ctx context.Context, _ int32) {
	pending, err := h.DB.ListPendingSendSwapsByLockupTxID()
	if err != nil {
		return
	}
	for _, s := range pending {
		if s.State != swap.Refundable && s.State != swap.RefundPending {
			continue
		}
		_ = h.tryRefund(ctx, s.SwapID)
	}
}

func (h *SendHandler) tryRefund(ctx context.Context, swapID string) error {
	s, err := h.DB.FetchSendSwapByID(swapID)
	if err != nil {
		return err
	}
	if s.LockupTxID == nil || s.RefundTxID != nil {
		return nil
	}
	// Invariant 7 / Testable Property 5: a swap learned via cross-wallet
	// sync never originates a refund broadcast of its own.
	if !s.Metadata.IsLocal {
		return nil
	}

	lockupVout, lockupValue, err := h.locateLockupOutput(ctx, s)
	if err != nil {
		return err
	}

	txHex, err := refund(ctx, h.Refund, s.SwapID, *s.LockupTxID, lockupVout, lockupValue)
	if err != nil {
		return err
	}
	if txHex == "" {
		// Cooperative path: the server broadcasts. We record
		// RefundPending; no refund tx id is known, so OnBlock's rescan
		// may attempt the cooperative refund again on a later block.
		if _, err := h.DB.TryHandleSendSwapUpdate(s.SwapID, swap.RefundPending, nil, nil); err != nil {
			return err
		}
		return nil
	}

	txid, err := broadcast(ctx, h.Liquid, h.Client, "liquid", txHex)
	if err != nil {
		return err
	}
	if err := h.DB.SetSendRefundTxID(s.SwapID, txid); err != nil {
		if isAlreadyClaimed(err) {
			return nil
		}
		return err
	}
	if _, err := h.DB.TryHandleSendSwapUpdate(s.SwapID, swap.RefundPending, nil, &txid); err != nil {
		return err
	}
	return nil
}

// locateLockupOutput resolves the vout/value of the lockup output we
// control by cross-referencing the server's original lockup address
// (carried in CreateResponseJSON) against the observed lockup tx.
func (h *SendHandler) locateLockupOutput(ctx context.Context, s *swap.SendSwap) (uint32, int64, error) {
	var created swapper.CreateSubmarineResponse
	if err := json.Unmarshal([]byte(s.CreateResponseJSON), &created); err != nil {
		return 0, 0, errkind.New(errkind.Generic, "decode create-submarine response", err)
	}

	tx, err := h.Liquid.GetTransactionHex(ctx, *s.LockupTxID)
	if err != nil {
		return 0, 0, err
	}
	if tx == nil {
		return 0, 0, errkind.New(errkind.Transport, "lockup tx not found", nil)
	}
	for i, out := range tx.Outputs {
		if out.Address == created.Address {
			return uint32(i), out.ValueSat, nil
		}
	}
	return 0, 0, errkind.New(errkind.Protocol, fmt.Sprintf("lockup tx %s has no output paying %s", *s.LockupTxID, created.Address), nil)
}

func (h *SendHandler) publish(swapID, kind string) {
	if h.Bus != nil {
		h.Bus.Publish(eventFor(swapID, kind))
	}
}
