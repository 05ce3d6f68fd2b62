// Package reconcile recovers persisted swap state from blockchain
// history (component I, spec.md §4.9): on startup and on each tick of
// the supervisor's reconcile ticker (a status-stream or chain-notifier
// reconnect does not start a pass by itself), it re-derives each
// ongoing swap's state purely from script histories and the tx
// classification the caller supplies, and skips any swap a tx id would
// be cleared for within the grace period. The derivation itself is
// kept side-effect free, the same split lnd draws between
// contractcourt's pure resolution logic and the chain i/o that feeds it.
package reconcile

import (
	"errors"
	"sort"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/swap"
)

// TxMap partitions the transactions a caller has resolved enough detail
// on to classify relative to the wallet (spec.md §4.9): Outgoing holds
// txs broadcast by this wallet, Incoming holds txs that paid one of
// this wallet's own reserved addresses. The pure Recover* functions
// below only ever consult Incoming — a swap's lockup is always the
// earliest history entry regardless of map membership, since for
// Receive swaps (and the server-lockup leg of a Chain swap) the lockup
// is broadcast by the counter-party and never appears in either map.
type TxMap struct {
	Outgoing map[string]chainsvc.Tx
	Incoming map[string]chainsvc.Tx
}

// sortChronological returns history ordered oldest-first. Unconfirmed
// entries (Height <= 0) sort last: Esplora-style APIs return history
// mempool-first rather than guaranteeing earliest-first order, so this
// is a deliberate ordering choice rather than a passthrough of
// whatever order the chain service happened to return.
func sortChronological(history []chainsvc.HistoryEntry) []chainsvc.HistoryEntry {
	out := append([]chainsvc.HistoryEntry(nil), history...)
	sort.SliceStable(out, func(i, j int) bool {
		hi, hj := out[i].Height, out[j].Height
		if hi <= 0 {
			hi = 1<<31 - 1
		}
		if hj <= 0 {
			hj = 1<<31 - 1
		}
		return hi < hj
	})
	return out
}

// firstThenLaterIncoming is the shared shape behind every swap kind's
// two-leg recovery: the earliest entry in history is the lockup
// candidate; the first later entry whose tx appears in txMap.Incoming
// is the claim or refund leg that credits the wallet.
func firstThenLaterIncoming(history []chainsvc.HistoryEntry, txMap TxMap) (first, later *string, laterConfirmed bool) {
	sorted := sortChronological(history)
	if len(sorted) == 0 {
		return nil, nil, false
	}
	firstID := sorted[0].TxID
	for _, h := range sorted[1:] {
		tx, ok := txMap.Incoming[h.TxID]
		if !ok {
			continue
		}
		id := h.TxID
		return &firstID, &id, tx.IsConfirmed
	}
	return &firstID, nil, false
}

// amountPaidTo returns the value of tx's output paying address, if any.
func amountPaidTo(tx chainsvc.Tx, address string) (int64, bool) {
	for _, out := range tx.Outputs {
		if out.Address == address {
			return out.ValueSat, true
		}
	}
	return 0, false
}

// isInvalidTransition reports whether err is the state graph rejecting
// a transition (swap.InvalidStateTransition) rather than a genuine
// infrastructure failure. Reconcilers treat the former as "nothing to
// do" rather than an error: the graph is itself the backstop against a
// derived state moving a swap backward (spec.md §4.9's overwrite
// policy), so recover/apply never needs to duplicate that logic.
func isInvalidTransition(err error) bool {
	var t *swap.InvalidStateTransition
	return errors.As(err, &t)
}

// RecoveredSend is the pure derivation RecoverSend produces for a Send
// swap. A nil State means "no opinion" — the swap's persisted state is
// left untouched.
type RecoveredSend struct {
	State      *swap.PaymentState
	LockupTxID *string
	RefundTxID *string
}

// RecoverSend derives a Send swap's on-chain-observable state from its
// lockup-script history (spec.md §4.9). hasPreimage reflects whether
// the local signer already holds a preimage proving a cooperative claim
// went through; expired reflects whether the relevant chain tip has
// passed the swap's timeout.
func RecoverSend(history []chainsvc.HistoryEntry, txMap TxMap, hasPreimage, expired bool) RecoveredSend {
	lockupID, refundID, refundConfirmed := firstThenLaterIncoming(history, txMap)

	var state *swap.PaymentState
	set := func(s swap.PaymentState) { state = &s }

	switch {
	case lockupID == nil:
		if expired {
			set(swap.TimedOut)
		}
	case hasPreimage && refundID == nil:
		set(swap.Complete)
	case refundID != nil:
		// A preimage alongside an observed refund means the server
		// both leaked a preimage and refunded; the refund leg is the
		// one with on-chain evidence, so it wins (Open Question:
		// "does a known preimage outrank an observed refund" is
		// resolved here in favor of the refund).
		if refundConfirmed {
			set(swap.Failed)
		} else {
			set(swap.RefundPending)
		}
	default:
		set(swap.Pending)
	}

	return RecoveredSend{State: state, LockupTxID: lockupID, RefundTxID: refundID}
}

// RecoveredReceive is the pure derivation RecoverReceive produces for a
// Receive swap.
type RecoveredReceive struct {
	State        *swap.PaymentState
	LockupTxID   *string
	ClaimTxID    *string
	MRHTxID      *string
	MRHAmountSat *uint64
}

// RecoverReceive derives a Receive swap's state from its claim-script
// history and, when no server lockup has been observed yet, its Magic
// Routing Hint address's history (spec.md §4.9, invariant 5). mrhAddress
// empty disables the MRH path outright. An MRH candidate must post-date
// createdAt and pay mrhAddress at least receiverAmountSat to count,
// mirroring the swap-creation-time cutoff a direct Liquid payment has to
// clear to be attributed to this invoice rather than an unrelated spend.
func RecoverReceive(createdAt int64, receiverAmountSat uint64, mrhAddress string,
	claimHistory, mrhHistory []chainsvc.HistoryEntry, txMap TxMap, expired bool) RecoveredReceive {

	lockupID, claimID, claimConfirmed := firstThenLaterIncoming(claimHistory, txMap)

	var mrhID *string
	var mrhAmount *uint64
	var mrhConfirmed bool
	if lockupID == nil && mrhAddress != "" {
		for _, h := range sortChronological(mrhHistory) {
			tx, ok := txMap.Incoming[h.TxID]
			if !ok {
				continue
			}
			if h.Timestamp != nil && *h.Timestamp <= createdAt {
				continue
			}
			amount, ok := amountPaidTo(tx, mrhAddress)
			if !ok || amount < 0 || uint64(amount) < receiverAmountSat {
				continue
			}
			id := h.TxID
			paid := uint64(amount)
			mrhID, mrhAmount = &id, &paid
			mrhConfirmed = tx.IsConfirmed
			break
		}
	}

	var state *swap.PaymentState
	set := func(s swap.PaymentState) { state = &s }

	switch {
	case lockupID != nil:
		switch {
		case claimID != nil && claimConfirmed:
			set(swap.Complete)
		case claimID != nil:
			set(swap.Pending)
		case expired:
			set(swap.Failed)
		default:
			set(swap.Pending)
		}
	case mrhID != nil:
		if mrhConfirmed {
			set(swap.Complete)
		} else {
			set(swap.Pending)
		}
	case expired:
		set(swap.Failed)
	}

	return RecoveredReceive{
		State:        state,
		LockupTxID:   lockupID,
		ClaimTxID:    claimID,
		MRHTxID:      mrhID,
		MRHAmountSat: mrhAmount,
	}
}

// RecoveredChain is the pure derivation RecoverChain produces for a
// Chain swap.
type RecoveredChain struct {
	State            *swap.PaymentState
	UserLockupTxID   *string
	ServerLockupTxID *string
	ClaimTxID        *string
	RefundTxID       *string
}

// RecoverChain derives a Chain swap's state from the user-lockup and
// server-lockup script histories (spec.md §4.9). userLockupStillUnspent
// is the caller's answer to "does a UTXO or balance check on the user
// lockup script still show the funds sitting there" — consulted only
// once the swap has expired with no claim or refund observed, to decide
// between Refundable (funds still there, user can act) and Failed
// (funds already gone some other way this process can't explain).
func RecoverChain(userLockupHistory, serverLockupHistory []chainsvc.HistoryEntry,
	txMap TxMap, expired, userLockupStillUnspent bool) RecoveredChain {

	userLockupID, refundID, refundConfirmed := firstThenLaterIncoming(userLockupHistory, txMap)
	serverLockupID, claimID, claimConfirmed := firstThenLaterIncoming(serverLockupHistory, txMap)

	var state *swap.PaymentState
	set := func(s swap.PaymentState) { state = &s }

	switch {
	case userLockupID == nil:
		if expired {
			set(swap.TimedOut)
		}
	case claimID != nil:
		if claimConfirmed {
			set(swap.Complete)
		} else {
			set(swap.Pending)
		}
	case refundID != nil:
		if refundConfirmed {
			set(swap.Failed)
		} else {
			set(swap.RefundPending)
		}
	case expired:
		if userLockupStillUnspent {
			set(swap.Refundable)
		} else {
			set(swap.Failed)
		}
	default:
		set(swap.Pending)
	}

	return RecoveredChain{
		State:            state,
		UserLockupTxID:   userLockupID,
		ServerLockupTxID: serverLockupID,
		ClaimTxID:        claimID,
		RefundTxID:       refundID,
	}
}
