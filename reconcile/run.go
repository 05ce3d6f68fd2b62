package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/clock"
	"github.com/lightningnetwork/lnliquid/errkind"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
)

// historyRetries bounds the retries GetScriptHistoryWithRetry performs
// per script during a reconciliation pass.
const historyRetries = 3

// Reconciler drives the pure Recover* functions with live chain data on
// startup and on each tick of the supervisor's reconcile ticker
// (component I, spec.md §4.9; a reconnect does not start a pass by
// itself), applying their output back through the persister. A swap the
// grace period protects is still derived, but the result is discarded
// before any write, so a skip never attempts a misleading transition.
type Reconciler struct {
	DB      *persist.DB
	Bitcoin chainsvc.ChainService
	Liquid  chainsvc.ChainService
	Clock   clock.Clock
	Grace   time.Duration

	// HasPreimage reports whether the local signer already holds a
	// preimage for swapID, the Send-swap cooperative-claim-succeeded
	// signal RecoverSend needs and that chain data alone can't supply.
	HasPreimage func(swapID string) bool
}

// Run reconciles every ongoing swap of all three kinds. A failure
// reading a swap's own chain data is logged and skips only that swap;
// Run only returns an error if it can't get started at all (tip height,
// reserved-address list).
func (r *Reconciler) Run(ctx context.Context) error {
	liquidTip, err := r.Liquid.TipHeight(ctx)
	if err != nil {
		return errkind.New(errkind.Transport, "fetch liquid tip height", err)
	}
	bitcoinTip, err := r.Bitcoin.TipHeight(ctx)
	if err != nil {
		return errkind.New(errkind.Transport, "fetch bitcoin tip height", err)
	}

	reservedList, err := r.DB.ListReservedAddresses()
	if err != nil {
		return err
	}
	reserved := make(map[string]bool, len(reservedList))
	for _, addr := range reservedList {
		reserved[addr] = true
	}

	r.reconcileSends(ctx, reserved)
	r.reconcileReceives(ctx, liquidTip, reserved)
	r.reconcileChains(ctx, liquidTip, bitcoinTip, reserved)
	return nil
}

// buildTxMap resolves every tx in history that pays one of the wallet's
// reserved addresses, classifying it Incoming with its confirmation
// taken from the history entry's height (history entries already carry
// confirmation depth; there's no need to re-derive it from the fetched
// tx). Entries whose tx can't be fetched are skipped with a warning
// rather than aborting the whole pass.
func (r *Reconciler) buildTxMap(ctx context.Context, chain chainsvc.ChainService, history []chainsvc.HistoryEntry, reserved map[string]bool) TxMap {
	txMap := TxMap{Outgoing: map[string]chainsvc.Tx{}, Incoming: map[string]chainsvc.Tx{}}
	for _, h := range history {
		tx, err := chain.GetTransactionHex(ctx, h.TxID)
		if err != nil || tx == nil {
			if err != nil {
				log.Warnf("reconcile: fetch tx %s: %v", h.TxID, err)
			}
			continue
		}
		tx.IsConfirmed = h.Height > 0
		for _, out := range tx.Outputs {
			if reserved[out.Address] {
				txMap.Incoming[h.TxID] = *tx
				break
			}
		}
	}
	return txMap
}

func (r *Reconciler) withinGrace(swapID string) bool {
	return WithinGracePeriod(r.DB.LastWrittenAt(swapID), r.Clock.Now(), r.Grace)
}

func (r *Reconciler) reconcileSends(ctx context.Context, reserved map[string]bool) {
	swaps, err := r.DB.ListOngoingSendSwaps()
	if err != nil {
		log.Warnf("reconcile sends: list ongoing: %v", err)
		return
	}
	for _, s := range swaps {
		if err := r.reconcileSend(ctx, s, reserved); err != nil {
			log.Warnf("reconcile send swap %s: %v", s.SwapID, err)
		}
	}
}

func (r *Reconciler) reconcileSend(ctx context.Context, s *swap.SendSwap, reserved map[string]bool) error {
	var created swapper.CreateSubmarineResponse
	if err := json.Unmarshal([]byte(s.CreateResponseJSON), &created); err != nil {
		return errkind.New(errkind.Generic, "decode create-submarine response", err)
	}
	script, err := chainsvc.ScriptForAddress(created.Address)
	if err != nil {
		return err
	}
	history, err := r.Liquid.GetScriptHistoryWithRetry(ctx, script, historyRetries)
	if err != nil {
		return err
	}

	txMap := r.buildTxMap(ctx, r.Liquid, history, reserved)
	hasPreimage := s.Preimage != nil || (r.HasPreimage != nil && r.HasPreimage(s.SwapID))

	// Send swaps carry no persisted timeout height of their own; the
	// server declares expiry over the status stream rather than a
	// locally-checkable block height, so reconcile never declares
	// TimedOut on its own here (spec.md §4.6).
	const expired = false

	recovered := RecoverSend(history, txMap, hasPreimage, expired)
	if ShouldSkipSend(s, recovered, r.withinGrace(s.SwapID)) {
		log.Warnf("send swap %s: skipping recovery inside grace period, would clear refund tx id", s.SwapID)
		return nil
	}
	return r.applySend(s.SwapID, recovered)
}

func (r *Reconciler) applySend(swapID string, rec RecoveredSend) error {
	if rec.State == nil {
		return nil
	}
	_, err := r.DB.TryHandleSendSwapUpdate(swapID, *rec.State, rec.LockupTxID, rec.RefundTxID)
	if err != nil && isInvalidTransition(err) {
		return nil
	}
	return err
}

func (r *Reconciler) reconcileReceives(ctx context.Context, liquidTip int32, reserved map[string]bool) {
	swaps, err := r.DB.ListOngoingReceiveSwaps()
	if err != nil {
		log.Warnf("reconcile receives: list ongoing: %v", err)
		return
	}
	for _, s := range swaps {
		if err := r.reconcileReceive(ctx, s, liquidTip, reserved); err != nil {
			log.Warnf("reconcile receive swap %s: %v", s.SwapID, err)
		}
	}
}

func (r *Reconciler) reconcileReceive(ctx context.Context, s *swap.ReceiveSwap, liquidTip int32, reserved map[string]bool) error {
	var created swapper.CreateReverseResponse
	if err := json.Unmarshal([]byte(s.CreateResponseJSON), &created); err != nil {
		return errkind.New(errkind.Generic, "decode create-reverse response", err)
	}

	claimScript, err := chainsvc.ScriptForAddress(created.LockupAddress)
	if err != nil {
		return err
	}
	claimHistory, err := r.Liquid.GetScriptHistoryWithRetry(ctx, claimScript, historyRetries)
	if err != nil {
		return err
	}

	var mrhAddress string
	var mrhHistory []chainsvc.HistoryEntry
	if s.MRHAddress != nil {
		mrhAddress = *s.MRHAddress
		mrhScript, err := chainsvc.ScriptForAddress(mrhAddress)
		if err != nil {
			return err
		}
		mrhHistory, err = r.Liquid.GetScriptHistoryWithRetry(ctx, mrhScript, historyRetries)
		if err != nil {
			return err
		}
	}

	combined := append(append([]chainsvc.HistoryEntry(nil), claimHistory...), mrhHistory...)
	txMap := r.buildTxMap(ctx, r.Liquid, combined, reserved)

	expired := liquidTip >= int32(created.TimeoutBlockHeight)
	recovered := RecoverReceive(s.CreatedAt, s.ReceiverAmountSat, mrhAddress, claimHistory, mrhHistory, txMap, expired)

	if ShouldSkipReceive(s, recovered, r.withinGrace(s.SwapID)) {
		log.Warnf("receive swap %s: skipping recovery inside grace period, would clear claim tx id", s.SwapID)
		return nil
	}
	return r.applyReceive(s, recovered)
}

func (r *Reconciler) applyReceive(s *swap.ReceiveSwap, rec RecoveredReceive) error {
	if s.ClaimedByMRH() {
		// Invariant 5: once resolved by MRH, never touched again.
		return nil
	}
	if rec.MRHTxID != nil && s.MRHTxID == nil {
		if err := r.DB.SetReceiveMRH(s.SwapID, *rec.MRHTxID, *rec.MRHAmountSat); err != nil && !isInvalidTransition(err) {
			return err
		}
		return nil
	}
	if rec.State == nil {
		return nil
	}
	_, err := r.DB.TryHandleReceiveSwapUpdate(s.SwapID, *rec.State, rec.LockupTxID, rec.ClaimTxID)
	if err != nil && isInvalidTransition(err) {
		return nil
	}
	return err
}

func (r *Reconciler) reconcileChains(ctx context.Context, liquidTip, bitcoinTip int32, reserved map[string]bool) {
	swaps, err := r.DB.ListOngoingChainSwaps()
	if err != nil {
		log.Warnf("reconcile chains: list ongoing: %v", err)
		return
	}
	for _, s := range swaps {
		if err := r.reconcileChain(ctx, s, liquidTip, bitcoinTip, reserved); err != nil {
			log.Warnf("reconcile chain swap %s: %v", s.SwapID, err)
		}
	}
}

func (r *Reconciler) reconcileChain(ctx context.Context, s *swap.ChainSwap, liquidTip, bitcoinTip int32, reserved map[string]bool) error {
	userChain, serverChain := r.Liquid, r.Bitcoin
	tip := liquidTip
	if s.Direction == swap.Incoming {
		userChain, serverChain = r.Bitcoin, r.Liquid
		tip = bitcoinTip
	}

	userScript, err := chainsvc.ScriptForAddress(s.LockupAddress)
	if err != nil {
		return err
	}
	userHistory, err := userChain.GetScriptHistoryWithRetry(ctx, userScript, historyRetries)
	if err != nil {
		return err
	}

	var serverHistory []chainsvc.HistoryEntry
	if s.ClaimAddress != nil {
		serverScript, err := chainsvc.ScriptForAddress(*s.ClaimAddress)
		if err != nil {
			return err
		}
		serverHistory, err = serverChain.GetScriptHistoryWithRetry(ctx, serverScript, historyRetries)
		if err != nil {
			return err
		}
	}

	userTxMap := r.buildTxMap(ctx, userChain, userHistory, reserved)
	serverTxMap := r.buildTxMap(ctx, serverChain, serverHistory, reserved)
	combined := TxMap{
		Outgoing: mergeTxMaps(userTxMap.Outgoing, serverTxMap.Outgoing),
		Incoming: mergeTxMaps(userTxMap.Incoming, serverTxMap.Incoming),
	}

	expired := tip >= int32(s.TimeoutBlockHeight)

	var unspent bool
	if expired {
		utxos, err := userChain.GetScriptUTXOs(ctx, userScript)
		if err != nil {
			log.Warnf("chain swap %s: fetch user lockup utxos: %v", s.SwapID, err)
		} else {
			unspent = len(utxos) > 0
		}
	}

	recovered := RecoverChain(userHistory, serverHistory, combined, expired, unspent)
	if ShouldSkipChain(s, recovered, r.withinGrace(s.SwapID)) {
		log.Warnf("chain swap %s: skipping recovery inside grace period, would clear claim/refund tx id", s.SwapID)
		return nil
	}
	return r.applyChain(s.SwapID, recovered)
}

func (r *Reconciler) applyChain(swapID string, rec RecoveredChain) error {
	if rec.State == nil {
		return nil
	}
	_, err := r.DB.TryHandleChainSwapUpdate(swapID, *rec.State, rec.UserLockupTxID, rec.ServerLockupTxID, rec.ClaimTxID, rec.RefundTxID)
	if err != nil && isInvalidTransition(err) {
		return nil
	}
	return err
}

func mergeTxMaps(maps ...map[string]chainsvc.Tx) map[string]chainsvc.Tx {
	out := make(map[string]chainsvc.Tx)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
