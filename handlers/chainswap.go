package handlers

import (
	"context"
	"encoding/json"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/errkind"
	"github.com/lightningnetwork/lnliquid/eventbus"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/statusstream"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
)

// Swap-server status strings a Chain swap's update stream carries
// (spec.md §4.8).
const (
	chainStatusUserLockupMempool     = "transaction.mempool"
	chainStatusUserLockupConfirmed   = "transaction.confirmed"
	chainStatusServerLockupMempool   = "transaction.server.mempool"
	chainStatusServerLockupConfirmed = "transaction.server.confirmed"
	chainStatusSwapExpired           = "swap.expired"
	chainStatusTransactionFailed     = "transaction.failed"
	chainStatusTransactionRefunded   = "transaction.refunded"
)

// ChainSwapHandler drives on-chain <-> on-chain swaps (component H,
// spec.md §4.8). Direction picks which chain carries the user's lockup
// and which carries the server's (the one we claim from).
type ChainSwapHandler struct {
	DB      *persist.DB
	Bitcoin chainsvc.ChainService
	Liquid  chainsvc.ChainService
	Client  *swapper.Client
	Claim   ClaimDeps
	Refund  RefundDeps
	Bus     *eventbus.Bus
	Wallet  Wallet
	Params  Params
}

func (h *ChainSwapHandler) userLockupChain(s *swap.ChainSwap) chainsvc.ChainService {
	if s.Direction == swap.Incoming {
		return h.Bitcoin
	}
	return h.Liquid
}

func (h *ChainSwapHandler) serverLockupChain(s *swap.ChainSwap) chainsvc.ChainService {
	if s.Direction == swap.Incoming {
		return h.Liquid
	}
	return h.Bitcoin
}

func (h *ChainSwapHandler) serverLockupCurrency(s *swap.ChainSwap) string {
	if s.Direction == swap.Incoming {
		return "liquid"
	}
	return "bitcoin"
}

// HandleStatusUpdate applies one status-stream update for a chain swap.
func (h *ChainSwapHandler) HandleStatusUpdate(ctx context.Context, update statusstream.Update) error {
	s, err := h.DB.FetchChainSwapByID(update.SwapID)
	if err != nil {
		return err
	}

	switch update.Status {
	case chainStatusUserLockupMempool:
		return h.onUserLockupObserved(ctx, s, update, false)
	case chainStatusUserLockupConfirmed:
		return h.onUserLockupObserved(ctx, s, update, true)
	case chainStatusServerLockupMempool:
		return h.onServerLockupObserved(ctx, s, update, false)
	case chainStatusServerLockupConfirmed:
		return h.onServerLockupObserved(ctx, s, update, true)
	case chainStatusSwapExpired, chainStatusTransactionFailed:
		return h.onFailureState(ctx, s)
	case chainStatusTransactionRefunded:
		_, err := h.DB.TryHandleChainSwapUpdate(s.SwapID, swap.Failed, nil, nil, nil, nil)
		return err
	default:
		return nil
	}
}

// onUserLockupObserved verifies the observed tx actually pays the
// swap's lockup address (the user-lockup existence check), and for an
// amountless swap runs the 7-step auto-accept algorithm.
func (h *ChainSwapHandler) onUserLockupObserved(ctx context.Context, s *swap.ChainSwap, update statusstream.Update, confirmed bool) error {
	var payload struct {
		TxID string `json:"transaction_id"`
	}
	if len(update.Payload) > 0 {
		_ = json.Unmarshal(update.Payload, &payload)
	}
	if payload.TxID == "" {
		return errkind.New(errkind.Protocol, "user lockup status update missing transaction id", nil)
	}

	tx, err := h.userLockupChain(s).GetTransactionHex(ctx, payload.TxID)
	if err != nil {
		return err
	}
	if tx == nil {
		return errkind.New(errkind.Transport, "user lockup tx not found", nil)
	}
	var paidAmount int64
	found := false
	for _, out := range tx.Outputs {
		if out.Address == s.LockupAddress {
			paidAmount = out.ValueSat
			found = true
			break
		}
	}
	if !found {
		return errkind.New(errkind.Protocol, "observed tx does not pay the swap's lockup address", nil)
	}

	toState := swap.Pending
	if s.IsAmountless() {
		if err := h.DB.UpdateActualPayerAmount(s.SwapID, uint64(paidAmount)); err != nil {
			return err
		}
		accept, err := h.decideAmountlessAcceptance(ctx, s, uint64(paidAmount))
		if err != nil {
			return err
		}
		if !accept {
			toState = swap.WaitingFeeAcceptance
		}
	}

	if _, err := h.DB.TryHandleChainSwapUpdate(s.SwapID, toState, &payload.TxID, nil, nil, nil); err != nil {
		return err
	}
	if toState == swap.WaitingFeeAcceptance {
		h.publish(s.SwapID, eventPaymentWaitingFeeAcceptance)
		return nil
	}
	h.publish(s.SwapID, eventPaymentPending)
	return nil
}

// decideAmountlessAcceptance implements the Scenario D auto-accept
// boundary check (spec.md §4.8/§8): given the amount the user actually
// locked up (the just-observed output value), estimate what the server
// will lock up for us net of its miner-fee and service-fee cut, and
// auto-accept the server's quote only when it sits within the
// configured leeway of that estimate; otherwise leave the swap for
// explicit user acceptance.
func (h *ChainSwapHandler) decideAmountlessAcceptance(ctx context.Context, s *swap.ChainSwap, userLockupAmount uint64) (bool, error) {
	pairs, err := h.Client.GetChainPairs(ctx)
	if err != nil {
		return false, err
	}
	pair, ok := chainPairForDirection(pairs, s.Direction)
	if !ok {
		return false, errkind.New(errkind.Protocol, "no matching chain-swap fee pair for this direction", nil)
	}

	serverFeesEstimate := pair.MinerFeeSat
	serviceFees := uint64(float64(userLockupAmount) * pair.FeePercent / 100)
	estimate := userLockupAmount - serverFeesEstimate - serviceFees
	leeway := h.Params.OnchainFeeRateLeewaySatPerVbyte * uint64(h.Params.EstimatedBTCLockupTxVsize)

	quote, err := h.Client.GetZeroAmountChainSwapQuote(ctx, s.SwapID)
	if err != nil {
		return false, err
	}

	// "Ready for auto-accept" iff quote >= estimate - leeway, rearranged
	// to avoid an unsigned underflow when leeway exceeds estimate.
	if quote.ActualPayerAmountSat+leeway < estimate {
		return false, nil
	}

	accepted := quote.ActualPayerAmountSat - s.ClaimFeesSat
	if err := h.Client.AcceptZeroAmountChainSwapQuote(ctx, s.SwapID, quote.ActualPayerAmountSat); err != nil {
		return false, err
	}
	if err := h.DB.UpdateAcceptedReceiverAmount(s.SwapID, &accepted); err != nil {
		return false, err
	}
	if err := h.DB.SetChainSwapAutoAcceptedFees(s.SwapID); err != nil {
		return false, err
	}
	return true, nil
}

// chainPairForDirection picks the get_chain_pairs entry matching a chain
// swap's direction: Incoming carries the user's Bitcoin lockup to a
// Liquid server lockup (From BTC, To L-BTC); Outgoing is the reverse.
func chainPairForDirection(pairs []swapper.Pair, direction swap.Direction) (swapper.Pair, bool) {
	from, to := "L-BTC", "BTC"
	if direction == swap.Incoming {
		from, to = "BTC", "L-BTC"
	}
	for _, p := range pairs {
		if p.From == from && p.To == to {
			return p, true
		}
	}
	return swapper.Pair{}, false
}

// onServerLockupObserved verifies the server's counter-lockup (amount
// and RBF) via chainsvc.VerifyTx and runs the claim path, skipping
// zero-conf claims unless the swap opted in, sits under the configured
// ceiling, and doesn't still signal RBF (spec.md §4.8, invariant 6).
func (h *ChainSwapHandler) onServerLockupObserved(ctx context.Context, s *swap.ChainSwap, update statusstream.Update, confirmed bool) error {
	var payload struct {
		TxID string `json:"transaction_id"`
	}
	if len(update.Payload) > 0 {
		_ = json.Unmarshal(update.Payload, &payload)
	}
	if payload.TxID == "" {
		return errkind.New(errkind.Protocol, "server lockup status update missing transaction id", nil)
	}

	if _, err := h.DB.TryHandleChainSwapUpdate(s.SwapID, swap.Pending, nil, &payload.TxID, nil, nil); err != nil {
		return err
	}

	_, _, rbf, err := h.verifyServerLockupOutput(ctx, s, payload.TxID, confirmed)
	if err != nil {
		return err
	}

	amount := s.ReceiverAmountSat
	if !confirmed && (!s.AcceptZeroConf || amount > h.Params.ZeroConfMaxAmountSat || rbf) {
		return nil
	}
	return h.claimSwap(ctx, s.SwapID)
}

// verifyServerLockupOutput runs chainsvc.VerifyTx against the server's
// counter-lockup and returns the vout/value of the output paying our
// claim address plus whether the tx still signals RBF (spec.md §4.8's
// "Server lockup verification").
func (h *ChainSwapHandler) verifyServerLockupOutput(ctx context.Context, s *swap.ChainSwap, txID string, requireConfirmed bool) (vout uint32, value int64, rbf bool, err error) {
	if s.ClaimAddress == nil {
		return 0, 0, false, errkind.New(errkind.Protocol, "chain swap has no claim address", nil)
	}
	serverChain := h.serverLockupChain(s)
	raw, err := serverChain.GetTransactionHex(ctx, txID)
	if err != nil {
		return 0, 0, false, err
	}
	if raw == nil {
		return 0, 0, false, chainsvc.ErrTxNotFound
	}
	tx, err := chainsvc.VerifyTx(ctx, serverChain, *s.ClaimAddress, txID, raw.Hex, requireConfirmed)
	if err != nil {
		return 0, 0, false, err
	}
	for i, out := range tx.Outputs {
		if out.Address == *s.ClaimAddress {
			return uint32(i), out.ValueSat, tx.SignalsRBF, nil
		}
	}
	return 0, 0, false, errkind.New(errkind.Protocol, "server lockup tx has no output paying our claim address", nil)
}

func (h *ChainSwapHandler) claimSwap(ctx context.Context, swapID string) error {
	s, err := h.DB.FetchChainSwapByID(swapID)
	if err != nil {
		return err
	}
	if s.ServerLockupTxID == nil || s.ClaimTxID != nil {
		return nil
	}
	if s.ClaimAddress == nil {
		return errkind.New(errkind.Protocol, "chain swap has no claim address", nil)
	}
	// Invariant 7 / Testable Property 5: a swap learned via cross-wallet
	// sync never originates a claim broadcast of its own.
	if !s.Metadata.IsLocal {
		return nil
	}

	vout, value, rbf, err := h.verifyServerLockupOutput(ctx, s, *s.ServerLockupTxID, false)
	if err != nil {
		return err
	}

	// Server lockup verification (spec.md §4.8): the paid amount must
	// cover claim_details.amount, or accepted_receiver_amount_sat +
	// claim_fees_sat once an amountless swap's fees were accepted.
	minAcceptable := s.ReceiverAmountSat
	if s.AcceptedReceiverAmountSat != nil {
		minAcceptable = *s.AcceptedReceiverAmountSat + s.ClaimFeesSat
	}
	if uint64(value) < minAcceptable {
		log.Debugf("chain swap %s: server lockup underpaid, deferring claim", s.SwapID)
		return nil
	}
	if rbf {
		log.Debugf("chain swap %s: server lockup still signals RBF, deferring claim", s.SwapID)
		return nil
	}

	txHex, err := claim(ctx, h.Claim, s.SwapID, *s.ServerLockupTxID, vout, value, true, nil)
	if err != nil {
		if isAlreadyClaimed(err) {
			return nil
		}
		return err
	}
	if txHex == "" {
		return nil
	}

	txid, err := broadcast(ctx, h.serverLockupChain(s), h.Client, h.serverLockupCurrency(s), txHex)
	if err != nil {
		return err
	}
	if err := h.DB.SetChainClaimTxID(s.SwapID, s.ClaimAddress, txid); err != nil {
		if isAlreadyClaimed(err) {
			return nil
		}
		return err
	}
	if _, err := h.DB.TryHandleChainSwapUpdate(s.SwapID, swap.Complete, nil, nil, &txid, nil); err != nil {
		return err
	}
	h.publish(s.SwapID, eventPaymentSucceeded)
	return nil
}

// onFailureState handles the unrecoverable-server-states case (spec.md
// §4.8): if we've already locked up funds they become Refundable,
// otherwise the swap simply times out.
func (h *ChainSwapHandler) onFailureState(ctx context.Context, s *swap.ChainSwap) error {
	if s.UserLockupTxID == nil {
		_, err := h.DB.TryHandleChainSwapUpdate(s.SwapID, swap.TimedOut, nil, nil, nil, nil)
		if err != nil {
			return err
		}
		h.publish(s.SwapID, eventPaymentFailed)
		return nil
	}
	if _, err := h.DB.TryHandleChainSwapUpdate(s.SwapID, swap.Refundable, nil, nil, nil, nil); err != nil {
		return err
	}
	h.publish(s.SwapID, eventPaymentRefundable)
	return h.tryRefund(ctx, s.SwapID)
}

// OnBlock implements the outgoing expiry refund scheduler (spec.md
// §4.8): for each outgoing chain swap whose user lockup hasn't been
// refunded, once the chain tip passes the swap's timeout height, (1) a
// swap not yet expired is left alone, (2) one just past expiry gets its
// first refund attempt, (3) one already Refundable/RefundPending is
// retried, matching the Send handler's own retry loop.
func (h *ChainSwapHandler) OnBlock(ctx context.Context, height int32) {
	pending, err := h.DB.ListPendingOutgoingChainSwapsByLockupTxID()
	if err != nil {
		return
	}
	for _, s := range pending {
		if uint32(height) < s.TimeoutBlockHeight {
			continue
		}
		if s.State == swap.Pending {
			if _, err := h.DB.TryHandleChainSwapUpdate(s.SwapID, swap.Refundable, nil, nil, nil, nil); err != nil {
				continue
			}
			h.publish(s.SwapID, eventPaymentRefundable)
		}
		_ = h.tryRefund(ctx, s.SwapID)
	}
}

// TriggerRefund attempts a refund for a refundable chain swap on
// demand, the path the CLI's idempotent "refund" verb calls into: safe
// to call repeatedly, a no-op once a refund tx id is already on file.
func (h *ChainSwapHandler) TriggerRefund(ctx context.Context, swapID string) error {
	return h.tryRefund(ctx, swapID)
}

func (h *ChainSwapHandler) tryRefund(ctx context.Context, swapID string) error {
	s, err := h.DB.FetchChainSwapByID(swapID)
	if err != nil {
		return err
	}
	if s.UserLockupTxID == nil || s.RefundTxID != nil {
		return nil
	}
	// Invariant 7 / Testable Property 5: a swap learned via cross-wallet
	// sync never originates a refund broadcast of its own.
	if !s.Metadata.IsLocal {
		return nil
	}

	userChain := h.userLockupChain(s)
	tx, err := userChain.GetTransactionHex(ctx, *s.UserLockupTxID)
	if err != nil {
		return err
	}
	if tx == nil {
		return errkind.New(errkind.Transport, "user lockup tx not found", nil)
	}
	var vout uint32
	var value int64
	found := false
	for i, out := range tx.Outputs {
		if out.Address == s.LockupAddress {
			vout, value = uint32(i), out.ValueSat
			found = true
			break
		}
	}
	if !found {
		return errkind.New(errkind.Protocol, "user lockup tx has no output paying the lockup address", nil)
	}

	currency := "liquid"
	if s.Direction == swap.Incoming {
		currency = "bitcoin"
	}

	txHex, err := refund(ctx, h.Refund, s.SwapID, *s.UserLockupTxID, vout, value)
	if err != nil {
		return err
	}
	if txHex == "" {
		_, err := h.DB.TryHandleChainSwapUpdate(s.SwapID, swap.RefundPending, nil, nil, nil, nil)
		return err
	}

	txid, err := broadcast(ctx, userChain, h.Client, currency, txHex)
	if err != nil {
		return err
	}
	if err := h.DB.SetChainRefundTxID(s.SwapID, txid); err != nil {
		if isAlreadyClaimed(err) {
			return nil
		}
		return err
	}
	_, err = h.DB.TryHandleChainSwapUpdate(s.SwapID, swap.RefundPending, nil, nil, nil, &txid)
	return err
}

func (h *ChainSwapHandler) publish(swapID, kind string) {
	if h.Bus != nil {
		h.Bus.Publish(eventFor(swapID, kind))
	}
}
