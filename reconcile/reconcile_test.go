package reconcile

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/swap"
)

func mustState(t *testing.T, got *swap.PaymentState, want swap.PaymentState) {
	t.Helper()
	if got == nil {
		t.Fatalf("expected state %s, got no opinion (nil)", want)
	}
	if *got != want {
		t.Fatalf("expected state %s, got %s\n%s", want, *got, spew.Sdump(got))
	}
}

func mustNoOpinion(t *testing.T, got *swap.PaymentState) {
	t.Helper()
	require.Nil(t, got, "expected reconcile to have no opinion, got %s", spew.Sdump(got))
}

func TestRecoverSendNoLockupNotExpired(t *testing.T) {
	rec := RecoverSend(nil, TxMap{}, false, false)
	mustNoOpinion(t, rec.State)
	require.Nil(t, rec.LockupTxID)
}

func TestRecoverSendNoLockupExpired(t *testing.T) {
	rec := RecoverSend(nil, TxMap{}, false, true)
	mustState(t, rec.State, swap.TimedOut)
}

func TestRecoverSendLockupOnlyIsPending(t *testing.T) {
	history := []chainsvc.HistoryEntry{{TxID: "lockup", Height: 100}}
	rec := RecoverSend(history, TxMap{}, false, false)
	mustState(t, rec.State, swap.Pending)
	require.Equal(t, "lockup", *rec.LockupTxID)
	require.Nil(t, rec.RefundTxID)
}

func TestRecoverSendPreimageWithoutRefundIsComplete(t *testing.T) {
	history := []chainsvc.HistoryEntry{{TxID: "lockup", Height: 100}}
	rec := RecoverSend(history, TxMap{}, true, false)
	mustState(t, rec.State, swap.Complete)
}

func TestRecoverSendRefundConfirmedIsFailed(t *testing.T) {
	history := []chainsvc.HistoryEntry{
		{TxID: "lockup", Height: 100},
		{TxID: "refund", Height: 105},
	}
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"refund": {TxID: "refund", IsConfirmed: true},
	}}
	rec := RecoverSend(history, txMap, false, false)
	mustState(t, rec.State, swap.Failed)
	require.Equal(t, "refund", *rec.RefundTxID)
}

func TestRecoverSendRefundUnconfirmedIsRefundPending(t *testing.T) {
	history := []chainsvc.HistoryEntry{
		{TxID: "lockup", Height: 100},
		{TxID: "refund", Height: 0},
	}
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"refund": {TxID: "refund", IsConfirmed: false},
	}}
	rec := RecoverSend(history, txMap, false, false)
	mustState(t, rec.State, swap.RefundPending)
}

func TestRecoverSendRefundOutranksStalePreimage(t *testing.T) {
	history := []chainsvc.HistoryEntry{
		{TxID: "lockup", Height: 100},
		{TxID: "refund", Height: 105},
	}
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"refund": {TxID: "refund", IsConfirmed: true},
	}}
	rec := RecoverSend(history, txMap, true, false)
	mustState(t, rec.State, swap.Failed)
}

func TestRecoverReceiveLockupThenConfirmedClaimIsComplete(t *testing.T) {
	claimHistory := []chainsvc.HistoryEntry{
		{TxID: "lockup", Height: 100},
		{TxID: "claim", Height: 101},
	}
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"claim": {TxID: "claim", IsConfirmed: true},
	}}
	rec := RecoverReceive(1000, 50_000, "", claimHistory, nil, txMap, false)
	mustState(t, rec.State, swap.Complete)
	require.Equal(t, "lockup", *rec.LockupTxID)
	require.Equal(t, "claim", *rec.ClaimTxID)
}

func TestRecoverReceiveLockupNoClaimExpiredIsFailed(t *testing.T) {
	claimHistory := []chainsvc.HistoryEntry{{TxID: "lockup", Height: 100}}
	rec := RecoverReceive(1000, 50_000, "", claimHistory, nil, TxMap{}, true)
	mustState(t, rec.State, swap.Failed)
}

func TestRecoverReceiveMRHPaymentConfirmedIsComplete(t *testing.T) {
	mrhHistory := []chainsvc.HistoryEntry{{TxID: "mrh-pay", Height: 50}}
	ts := int64(2000)
	mrhHistory[0].Timestamp = &ts
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"mrh-pay": {
			TxID:        "mrh-pay",
			IsConfirmed: true,
			Outputs:     []chainsvc.TxOutput{{Address: "mrh-addr", ValueSat: 60_000}},
		},
	}}
	rec := RecoverReceive(1000, 50_000, "mrh-addr", nil, mrhHistory, txMap, false)
	mustState(t, rec.State, swap.Complete)
	require.Equal(t, "mrh-pay", *rec.MRHTxID)
	require.Equal(t, uint64(60_000), *rec.MRHAmountSat)
}

func TestRecoverReceiveMRHPaymentBeforeSwapCreatedIsIgnored(t *testing.T) {
	mrhHistory := []chainsvc.HistoryEntry{{TxID: "mrh-pay", Height: 50}}
	ts := int64(500) // before createdAt
	mrhHistory[0].Timestamp = &ts
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"mrh-pay": {
			TxID:        "mrh-pay",
			IsConfirmed: true,
			Outputs:     []chainsvc.TxOutput{{Address: "mrh-addr", ValueSat: 60_000}},
		},
	}}
	rec := RecoverReceive(1000, 50_000, "mrh-addr", nil, mrhHistory, txMap, false)
	require.Nil(t, rec.MRHTxID)
	mustNoOpinion(t, rec.State)
}

func TestRecoverReceiveMRHPaymentBelowAmountIsIgnored(t *testing.T) {
	mrhHistory := []chainsvc.HistoryEntry{{TxID: "mrh-pay", Height: 50}}
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"mrh-pay": {
			TxID:        "mrh-pay",
			IsConfirmed: true,
			Outputs:     []chainsvc.TxOutput{{Address: "mrh-addr", ValueSat: 10_000}},
		},
	}}
	rec := RecoverReceive(1000, 50_000, "mrh-addr", nil, mrhHistory, txMap, false)
	require.Nil(t, rec.MRHTxID)
}

func TestRecoverChainClaimedIsComplete(t *testing.T) {
	userHistory := []chainsvc.HistoryEntry{{TxID: "user-lockup", Height: 10}}
	serverHistory := []chainsvc.HistoryEntry{
		{TxID: "server-lockup", Height: 11},
		{TxID: "claim", Height: 12},
	}
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"claim": {TxID: "claim", IsConfirmed: true},
	}}
	rec := RecoverChain(userHistory, serverHistory, txMap, false, false)
	mustState(t, rec.State, swap.Complete)
}

func TestRecoverChainExpiredUnspentIsRefundable(t *testing.T) {
	userHistory := []chainsvc.HistoryEntry{{TxID: "user-lockup", Height: 10}}
	rec := RecoverChain(userHistory, nil, TxMap{}, true, true)
	mustState(t, rec.State, swap.Refundable)
}

func TestRecoverChainExpiredSpentElsewhereIsFailed(t *testing.T) {
	userHistory := []chainsvc.HistoryEntry{{TxID: "user-lockup", Height: 10}}
	rec := RecoverChain(userHistory, nil, TxMap{}, true, false)
	mustState(t, rec.State, swap.Failed)
}

func TestRecoverChainRefundConfirmedIsFailed(t *testing.T) {
	userHistory := []chainsvc.HistoryEntry{
		{TxID: "user-lockup", Height: 10},
		{TxID: "refund", Height: 20},
	}
	txMap := TxMap{Incoming: map[string]chainsvc.Tx{
		"refund": {TxID: "refund", IsConfirmed: true},
	}}
	rec := RecoverChain(userHistory, nil, txMap, true, false)
	mustState(t, rec.State, swap.Failed)
	require.Equal(t, "refund", *rec.RefundTxID)
}

func TestSortChronologicalPutsUnconfirmedLast(t *testing.T) {
	history := []chainsvc.HistoryEntry{
		{TxID: "unconfirmed", Height: 0},
		{TxID: "old", Height: 10},
		{TxID: "new", Height: 20},
	}
	sorted := sortChronological(history)
	require.Equal(t, []string{"old", "new", "unconfirmed"},
		[]string{sorted[0].TxID, sorted[1].TxID, sorted[2].TxID})
}
