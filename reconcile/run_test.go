package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/clock"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
)

func init() {
	chainsvc.SetActiveParams(&chaincfg.RegressionNetParams)
}

func testAddr(t *testing.T) string {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	hash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func openTestDB(t *testing.T) *persist.DB {
	t.Helper()
	db, err := persist.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReconcilerRunCompletesReceiveSwapViaClaim(t *testing.T) {
	db := openTestDB(t)
	liquid := chainsvc.NewMock()
	bitcoin := chainsvc.NewMock()

	lockupAddr := testAddr(t)
	created := swapper.CreateReverseResponse{
		ID:                 "recv-1",
		LockupAddress:      lockupAddr,
		TimeoutBlockHeight: 1000,
	}
	createdJSON, err := json.Marshal(created)
	require.NoError(t, err)

	require.NoError(t, db.InsertReceiveSwap(&swap.ReceiveSwap{
		Swap:               swap.Swap{SwapID: "recv-1", State: swap.Pending, CreatedAt: 1},
		ReceiverAmountSat:  50_000,
		CreateResponseJSON: string(createdJSON),
	}))

	claimerAddr := testAddr(t)
	require.NoError(t, db.ReserveAddress(claimerAddr))

	script, err := chainsvc.ScriptForAddress(lockupAddr)
	require.NoError(t, err)
	liquid.AddHistory(script, chainsvc.HistoryEntry{TxID: "lockup-tx", Height: 100})
	liquid.AddHistory(script, chainsvc.HistoryEntry{TxID: "claim-tx", Height: 101})
	liquid.AddTx(chainsvc.Tx{
		TxID:        "claim-tx",
		IsConfirmed: true,
		Outputs:     []chainsvc.TxOutput{{Address: claimerAddr, ValueSat: 50_000}},
	})
	liquid.SetTip(200)
	bitcoin.SetTip(200)

	r := &Reconciler{DB: db, Bitcoin: bitcoin, Liquid: liquid, Clock: clock.Default{}, Grace: 120 * time.Second}
	require.NoError(t, r.Run(context.Background()))

	got, err := db.FetchReceiveSwapByID("recv-1")
	require.NoError(t, err)
	require.Equal(t, swap.Complete, got.State)
	require.Equal(t, "lockup-tx", *got.LockupTxID)
	require.Equal(t, "claim-tx", *got.ClaimTxID)
}

func TestReconcilerRunSkipsWithinGracePeriodWhenClaimWouldClear(t *testing.T) {
	db := openTestDB(t)
	liquid := chainsvc.NewMock()
	bitcoin := chainsvc.NewMock()

	lockupAddr := testAddr(t)
	created := swapper.CreateReverseResponse{ID: "recv-2", LockupAddress: lockupAddr, TimeoutBlockHeight: 1000}
	createdJSON, err := json.Marshal(created)
	require.NoError(t, err)

	claimTxID := "claim-tx-prior"
	require.NoError(t, db.InsertReceiveSwap(&swap.ReceiveSwap{
		Swap:               swap.Swap{SwapID: "recv-2", State: swap.Pending, CreatedAt: 1},
		ReceiverAmountSat:  50_000,
		CreateResponseJSON: string(createdJSON),
	}))
	_, err = db.TryHandleReceiveSwapUpdate("recv-2", swap.Pending, strPtr("lockup-tx"), &claimTxID)
	require.NoError(t, err)

	// Chain data only shows the lockup: the indexer hasn't caught up to
	// the claim this process already persisted.
	script, err := chainsvc.ScriptForAddress(lockupAddr)
	require.NoError(t, err)
	liquid.AddHistory(script, chainsvc.HistoryEntry{TxID: "lockup-tx", Height: 100})
	liquid.SetTip(200)
	bitcoin.SetTip(200)

	r := &Reconciler{DB: db, Bitcoin: bitcoin, Liquid: liquid, Clock: clock.Default{}, Grace: 120 * time.Second}
	require.NoError(t, r.Run(context.Background()))

	got, err := db.FetchReceiveSwapByID("recv-2")
	require.NoError(t, err)
	require.Equal(t, claimTxID, *got.ClaimTxID, "grace period must protect the already-persisted claim tx id")
}

func strPtr(s string) *string { return &s }
