package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/eventbus"
	"github.com/lightningnetwork/lnliquid/statusstream"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
	"github.com/stretchr/testify/require"
)

func TestChainSwapHandlerIncomingClaimsOnServerLockup(t *testing.T) {
	useRegressionAddressParams(t)
	db := newTestHandlerDB(t)
	client, closeFn := newTestClient(t)
	defer closeFn()
	liquid := chainsvc.NewMock()
	bitcoin := chainsvc.NewMock()
	bus := eventbus.New(4)

	claimAddr := testAddress(t)
	claimAddrStr := claimAddr.EncodeAddress()
	script, err := chainsvc.ScriptForAddress(claimAddrStr)
	require.NoError(t, err)
	txid, rawHex := buildTestTx(t, claimAddr, 10000, false)
	liquid.AddTx(chainsvc.Tx{TxID: txid, Hex: rawHex})
	liquid.AddHistory(script, chainsvc.HistoryEntry{TxID: txid, Height: 10})

	require.NoError(t, db.InsertChainSwap(&swap.ChainSwap{
		Swap:              swap.Swap{SwapID: "s1", State: swap.Pending, Metadata: swap.Metadata{IsLocal: true}},
		Direction:         swap.Incoming,
		LockupAddress:     "bc1lockup",
		ClaimAddress:      &claimAddrStr,
		ReceiverAmountSat: 10000,
	}))

	h := &ChainSwapHandler{
		DB:      db,
		Bitcoin: bitcoin,
		Liquid:  liquid,
		Client:  client,
		Claim:   ClaimDeps{Builder: swapper.NewBuilder(client), Signer: &fakeSigner{}},
		Bus:     bus,
		Params:  Params{ZeroConfMaxAmountSat: 50000},
	}

	err = h.HandleStatusUpdate(context.Background(), statusstream.Update{
		SwapID: "s1", Status: chainStatusServerLockupConfirmed, Payload: []byte(`{"transaction_id":"` + txid + `"}`),
	})
	require.NoError(t, err)

	got, err := db.FetchChainSwapByID("s1")
	require.NoError(t, err)
	require.Equal(t, txid, *got.ServerLockupTxID)
}

func TestChainSwapHandlerAmountlessAutoAccepts(t *testing.T) {
	db := newTestHandlerDB(t)
	client, closeFn := newTestClient(t)
	defer closeFn()
	bitcoin := chainsvc.NewMock()
	liquid := chainsvc.NewMock()

	require.NoError(t, db.InsertChainSwap(&swap.ChainSwap{
		Swap:          swap.Swap{SwapID: "s1", State: swap.Created},
		Direction:     swap.Outgoing,
		LockupAddress: "lq1userlockup",
	}))

	liquid.AddTx(chainsvc.Tx{
		TxID:    "user-lockup-tx",
		Outputs: []chainsvc.TxOutput{{Address: "lq1userlockup", ValueSat: 1_000_000}},
	})

	h := &ChainSwapHandler{
		DB:      db,
		Bitcoin: bitcoin,
		Liquid:  liquid,
		Client:  client,
		Params: Params{
			OnchainFeeRateLeewaySatPerVbyte: 100,
			EstimatedBTCLockupTxVsize:       110,
			ZeroConfMaxAmountSat:            1_000_000,
		},
	}

	err := h.HandleStatusUpdate(context.Background(), statusstream.Update{
		SwapID: "s1", Status: chainStatusUserLockupConfirmed, Payload: []byte(`{"transaction_id":"user-lockup-tx"}`),
	})
	require.NoError(t, err)

	got, err := db.FetchChainSwapByID("s1")
	require.NoError(t, err)
	require.Equal(t, swap.Pending, got.State)
	require.True(t, got.AutoAcceptedFees)
	require.Equal(t, uint64(1_000_000), *got.ActualPayerAmountSat)
	require.Equal(t, uint64(990_000), *got.AcceptedReceiverAmountSat)
}

func TestChainSwapHandlerOutgoingExpiryRefund(t *testing.T) {
	db := newTestHandlerDB(t)
	client, closeFn := newTestClient(t)
	defer closeFn()
	bitcoin := chainsvc.NewMock()
	liquid := chainsvc.NewMock()

	userLockupTx := "user-lockup-tx"
	require.NoError(t, db.InsertChainSwap(&swap.ChainSwap{
		Swap:               swap.Swap{SwapID: "s1", State: swap.Pending, Metadata: swap.Metadata{IsLocal: true}},
		Direction:          swap.Outgoing,
		LockupAddress:      "lq1userlockup",
		PayerAmountSat:     500000,
		UserLockupTxID:     &userLockupTx,
		TimeoutBlockHeight: 100,
	}))

	liquid.AddTx(chainsvc.Tx{
		TxID:    userLockupTx,
		Outputs: []chainsvc.TxOutput{{Address: "lq1userlockup", ValueSat: 500000}},
	})

	h := &ChainSwapHandler{
		DB:      db,
		Bitcoin: bitcoin,
		Liquid:  liquid,
		Client:  client,
		Refund:  RefundDeps{Builder: swapper.NewBuilder(client), Signer: &fakeSigner{}},
	}

	h.OnBlock(context.Background(), 150)

	got, err := db.FetchChainSwapByID("s1")
	require.NoError(t, err)
	require.Equal(t, swap.RefundPending, got.State)
}

func TestChainSwapHandlerSkipsRefundForNonLocalSwap(t *testing.T) {
	db := newTestHandlerDB(t)
	client, closeFn := newTestClient(t)
	defer closeFn()
	bitcoin := chainsvc.NewMock()
	liquid := chainsvc.NewMock()

	userLockupTx := "user-lockup-tx"
	require.NoError(t, db.InsertChainSwap(&swap.ChainSwap{
		Swap:               swap.Swap{SwapID: "s1", State: swap.Pending},
		Direction:          swap.Outgoing,
		LockupAddress:      "lq1userlockup",
		PayerAmountSat:     500000,
		UserLockupTxID:     &userLockupTx,
		TimeoutBlockHeight: 100,
	}))

	liquid.AddTx(chainsvc.Tx{
		TxID:    userLockupTx,
		Outputs: []chainsvc.TxOutput{{Address: "lq1userlockup", ValueSat: 500000}},
	})

	h := &ChainSwapHandler{
		DB:      db,
		Bitcoin: bitcoin,
		Liquid:  liquid,
		Client:  client,
		Refund:  RefundDeps{Builder: swapper.NewBuilder(client), Signer: &fakeSigner{}},
	}

	h.OnBlock(context.Background(), 150)

	got, err := db.FetchChainSwapByID("s1")
	require.NoError(t, err)
	require.Equal(t, swap.Refundable, got.State)
	require.Nil(t, got.RefundTxID)
}

// TestChainSwapHandlerDecideAmountlessAcceptanceScenarioD reproduces
// spec.md §4.8's Scenario D literal numbers: a 1,000,000 sat user
// lockup, a 500 sat server miner-fee estimate, a 0.1% service fee, a
// 200 sat claim fee, and a leeway of 1 sat/vbyte over an estimated
// 154-vbyte lockup tx puts the auto-accept boundary at exactly
// 998,346 sat.
func TestChainSwapHandlerDecideAmountlessAcceptanceScenarioD(t *testing.T) {
	const userLockupAmount = uint64(1_000_000)

	run := func(t *testing.T, quoteAmount uint64) *swap.ChainSwap {
		t.Helper()
		db := newTestHandlerDB(t)

		mux := http.NewServeMux()
		mux.HandleFunc("/v2/swap/chain", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"From":"BTC","To":"L-BTC","FeePercent":0.1,"MinerFeeSat":500}]`))
		})
		mux.HandleFunc("/v2/swap/chain/s1/quote", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Write([]byte(`{"SwapID":"s1","ActualPayerAmountSat":` + strconv.FormatUint(quoteAmount, 10) + `,"ServerFeeSat":0}`))
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		client := swapper.NewClient(srv.URL, nil)

		require.NoError(t, db.InsertChainSwap(&swap.ChainSwap{
			Swap:          swap.Swap{SwapID: "s1", State: swap.Created},
			Direction:     swap.Incoming,
			LockupAddress: "bc1userlockup",
			ClaimFeesSat:  200,
		}))

		h := &ChainSwapHandler{
			DB:     db,
			Client: client,
			Params: Params{
				OnchainFeeRateLeewaySatPerVbyte: 1,
				EstimatedBTCLockupTxVsize:       154,
			},
		}

		s, err := db.FetchChainSwapByID("s1")
		require.NoError(t, err)
		_, err = h.decideAmountlessAcceptance(context.Background(), s, userLockupAmount)
		require.NoError(t, err)

		got, err := db.FetchChainSwapByID("s1")
		require.NoError(t, err)
		return got
	}

	t.Run("auto-accepts at the exact boundary", func(t *testing.T) {
		got := run(t, 998_346)
		require.True(t, got.AutoAcceptedFees)
		require.NotNil(t, got.AcceptedReceiverAmountSat)
		require.Equal(t, uint64(998_146), *got.AcceptedReceiverAmountSat)
	})

	t.Run("waits for explicit acceptance just below the boundary", func(t *testing.T) {
		got := run(t, 998_345)
		require.False(t, got.AutoAcceptedFees)
		require.Nil(t, got.AcceptedReceiverAmountSat)
	})
}
