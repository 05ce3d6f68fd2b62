package handlers

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/eventbus"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/statusstream"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
	"github.com/stretchr/testify/require"
)

func newTestHandlerDB(t *testing.T) *persist.DB {
	t.Helper()
	db, err := persist.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSendHandlerClaimPendingCompletesSwap(t *testing.T) {
	db := newTestHandlerDB(t)
	client, closeFn := newTestClient(t)
	defer closeFn()
	liquid := chainsvc.NewMock()
	bus := eventbus.New(4)
	sub := bus.Subscribe()

	lockupTxID := "lockup-tx"
	liquid.AddTx(chainsvc.Tx{
		TxID:    lockupTxID,
		Outputs: []chainsvc.TxOutput{{Address: "lq1addr", ValueSat: 100000}},
	})

	require.NoError(t, db.InsertSendSwap(&swap.SendSwap{
		Swap:               swap.Swap{SwapID: "s1", State: swap.Pending, Metadata: swap.Metadata{IsLocal: true}},
		Invoice:            testClaimableInvoice(t),
		PayerAmountSat:     100000,
		CreateResponseJSON: `{"Address":"lq1addr"}`,
		LockupTxID:         &lockupTxID,
	}))

	h := &SendHandler{
		DB:     db,
		Liquid: liquid,
		Client: client,
		Claim:  ClaimDeps{Builder: swapper.NewBuilder(client), Signer: &fakeSigner{}},
		Bus:    bus,
	}

	err := h.HandleStatusUpdate(context.Background(), statusstream.Update{SwapID: "s1", Status: sendStatusClaimPending})
	require.NoError(t, err)

	got, err := db.FetchSendSwapByID("s1")
	require.NoError(t, err)
	require.Equal(t, swap.Complete, got.State)

	ev, ok := sub.TryNext()
	require.True(t, ok)
	require.Equal(t, eventPaymentSucceeded, ev.Kind)
}

func TestSendHandlerFailureAfterLockupBecomesRefundable(t *testing.T) {
	db := newTestHandlerDB(t)
	client, closeFn := newTestClient(t)
	defer closeFn()
	liquid := chainsvc.NewMock()
	bus := eventbus.New(4)

	lockupTxID := "lockup-tx"
	require.NoError(t, db.InsertSendSwap(&swap.SendSwap{
		Swap:               swap.Swap{SwapID: "s1", State: swap.Pending, Metadata: swap.Metadata{IsLocal: true}},
		CreateResponseJSON: `{"Address":"lq1addr"}`,
		LockupTxID:         &lockupTxID,
	}))

	h := &SendHandler{
		DB:     db,
		Liquid: liquid,
		Client: client,
		Refund: RefundDeps{Builder: swapper.NewBuilder(client), Signer: &fakeSigner{}},
		Bus:    bus,
	}
	liquid.AddTx(chainsvc.Tx{
		TxID:    lockupTxID,
		Outputs: []chainsvc.TxOutput{{Address: "lq1addr", ValueSat: 100000}},
	})

	err := h.HandleStatusUpdate(context.Background(), statusstream.Update{SwapID: "s1", Status: sendStatusSwapExpired})
	require.NoError(t, err)

	got, err := db.FetchSendSwapByID("s1")
	require.NoError(t, err)
	require.Equal(t, swap.RefundPending, got.State)
}

func TestSendHandlerSkipsRefundForNonLocalSwap(t *testing.T) {
	db := newTestHandlerDB(t)
	client, closeFn := newTestClient(t)
	defer closeFn()
	liquid := chainsvc.NewMock()
	bus := eventbus.New(4)

	lockupTxID := "lockup-tx"
	require.NoError(t, db.InsertSendSwap(&swap.SendSwap{
		Swap:               swap.Swap{SwapID: "s1", State: swap.Pending},
		CreateResponseJSON: `{"Address":"lq1addr"}`,
		LockupTxID:         &lockupTxID,
	}))

	h := &SendHandler{
		DB:     db,
		Liquid: liquid,
		Client: client,
		Refund: RefundDeps{Builder: swapper.NewBuilder(client), Signer: &fakeSigner{}},
		Bus:    bus,
	}
	liquid.AddTx(chainsvc.Tx{
		TxID:    lockupTxID,
		Outputs: []chainsvc.TxOutput{{Address: "lq1addr", ValueSat: 100000}},
	})

	err := h.HandleStatusUpdate(context.Background(), statusstream.Update{SwapID: "s1", Status: sendStatusSwapExpired})
	require.NoError(t, err)

	got, err := db.FetchSendSwapByID("s1")
	require.NoError(t, err)
	require.Equal(t, swap.Refundable, got.State)
	require.Nil(t, got.RefundTxID)
}

func TestSendHandlerFailureWithoutLockupIsTerminal(t *testing.T) {
	db := newTestHandlerDB(t)
	client, closeFn := newTestClient(t)
	defer closeFn()
	bus := eventbus.New(4)
	sub := bus.Subscribe()

	require.NoError(t, db.InsertSendSwap(&swap.SendSwap{
		Swap: swap.Swap{SwapID: "s1", State: swap.Created},
	}))

	h := &SendHandler{DB: db, Client: client, Bus: bus}
	err := h.HandleStatusUpdate(context.Background(), statusstream.Update{SwapID: "s1", Status: sendStatusInvoiceFailedToPay})
	require.NoError(t, err)

	got, err := db.FetchSendSwapByID("s1")
	require.NoError(t, err)
	require.Equal(t, swap.Failed, got.State)

	ev, ok := sub.TryNext()
	require.True(t, ok)
	require.Equal(t, eventPaymentFailed, ev.Kind)
}
