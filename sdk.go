package lnliquid

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/clock"
	"github.com/lightningnetwork/lnliquid/errkind"
	"github.com/lightningnetwork/lnliquid/eventbus"
	"github.com/lightningnetwork/lnliquid/handlers"
	"github.com/lightningnetwork/lnliquid/metrics"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/reconcile"
	"github.com/lightningnetwork/lnliquid/sprvr"
	"github.com/lightningnetwork/lnliquid/statusstream"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
	"github.com/lightningnetwork/lnliquid/ticker"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileInterval is how often the supervisor re-runs the reconciler
// in the background, independent of block/status-driven rescans.
const ReconcileInterval = 5 * time.Minute

// Sdk is the single entry point a host application holds: it wires
// every component (A-K) together and exposes the verb surface spec.md
// §6 describes. One Sdk owns one persist.DB and one pair of chain
// backends; running two against the same WorkingDir concurrently is
// undefined, the same constraint channeldb.Open enforces with its file
// lock.
type Sdk struct {
	cfg    *Config
	db     *persist.DB
	wallet handlers.Wallet

	bitcoin chainsvc.ChainService
	liquid  chainsvc.ChainService
	client  *swapper.Client

	bus        *eventbus.Bus
	send       *handlers.SendHandler
	receive    *handlers.ReceiveHandler
	chain      *handlers.ChainSwapHandler
	reconciler *reconcile.Reconciler
	supervisor *sprvr.Supervisor
	metrics    *metrics.Registry
}

// Deps carries the capability interfaces a host application supplies:
// key custody and signing are stated Non-goal collaborators (spec.md
// §1), so the Sdk takes them as injected interfaces instead of owning
// any key material itself.
type Deps struct {
	Wallet     handlers.Wallet
	Scripts    handlers.ScriptDeriver   // optional, enables unilateral fallback
	Signer     swapper.CooperativeSigner
	Unilateral swapper.UnilateralSigner // optional
	Registerer prometheus.Registerer    // optional, defaults to prometheus.DefaultRegisterer
}

// NewSdk opens the persistent store, constructs the chain/swapper
// clients from cfg, and wires every handler. It does not start any
// background goroutine; call Start for that.
func NewSdk(cfg *Config, deps Deps) (*Sdk, error) {
	if deps.Wallet == nil {
		return nil, errkind.New(errkind.Generic, "Deps.Wallet is required", nil)
	}

	db, err := persist.Open(cfg.WorkingDir)
	if err != nil {
		return nil, errkind.New(errkind.Persist, "open store", err)
	}

	liquid := chainsvc.NewEsploraClient(cfg.LiquidExplorer.URL, cfg.LiquidExplorer.UseWaterfalls)
	bitcoin := chainsvc.NewEsploraClient(cfg.BitcoinExplorer.URL, cfg.BitcoinExplorer.UseWaterfalls)

	client := swapper.NewClient(cfg.SwapServerURL, nil)
	builder := swapper.NewBuilder(client)

	bus := eventbus.New(EventBusCapacity)

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	reg := metrics.NewRegistry(registerer)

	params := handlers.Params{
		ZeroConfMaxAmountSat:            cfg.ZeroConfMaxAmountSat,
		OnchainFeeRateLeewaySatPerVbyte: cfg.OnchainFeeRateLeewaySatPerVbyte,
		EstimatedBTCLockupTxVsize:       EstimatedBTCLockupTxVsize,
	}

	claimDeps := handlers.ClaimDeps{
		Builder:    builder,
		Signer:     deps.Signer,
		Unilateral: deps.Unilateral,
		Scripts:    deps.Scripts,
	}
	refundDeps := handlers.RefundDeps{
		Builder:    builder,
		Signer:     deps.Signer,
		Unilateral: deps.Unilateral,
		Scripts:    deps.Scripts,
	}

	send := &handlers.SendHandler{
		DB: db, Liquid: liquid, Client: client,
		Claim: claimDeps, Refund: refundDeps, Bus: bus,
	}
	receive := &handlers.ReceiveHandler{
		DB: db, Liquid: liquid, Client: client,
		Claim: claimDeps, Bus: bus, Wallet: deps.Wallet, Params: params,
	}
	chainH := &handlers.ChainSwapHandler{
		DB: db, Bitcoin: bitcoin, Liquid: liquid, Client: client,
		Claim: claimDeps, Refund: refundDeps, Bus: bus,
		Wallet: deps.Wallet, Params: params,
	}

	reconciler := &reconcile.Reconciler{
		DB: db, Bitcoin: bitcoin, Liquid: liquid,
		Clock: clock.Default{}, Grace: GracePeriod,
		HasPreimage: func(swapID string) bool {
			s, err := db.FetchSendSwapByID(swapID)
			return err == nil && s.Preimage != nil
		},
	}

	sdk := &Sdk{
		cfg: cfg, db: db, wallet: deps.Wallet,
		bitcoin: bitcoin, liquid: liquid, client: client,
		bus: bus, send: send, receive: receive, chain: chainH,
		reconciler: reconciler, metrics: reg,
	}

	stream, err := statusstream.New(cfg.SwapServerURL, sdk.ongoingSwapIDs, ReconnectDelay,
		ticker.New(KeepAliveInterval))
	if err != nil {
		db.Close()
		return nil, errkind.New(errkind.Transport, "create status stream", err)
	}

	sdk.supervisor = &sprvr.Supervisor{
		DB: db, Bitcoin: bitcoin, Liquid: liquid,
		LiquidNotifier:  chainsvc.NewPollNotifier(liquid, ticker.New(KeepAliveInterval)),
		Stream:          stream,
		Bus:             bus,
		Send:            send,
		Receive:         receive,
		Chain:           chainH,
		Reconciler:      reconciler,
		ReconcileTicker: ticker.New(ReconcileInterval),
	}

	return sdk, nil
}

// Start brings every background subsystem up (status stream, block
// listener, periodic reconciliation).
func (s *Sdk) Start(ctx context.Context) error {
	return s.supervisor.Start(ctx)
}

// Stop tears every background subsystem down and closes the store.
func (s *Sdk) Stop() {
	s.supervisor.Stop()
	s.db.Close()
}

// ongoingSwapIDs is the statusstream.OngoingSwapIDsFunc: every swap not
// yet in a terminal state, re-subscribed on every reconnect.
func (s *Sdk) ongoingSwapIDs() []string {
	var ids []string
	if sends, err := s.db.ListOngoingSendSwaps(); err == nil {
		for _, x := range sends {
			ids = append(ids, x.SwapID)
		}
	}
	if receives, err := s.db.ListOngoingReceiveSwaps(); err == nil {
		for _, x := range receives {
			ids = append(ids, x.SwapID)
		}
	}
	if chains, err := s.db.ListOngoingChainSwaps(); err == nil {
		for _, x := range chains {
			ids = append(ids, x.SwapID)
		}
	}
	return ids
}

// GetAddress derives and reserves a fresh receiving address on chain
// ("liquid" or "bitcoin"), the thin wrapper the CLI's "get-address"
// verb calls.
func (s *Sdk) GetAddress(chain string) (string, error) {
	addr, err := s.wallet.NewAddress(chain)
	if err != nil {
		return "", err
	}
	if err := s.db.ReserveAddress(addr); err != nil {
		return "", err
	}
	return addr, nil
}

// GetBalance sums the confirmed/unconfirmed balance across every
// address this Sdk has ever handed out on chain ("liquid" or
// "bitcoin"). Wallet-level UTXO management is a stated Non-goal
// collaborator, so this is the only balance view the Sdk itself can
// offer: a reserved-address scan, not a full wallet accounting.
func (s *Sdk) GetBalance(ctx context.Context, chain string) (chainsvc.Balance, error) {
	svc, err := s.chainServiceFor(chain)
	if err != nil {
		return chainsvc.Balance{}, err
	}

	addrs, err := s.db.ListReservedAddresses()
	if err != nil {
		return chainsvc.Balance{}, err
	}

	var total chainsvc.Balance
	for _, addr := range addrs {
		script, err := chainsvc.ScriptForAddress(addr)
		if err != nil {
			continue
		}
		bal, err := svc.ScriptGetBalanceWithRetry(ctx, script, 3)
		if err != nil {
			continue
		}
		total.ConfirmedSat += bal.ConfirmedSat
		total.UnconfirmedSat += bal.UnconfirmedSat
	}
	return total, nil
}

// broadcastLockup tries the chain service first and falls back to the
// swap server's broadcast_tx endpoint, the same fallback handlers.broadcast
// uses internally for claim/refund transactions (spec.md §4.7 step 3).
func broadcastLockup(ctx context.Context, chain chainsvc.ChainService, client *swapper.Client, txHex string) (string, error) {
	txid, err := chain.Broadcast(ctx, txHex)
	if err == nil {
		return txid, nil
	}
	return client.BroadcastTx(ctx, "liquid", txHex)
}

func (s *Sdk) chainServiceFor(chain string) (chainsvc.ChainService, error) {
	switch chain {
	case "liquid":
		return s.liquid, nil
	case "bitcoin":
		return s.bitcoin, nil
	default:
		return nil, errkind.New(errkind.Generic, fmt.Sprintf("unknown chain %q", chain), nil)
	}
}

// ListPayments returns every known payment (spec.md §3's Payment
// projection over swaps and raw tx data).
func (s *Sdk) ListPayments() ([]swap.Payment, error) {
	return s.db.GetPayments()
}

// ListRefundables returns every chain swap currently eligible for a
// user-triggered refund.
func (s *Sdk) ListRefundables() ([]*swap.ChainSwap, error) {
	return s.db.ListRefundableChainSwaps()
}

// Refund triggers a refund attempt for swapID, idempotent: calling it
// again after a refund tx id is already on file is a no-op. swapID may
// name a Send swap or a Chain swap; Receive swaps have no refund path
// (the server custodies the lockup in that direction).
func (s *Sdk) Refund(ctx context.Context, swapID string) error {
	if _, err := s.db.FetchChainSwapByID(swapID); err == nil {
		return s.chain.TriggerRefund(ctx, swapID)
	}
	if _, err := s.db.FetchSendSwapByID(swapID); err == nil {
		return s.send.TriggerRefund(ctx, swapID)
	}
	return errkind.New(errkind.Generic, fmt.Sprintf("swap %q not found or not refundable", swapID), nil)
}

// Send creates a submarine swap paying invoice, builds and broadcasts
// the lockup transaction, and persists the swap (spec.md §4.6 step 0).
func (s *Sdk) Send(ctx context.Context, invoice string, refundPubKey string) (*swap.SendSwap, error) {
	created, err := s.client.CreateSubmarineSwap(ctx, swapper.CreateSubmarineRequest{
		Invoice: invoice, RefundPubKey: refundPubKey,
	})
	if err != nil {
		return nil, err
	}

	txHex, _, err := s.wallet.BuildAndSignLockupTx("liquid", created.ExpectedAmountSat, created.Address)
	if err != nil {
		return nil, err
	}
	txID, err := broadcastLockup(ctx, s.liquid, s.client, txHex)
	if err != nil {
		return nil, err
	}

	sw := &swap.SendSwap{
		Swap:               swap.Swap{SwapID: created.ID, State: swap.Pending, CreatedAt: time.Now().Unix(), Metadata: swap.Metadata{IsLocal: true}},
		Invoice:            invoice,
		PayerAmountSat:     created.ExpectedAmountSat,
		CreateResponseJSON: created.RawJSON,
		LockupTxID:         &txID,
	}
	if err := s.db.InsertSendSwap(sw); err != nil {
		return nil, err
	}
	s.supervisor.RegisterSwap(sw.SwapID, swap.KindSend)
	s.metrics.ObserveCreated(swap.KindSend)
	return sw, nil
}

// Receive creates a reverse submarine swap for amountSat, returning
// the swap with its invoice populated (spec.md §4.7 step 0).
func (s *Sdk) Receive(ctx context.Context, amountSat uint64, preimageHash, claimPubKey string) (*swap.ReceiveSwap, error) {
	created, err := s.client.CreateReceiveSwap(ctx, swapper.CreateReverseRequest{
		PayerAmountSat: amountSat, PreimageHash: preimageHash, ClaimPubKey: claimPubKey,
	})
	if err != nil {
		return nil, err
	}

	sw := &swap.ReceiveSwap{
		Swap:               swap.Swap{SwapID: created.ID, State: swap.Pending, CreatedAt: time.Now().Unix(), Metadata: swap.Metadata{IsLocal: true}},
		Invoice:            created.Invoice,
		ReceiverAmountSat:  created.ReceiverAmountSat,
		CreateResponseJSON: created.RawJSON,
	}
	if err := s.db.InsertReceiveSwap(sw); err != nil {
		return nil, err
	}
	s.supervisor.RegisterSwap(sw.SwapID, swap.KindReceive)
	s.metrics.ObserveCreated(swap.KindReceive)
	return sw, nil
}
