// Package sprvr is the top-level wiring that starts and coordinates
// every other component (component K, spec.md §5): the status stream,
// the chain block listeners, the periodic reconciler, and routing each
// status update to the handler that owns its swap kind. Modeled on
// lnd's server.go: one struct holding every subsystem, a Start that
// brings them up in dependency order and a Stop that tears them down,
// except shutdown coordination uses errgroup instead of a bare
// sync.WaitGroup since every subsystem here is a single long-running
// loop rather than a variable-count peer/link set.
package sprvr

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/eventbus"
	"github.com/lightningnetwork/lnliquid/handlers"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/reconcile"
	"github.com/lightningnetwork/lnliquid/statusstream"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/ticker"
)

// swapHandler is the common surface every per-kind handler exposes,
// the interface the router dispatches status updates through without
// caring which concrete kind it's holding.
type swapHandler interface {
	HandleStatusUpdate(ctx context.Context, update statusstream.Update) error
}

// Supervisor owns every running subsystem for one SDK instance.
// BitcoinNotifier may be nil, and Start does not use it even when it is
// set: no handler consumes a live Bitcoin block push (an Incoming chain
// swap's expiry is caught by the periodic Reconciler pass instead,
// which already checks both chain tips).
type Supervisor struct {
	DB              *persist.DB
	Bitcoin         chainsvc.ChainService
	Liquid          chainsvc.ChainService
	LiquidNotifier  chainsvc.Notifier
	BitcoinNotifier chainsvc.Notifier
	Stream          *statusstream.Stream
	Bus             *eventbus.Bus
	Send            *handlers.SendHandler
	Receive         *handlers.ReceiveHandler
	Chain           *handlers.ChainSwapHandler
	Reconciler      *reconcile.Reconciler
	ReconcileTicker ticker.Ticker

	HealthChecks []*Observation

	mu       sync.Mutex
	swapKind map[string]swap.Kind
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// RegisterSwap records which handler owns swapID, called once right
// after a swap is inserted so a status update for a brand-new swap
// routes correctly without waiting for the next restart's full reload.
func (s *Supervisor) RegisterSwap(swapID string, kind swap.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.swapKind == nil {
		s.swapKind = make(map[string]swap.Kind)
	}
	s.swapKind[swapID] = kind
}

func (s *Supervisor) kindOf(swapID string) (swap.Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind, ok := s.swapKind[swapID]
	return kind, ok
}

// loadSwapKinds rebuilds the swap id -> kind index from persisted
// state, run once at startup so a restart doesn't need RegisterSwap
// calls replayed.
func (s *Supervisor) loadSwapKinds() error {
	sends, err := s.DB.ListSendSwaps()
	if err != nil {
		return err
	}
	receives, err := s.DB.ListReceiveSwaps()
	if err != nil {
		return err
	}
	chains, err := s.DB.ListChainSwaps()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapKind = make(map[string]swap.Kind, len(sends)+len(receives)+len(chains))
	for _, x := range sends {
		s.swapKind[x.SwapID] = swap.KindSend
	}
	for _, x := range receives {
		s.swapKind[x.SwapID] = swap.KindReceive
	}
	for _, x := range chains {
		s.swapKind[x.SwapID] = swap.KindChain
	}
	return nil
}

// ongoingSwapIDs is the statusstream.OngoingSwapIDsFunc used to
// resubscribe after every reconnect.
func (s *Supervisor) ongoingSwapIDs() []string {
	var ids []string
	if sends, err := s.DB.ListOngoingSendSwaps(); err == nil {
		for _, x := range sends {
			ids = append(ids, x.SwapID)
		}
	}
	if receives, err := s.DB.ListOngoingReceiveSwaps(); err == nil {
		for _, x := range receives {
			ids = append(ids, x.SwapID)
		}
	}
	if chains, err := s.DB.ListOngoingChainSwaps(); err == nil {
		for _, x := range chains {
			ids = append(ids, x.SwapID)
		}
	}
	return ids
}

// Start brings every subsystem up: it runs one reconciliation pass
// before serving any live update so a restart never races a stale
// handler decision against chain history it hasn't caught up on yet,
// then launches the status stream, the Liquid block listener, the
// periodic reconciliation loop, and any configured health checks.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.loadSwapKinds(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.Reconciler.Run(runCtx); err != nil {
		log.Warnf("startup reconciliation: %v", err)
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		s.Stream.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return s.routeStatusUpdates(gctx)
	})

	if s.LiquidNotifier != nil {
		listener := eventbus.NewBlockListener(s.LiquidNotifier)
		listener.Register(s.Send)
		listener.Register(s.Receive)
		listener.Register(s.Chain)
		g.Go(func() error {
			return listener.Run(gctx)
		})
	}

	if s.ReconcileTicker != nil {
		g.Go(func() error {
			return s.runReconcileLoop(gctx)
		})
	}

	for _, obs := range s.HealthChecks {
		obs := obs
		g.Go(func() error {
			obs.run(gctx)
			return nil
		})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := g.Wait(); err != nil {
			log.Errorf("supervisor subsystem exited: %v", err)
		}
	}()

	return nil
}

// Stop cancels every running subsystem and waits for them to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.Stream.Stop()
	if s.ReconcileTicker != nil {
		s.ReconcileTicker.Stop()
	}
	s.wg.Wait()
}

// routeStatusUpdates drains the status stream and dispatches each
// update to the handler that owns its swap kind (spec.md §5's
// per-swap-id serialization is the handlers' own responsibility; the
// router just picks which handler to call).
func (s *Supervisor) routeStatusUpdates(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-s.Stream.Updates():
			if !ok {
				return nil
			}
			s.dispatch(ctx, update)
		}
	}
}

func (s *Supervisor) dispatch(ctx context.Context, update statusstream.Update) {
	kind, ok := s.kindOf(update.SwapID)
	if !ok {
		log.Warnf("status update for unknown swap %s, dropping", update.SwapID)
		return
	}

	var h swapHandler
	switch kind {
	case swap.KindSend:
		h = s.Send
	case swap.KindReceive:
		h = s.Receive
	case swap.KindChain:
		h = s.Chain
	default:
		return
	}

	if err := h.HandleStatusUpdate(ctx, update); err != nil {
		log.Warnf("handle status update for swap %s: %v", update.SwapID, err)
	}
}

// runReconcileLoop re-runs the reconciler on every tick, catching any
// swap whose status update was missed entirely (as opposed to the
// block-driven rescans, which only cover swaps with a lockup already
// observed).
func (s *Supervisor) runReconcileLoop(ctx context.Context) error {
	s.ReconcileTicker.Resume()
	defer s.ReconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ReconcileTicker.Ticks():
			if err := s.Reconciler.Run(ctx); err != nil {
				log.Warnf("periodic reconciliation: %v", err)
			}
		}
	}
}

// defaultReconcileInterval equals the root package's ReconcileInterval.
// Start does not use it: a Supervisor whose ReconcileTicker is nil runs
// no periodic reconciliation.
const defaultReconcileInterval = 5 * time.Minute
