package chainsvc

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnliquid/ticker"
)

// PollNotifier is the only production Notifier: Esplora and Electrum
// both expose request/response APIs, not a push subscription, so this
// synthesizes chainntfs-style notifications by polling ChainService on
// a ticker, the same tradeoff lnd's neutrino/bitcoind-polling backends
// make when a node doesn't support ZMQ or websocket push.
type PollNotifier struct {
	Chain  ChainService
	Ticker ticker.Ticker

	mu          sync.Mutex
	blockEvents []*BlockEpochEvent
	confWatches []*confWatch
	spendWatches []*spendWatch
	lastHeight  int32
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type confWatch struct {
	txid     string
	numConfs uint32
	event    *ConfirmationEvent
}

type spendWatch struct {
	txid  string
	vout  uint32
	event *SpendEvent
}

// NewPollNotifier returns a Notifier that polls chain on every tick.
func NewPollNotifier(chain ChainService, t ticker.Ticker) *PollNotifier {
	return &PollNotifier{Chain: chain, Ticker: t, lastHeight: -1}
}

// RegisterConfirmationsNtfn implements Notifier.
func (p *PollNotifier) RegisterConfirmationsNtfn(txid string, numConfs uint32) (*ConfirmationEvent, error) {
	ev := &ConfirmationEvent{Confirmed: make(chan int32, 1)}
	p.mu.Lock()
	p.confWatches = append(p.confWatches, &confWatch{txid: txid, numConfs: numConfs, event: ev})
	p.mu.Unlock()
	return ev, nil
}

// RegisterSpendNtfn implements Notifier by recording the watch only:
// the poll loop never checks spend watches, so the returned SpendEvent
// never fires. No handler registers a spend watch (every handler
// rescans its own pending list on a block tick instead, see
// eventbus.BlockListener's callers).
func (p *PollNotifier) RegisterSpendNtfn(txid string, vout uint32) (*SpendEvent, error) {
	ev := &SpendEvent{Spend: make(chan *SpendDetail, 1)}
	p.mu.Lock()
	p.spendWatches = append(p.spendWatches, &spendWatch{txid: txid, vout: vout, event: ev})
	p.mu.Unlock()
	return ev, nil
}

// RegisterBlockEpochNtfn implements Notifier.
func (p *PollNotifier) RegisterBlockEpochNtfn() (*BlockEpochEvent, error) {
	ev := &BlockEpochEvent{Epochs: make(chan *BlockEpoch, 1)}
	p.mu.Lock()
	p.blockEvents = append(p.blockEvents, ev)
	p.mu.Unlock()
	return ev, nil
}

// Start begins polling. Safe to call once; a second call is a no-op.
func (p *PollNotifier) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.Ticker.Resume()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.Ticker.Ticks():
				p.poll(ctx)
			}
		}
	}()
	return nil
}

// Stop halts polling and releases the ticker.
func (p *PollNotifier) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.Ticker.Stop()
	p.wg.Wait()
	return nil
}

func (p *PollNotifier) poll(ctx context.Context) {
	height, err := p.Chain.TipHeight(ctx)
	if err != nil {
		log.Debugf("poll notifier: tip height: %v", err)
		return
	}

	p.mu.Lock()
	changed := height != p.lastHeight
	p.lastHeight = height
	events := append([]*BlockEpochEvent(nil), p.blockEvents...)
	confs := append([]*confWatch(nil), p.confWatches...)
	p.mu.Unlock()

	if changed {
		epoch := &BlockEpoch{Height: height, At: time.Now()}
		for _, ev := range events {
			select {
			case ev.Epochs <- epoch:
			default:
			}
		}
	}

	if len(confs) == 0 {
		return
	}
	ids := make([]string, len(confs))
	for i, w := range confs {
		ids[i] = w.txid
	}
	txs, err := p.Chain.GetTransactions(ctx, ids)
	if err != nil {
		return
	}
	byID := make(map[string]Tx, len(txs))
	for _, tx := range txs {
		byID[tx.TxID] = tx
	}

	var remaining []*confWatch
	for _, w := range confs {
		tx, ok := byID[w.txid]
		if ok && tx.IsConfirmed && height-tx.Height+1 >= int32(w.numConfs) {
			select {
			case w.event.Confirmed <- tx.Height:
			default:
			}
			continue
		}
		remaining = append(remaining, w)
	}

	p.mu.Lock()
	p.confWatches = remaining
	p.mu.Unlock()
}
