package eventbus

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnliquid/chainsvc"
)

// BlockHandler is implemented by each swap-kind handler (F, G, H) that
// needs to react to new chain tips: timeout detection, refundability
// checks, and zero-conf claim eligibility all key off block height.
type BlockHandler interface {
	OnBlock(ctx context.Context, height int32)
}

// BlockListener registers a single chainsvc.Notifier block-epoch
// subscription and fans each new tip out to every registered handler,
// so handlers F/G/H don't each hold their own notifier registration.
// Modeled on chainntfs's single-registration-many-consumers pattern.
type BlockListener struct {
	notifier chainsvc.Notifier

	mu       sync.Mutex
	handlers []BlockHandler
}

// NewBlockListener wraps notifier.
func NewBlockListener(notifier chainsvc.Notifier) *BlockListener {
	return &BlockListener{notifier: notifier}
}

// Register adds h to the fan-out set.
func (b *BlockListener) Register(h BlockHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Run registers the block-epoch notification and dispatches every new
// tip to all registered handlers until ctx is canceled.
func (b *BlockListener) Run(ctx context.Context) error {
	epochEvent, err := b.notifier.RegisterBlockEpochNtfn()
	if err != nil {
		return err
	}

	if err := b.notifier.Start(); err != nil {
		return err
	}
	defer b.notifier.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case epoch, ok := <-epochEvent.Epochs:
			if !ok {
				return nil
			}
			b.dispatch(ctx, epoch.Height)
		}
	}
}

func (b *BlockListener) dispatch(ctx context.Context, height int32) {
	b.mu.Lock()
	handlers := append([]BlockHandler(nil), b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		h.OnBlock(ctx, height)
	}
}
