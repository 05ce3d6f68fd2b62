// Package chainsvc provides thin read interfaces over the Bitcoin and
// Liquid chains (spec.md §4.3 / component C): script history, UTXO
// sets, tx fetch, broadcast, tip height, and the verify_tx primitive.
// The ChainService/Notifier split is modeled directly on
// chainntfs.ChainNotifier: a capability interface with multiple
// backends (production Esplora client, in-process mock) that the
// handlers depend on without caring which is wired in.
package chainsvc

import (
	"context"
	"time"
)

// HistoryEntry is one entry in a script's transaction history.
type HistoryEntry struct {
	TxID      string
	Height    int32  // 0 means unconfirmed
	Timestamp *int64 // block time (epoch seconds), nil if unconfirmed/unknown
}

// UTXO is an unspent output controlled by a watched script.
type UTXO struct {
	TxID   string
	Vout   uint32
	Value  uint64
	Height int32
}

// Balance is a script's confirmed/unconfirmed balance split, as
// returned by script_get_balance_with_retry (Bitcoin only, for
// incoming chain swaps per spec.md §4.3).
type Balance struct {
	ConfirmedSat   uint64
	UnconfirmedSat uint64
}

// TxOutput is one output of a parsed transaction.
type TxOutput struct {
	ScriptPubKey string // hex
	Address      string
	ValueSat     int64 // -1 if blinded/confidential and unknown without the blinding key
}

// Tx is a parsed transaction as chain services hand it to callers.
type Tx struct {
	TxID        string
	Hex         string
	Outputs     []TxOutput
	IsConfirmed bool
	Height      int32
	SignalsRBF  bool
}

// ChainService is the read/broadcast surface spec.md §4.3 names. Two
// instances exist in a running SDK: one for Bitcoin, one for Liquid.
type ChainService interface {
	// GetScriptHistoryWithRetry returns every known history entry for
	// script, retrying up to retries times on transport failure.
	GetScriptHistoryWithRetry(ctx context.Context, script []byte, retries int) ([]HistoryEntry, error)

	// GetScriptUTXOs returns the unspent outputs currently paying
	// script.
	GetScriptUTXOs(ctx context.Context, script []byte) ([]UTXO, error)

	// ScriptGetBalanceWithRetry returns a script's confirmed and
	// unconfirmed balance (Bitcoin only).
	ScriptGetBalanceWithRetry(ctx context.Context, script []byte, retries int) (Balance, error)

	// GetTransactions fetches and parses every tx in ids.
	GetTransactions(ctx context.Context, ids []string) ([]Tx, error)

	// GetTransactionHex returns a single tx, or nil if unknown.
	GetTransactionHex(ctx context.Context, id string) (*Tx, error)

	// Broadcast submits a raw tx and returns its id.
	Broadcast(ctx context.Context, txHex string) (string, error)

	// TipHeight returns the current chain tip height.
	TipHeight(ctx context.Context) (int32, error)
}

// Notifier is the event-driven complement to ChainService, modeled on
// chainntfs.ChainNotifier: callers register intents to be notified of
// confirmations, spends, or new blocks instead of polling. The
// supervisor (component K) wires this to the Event bus's BlockListener
// fan-out.
type Notifier interface {
	// RegisterConfirmationsNtfn notifies once txid reaches numConfs
	// confirmations.
	RegisterConfirmationsNtfn(txid string, numConfs uint32) (*ConfirmationEvent, error)

	// RegisterSpendNtfn notifies once the given outpoint is spent in a
	// confirmed transaction.
	RegisterSpendNtfn(txid string, vout uint32) (*SpendEvent, error)

	// RegisterBlockEpochNtfn notifies on every new chain tip.
	RegisterBlockEpochNtfn() (*BlockEpochEvent, error)

	// Start begins delivering notifications.
	Start() error

	// Stop cancels every pending registration and stops delivering
	// notifications.
	Stop() error
}

// ConfirmationEvent is sent upon once txid reaches the target
// confirmation depth.
type ConfirmationEvent struct {
	Confirmed chan int32 // buffered, height at confirmation
}

// SpendDetail describes the transaction that spent a watched outpoint.
type SpendDetail struct {
	SpendingTxID string
	SpendHeight  int32
}

// SpendEvent is sent upon once the watched outpoint is spent.
type SpendEvent struct {
	Spend chan *SpendDetail // buffered
}

// BlockEpoch describes a newly connected chain tip.
type BlockEpoch struct {
	Height int32
	Hash   string
	At     time.Time
}

// BlockEpochEvent streams one BlockEpoch per new tip.
type BlockEpochEvent struct {
	Epochs chan *BlockEpoch // buffered
}
