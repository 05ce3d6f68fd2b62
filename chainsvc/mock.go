package chainsvc

import (
	"context"
	"sync"
)

// Mock is an in-process ChainService used by handler/reconciler tests,
// the same role htlcswitch/mock.go plays for switch tests: a
// deterministic stand-in for a networked backend.
type Mock struct {
	mu sync.Mutex

	History   map[string][]HistoryEntry // keyed by hex-encoded script
	UTXOs     map[string][]UTXO
	Balances  map[string]Balance
	Txs       map[string]Tx // keyed by txid
	Tip       int32
	Broadcasts []string

	BroadcastErr error
}

var _ ChainService = (*Mock)(nil)

// NewMock returns an empty mock chain service.
func NewMock() *Mock {
	return &Mock{
		History:  make(map[string][]HistoryEntry),
		UTXOs:    make(map[string][]UTXO),
		Balances: make(map[string]Balance),
		Txs:      make(map[string]Tx),
	}
}

func scriptKey(script []byte) string { return string(script) }

// GetScriptHistoryWithRetry implements ChainService.
func (m *Mock) GetScriptHistoryWithRetry(_ context.Context, script []byte, _ int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry(nil), m.History[scriptKey(script)]...), nil
}

// GetScriptUTXOs implements ChainService.
func (m *Mock) GetScriptUTXOs(_ context.Context, script []byte) ([]UTXO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UTXO(nil), m.UTXOs[scriptKey(script)]...), nil
}

// ScriptGetBalanceWithRetry implements ChainService.
func (m *Mock) ScriptGetBalanceWithRetry(_ context.Context, script []byte, _ int) (Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balances[scriptKey(script)], nil
}

// GetTransactions implements ChainService.
func (m *Mock) GetTransactions(_ context.Context, ids []string) ([]Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tx, 0, len(ids))
	for _, id := range ids {
		if tx, ok := m.Txs[id]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

// GetTransactionHex implements ChainService.
func (m *Mock) GetTransactionHex(_ context.Context, id string) (*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.Txs[id]; ok {
		return &tx, nil
	}
	return nil, nil
}

// Broadcast implements ChainService.
func (m *Mock) Broadcast(_ context.Context, txHex string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BroadcastErr != nil {
		return "", m.BroadcastErr
	}
	m.Broadcasts = append(m.Broadcasts, txHex)
	return txHex, nil
}

// TipHeight implements ChainService.
func (m *Mock) TipHeight(_ context.Context) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tip, nil
}

// AddHistory registers a history entry for script.
func (m *Mock) AddHistory(script []byte, entry HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.History[scriptKey(script)] = append(m.History[scriptKey(script)], entry)
}

// AddTx registers a parsed tx by id.
func (m *Mock) AddTx(tx Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Txs[tx.TxID] = tx
}

// SetTip sets the mock chain tip.
func (m *Mock) SetTip(height int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tip = height
}
