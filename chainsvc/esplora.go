package chainsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lightningnetwork/lnliquid/errkind"
)

// EsploraClient is the production ChainService backed by an
// Esplora-compatible HTTP API (spec.md §6: "Chain explorers — Esplora-
// like HTTP ... Exact URL is configuration"). UseWaterfalls is stored
// but no request reads it: every query uses the standard Esplora
// endpoints, not the bulk "waterfalls" history extension.
type EsploraClient struct {
	BaseURL       string
	UseWaterfalls bool
	HTTPClient    *http.Client
}

// NewEsploraClient constructs a client against baseURL.
func NewEsploraClient(baseURL string, useWaterfalls bool) *EsploraClient {
	return &EsploraClient{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		UseWaterfalls: useWaterfalls,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

var _ ChainService = (*EsploraClient)(nil)

func (c *EsploraClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return errkind.New(errkind.Transport, "build request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errkind.New(errkind.Transport, "esplora GET "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errkind.New(errkind.Transport, "read response body", err)
	}
	if resp.StatusCode >= 400 {
		return errkind.New(errkind.Transport, fmt.Sprintf("esplora %s returned %d: %s", path, resp.StatusCode, body), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errkind.New(errkind.Protocol, "decode esplora response", err)
	}
	return nil
}

type esploraHistoryEntry struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int32 `json:"block_height"`
		BlockTime   int64 `json:"block_time"`
	} `json:"status"`
}

// GetScriptHistoryWithRetry implements ChainService.
func (c *EsploraClient) GetScriptHistoryWithRetry(ctx context.Context, script []byte, retries int) ([]HistoryEntry, error) {
	addr, err := addressFromScript(script)
	if err != nil {
		return nil, err
	}

	var entries []esploraHistoryEntry
	err = WithRetry(ctx, retries, func() error {
		return c.get(ctx, "/address/"+addr+"/txs", &entries)
	})
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		height := int32(0)
		var ts *int64
		if e.Status.Confirmed {
			height = e.Status.BlockHeight
			blockTime := e.Status.BlockTime
			ts = &blockTime
		}
		out[i] = HistoryEntry{TxID: e.TxID, Height: height, Timestamp: ts}
	}
	return out, nil
}

type esploraUTXO struct {
	TxID  string `json:"txid"`
	Vout  uint32 `json:"vout"`
	Value uint64 `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int32 `json:"block_height"`
	} `json:"status"`
}

// GetScriptUTXOs implements ChainService.
func (c *EsploraClient) GetScriptUTXOs(ctx context.Context, script []byte) ([]UTXO, error) {
	addr, err := addressFromScript(script)
	if err != nil {
		return nil, err
	}

	var entries []esploraUTXO
	if err := c.get(ctx, "/address/"+addr+"/utxo", &entries); err != nil {
		return nil, err
	}

	out := make([]UTXO, len(entries))
	for i, e := range entries {
		height := int32(0)
		if e.Status.Confirmed {
			height = e.Status.BlockHeight
		}
		out[i] = UTXO{TxID: e.TxID, Vout: e.Vout, Value: e.Value, Height: height}
	}
	return out, nil
}

type esploraAddrStats struct {
	ChainStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
	} `json:"chain_stats"`
	MempoolStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
	} `json:"mempool_stats"`
}

// ScriptGetBalanceWithRetry implements ChainService.
func (c *EsploraClient) ScriptGetBalanceWithRetry(ctx context.Context, script []byte, retries int) (Balance, error) {
	addr, err := addressFromScript(script)
	if err != nil {
		return Balance{}, err
	}

	var stats esploraAddrStats
	err = WithRetry(ctx, retries, func() error {
		return c.get(ctx, "/address/"+addr, &stats)
	})
	if err != nil {
		return Balance{}, err
	}

	confirmed := stats.ChainStats.FundedTxoSum - stats.ChainStats.SpentTxoSum
	unconfirmed := stats.MempoolStats.FundedTxoSum - stats.MempoolStats.SpentTxoSum
	return Balance{ConfirmedSat: uint64(confirmed), UnconfirmedSat: uint64(unconfirmed)}, nil
}

// GetTransactions implements ChainService.
func (c *EsploraClient) GetTransactions(ctx context.Context, ids []string) ([]Tx, error) {
	out := make([]Tx, 0, len(ids))
	for _, id := range ids {
		tx, err := c.GetTransactionHex(ctx, id)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			out = append(out, *tx)
		}
	}
	return out, nil
}

// GetTransactionHex implements ChainService.
func (c *EsploraClient) GetTransactionHex(ctx context.Context, id string) (*Tx, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/tx/"+id+"/hex", nil)
	if err != nil {
		return nil, errkind.New(errkind.Transport, "build request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.Transport, "fetch tx hex", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.New(errkind.Transport, "read tx hex", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errkind.New(errkind.Transport, fmt.Sprintf("esplora tx hex returned %d", resp.StatusCode), nil)
	}

	tx, err := parseTxHex(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, errkind.New(errkind.Protocol, "parse fetched tx", err)
	}
	return tx, nil
}

// Broadcast implements ChainService.
func (c *EsploraClient) Broadcast(ctx context.Context, txHex string) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.BaseURL+"/tx", strings.NewReader(txHex),
	)
	if err != nil {
		return "", errkind.New(errkind.Transport, "build broadcast request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", errkind.New(errkind.Transport, "broadcast tx", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errkind.New(errkind.Transport, "read broadcast response", err)
	}
	if resp.StatusCode >= 400 {
		return "", errkind.New(errkind.Transport, fmt.Sprintf("broadcast rejected: %s", body), nil)
	}
	return strings.TrimSpace(string(body)), nil
}

// TipHeight implements ChainService.
func (c *EsploraClient) TipHeight(ctx context.Context) (int32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/blocks/tip/height", nil)
	if err != nil {
		return 0, errkind.New(errkind.Transport, "build request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, errkind.New(errkind.Transport, "fetch tip height", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errkind.New(errkind.Transport, "read tip height", err)
	}
	var height int32
	if _, err := fmt.Sscanf(strings.TrimSpace(string(body)), "%d", &height); err != nil {
		return 0, errkind.New(errkind.Protocol, "parse tip height", err)
	}
	return height, nil
}

func addressFromScript(script []byte) (string, error) {
	_, addrs, _, err := scriptAddrs(script)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", errkind.New(errkind.Generic, "script has no addresses", nil)
	}
	return addrs[0], nil
}
