package swapper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lightningnetwork/lnliquid/errkind"
)

// Cache is the narrow caching capability the client needs for
// get_*_pairs() responses (spec.md §3's cached_items table). Accepting
// an interface rather than importing persist directly keeps swapper
// decoupled from the storage backend, the same capability-interface
// style chainntfs.ChainNotifier's callers use.
type Cache interface {
	CacheGet(key string) ([]byte, bool)
	CacheSet(key string, value []byte, ttl time.Duration)
}

const pairCacheTTL = 30 * time.Second

// Client is the HTTP client for a swap server (component D).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Cache      Cache // optional; nil disables pair caching
}

// NewClient constructs a Client against baseURL. cache may be nil.
func NewClient(baseURL string, cache Cache) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Cache:      cache,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errkind.New(errkind.Generic, "encode request body", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return errkind.New(errkind.Transport, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errkind.New(errkind.Transport, method+" "+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errkind.New(errkind.Transport, "read response body", err)
	}
	if resp.StatusCode >= 400 {
		return errkind.New(errkind.Protocol, fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, respBody), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errkind.New(errkind.Protocol, "decode response", err)
	}
	return nil
}

// CreateSubmarineSwap implements create_submarine_swap.
func (c *Client) CreateSubmarineSwap(ctx context.Context, req CreateSubmarineRequest) (*CreateSubmarineResponse, error) {
	var resp CreateSubmarineResponse
	if err := c.do(ctx, http.MethodPost, "/v2/swap/submarine", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateReceiveSwap implements create_receive_swap (reverse submarine).
func (c *Client) CreateReceiveSwap(ctx context.Context, req CreateReverseRequest) (*CreateReverseResponse, error) {
	var resp CreateReverseResponse
	if err := c.do(ctx, http.MethodPost, "/v2/swap/reverse", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateChainSwap implements create_chain_swap.
func (c *Client) CreateChainSwap(ctx context.Context, req CreateChainRequest) (*CreateChainResponse, error) {
	var resp CreateChainResponse
	if err := c.do(ctx, http.MethodPost, "/v2/swap/chain", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSubmarinePairs implements get_submarine_pairs, cached for
// pairCacheTTL when a Cache is configured.
func (c *Client) GetSubmarinePairs(ctx context.Context) ([]Pair, error) {
	return c.getPairsCached(ctx, "/v2/swap/submarine", "pairs:submarine")
}

// GetReversePairs implements get_reverse_pairs.
func (c *Client) GetReversePairs(ctx context.Context) ([]Pair, error) {
	return c.getPairsCached(ctx, "/v2/swap/reverse", "pairs:reverse")
}

// GetChainPairs implements get_chain_pairs.
func (c *Client) GetChainPairs(ctx context.Context) ([]Pair, error) {
	return c.getPairsCached(ctx, "/v2/swap/chain", "pairs:chain")
}

func (c *Client) getPairsCached(ctx context.Context, path, cacheKey string) ([]Pair, error) {
	if c.Cache != nil {
		if raw, ok := c.Cache.CacheGet(cacheKey); ok {
			var pairs []Pair
			if err := json.Unmarshal(raw, &pairs); err == nil {
				return pairs, nil
			}
		}
	}

	var pairs []Pair
	if err := c.do(ctx, http.MethodGet, path, nil, &pairs); err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if raw, err := json.Marshal(pairs); err == nil {
			c.Cache.CacheSet(cacheKey, raw, pairCacheTTL)
		}
	}
	return pairs, nil
}

// GetZeroAmountChainSwapQuote implements
// get_zero_amount_chain_swap_quote, the fee quote an amountless chain
// swap presents before the user accepts or the SDK auto-accepts (per
// OnchainFeeRateLeewaySatPerVbyte).
func (c *Client) GetZeroAmountChainSwapQuote(ctx context.Context, swapID string) (*ChainQuote, error) {
	var quote ChainQuote
	if err := c.do(ctx, http.MethodGet, "/v2/swap/chain/"+swapID+"/quote", nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// AcceptZeroAmountChainSwapQuote implements the accept half of the
// zero-amount chain swap quote flow.
func (c *Client) AcceptZeroAmountChainSwapQuote(ctx context.Context, swapID string, acceptedAmountSat uint64) error {
	body := struct {
		AcceptedAmountSat uint64 `json:"accepted_amount_sat"`
	}{acceptedAmountSat}
	return c.do(ctx, http.MethodPost, "/v2/swap/chain/"+swapID+"/quote", body, nil)
}

// GetSendClaimTxDetails implements get_send_claim_tx_details.
func (c *Client) GetSendClaimTxDetails(ctx context.Context, swapID string) (*ClaimTxDetails, error) {
	var d ClaimTxDetails
	if err := c.do(ctx, http.MethodGet, "/v2/swap/submarine/"+swapID+"/claim", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PostSendClaimTxDetails implements post_send_claim_tx_details.
func (c *Client) PostSendClaimTxDetails(ctx context.Context, sig PartialSig) error {
	return c.do(ctx, http.MethodPost, "/v2/swap/submarine/"+sig.SwapID+"/claim", sig, nil)
}

// GetChainClaimTxDetails implements get_chain_claim_tx_details.
func (c *Client) GetChainClaimTxDetails(ctx context.Context, swapID string) (*ClaimTxDetails, error) {
	var d ClaimTxDetails
	if err := c.do(ctx, http.MethodGet, "/v2/swap/chain/"+swapID+"/claim", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PostChainClaimTxDetails implements post_chain_claim_tx_details.
func (c *Client) PostChainClaimTxDetails(ctx context.Context, sig PartialSig) error {
	return c.do(ctx, http.MethodPost, "/v2/swap/chain/"+sig.SwapID+"/claim", sig, nil)
}

// GetChainRefundTxDetails fetches the cooperative refund signing
// material for a chain swap.
func (c *Client) GetChainRefundTxDetails(ctx context.Context, swapID string) (*RefundTxDetails, error) {
	var d RefundTxDetails
	if err := c.do(ctx, http.MethodGet, "/v2/swap/chain/"+swapID+"/refund", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PostChainRefundTxDetails submits the cooperative refund partial
// signature.
func (c *Client) PostChainRefundTxDetails(ctx context.Context, sig PartialSig) error {
	return c.do(ctx, http.MethodPost, "/v2/swap/chain/"+sig.SwapID+"/refund", sig, nil)
}

// BroadcastTx is the swap-server broadcast fallback used when direct
// chain-service broadcast fails (spec.md §4.4).
func (c *Client) BroadcastTx(ctx context.Context, currency, txHex string) (string, error) {
	body := struct {
		Currency string `json:"currency"`
		Hex      string `json:"hex"`
	}{currency, txHex}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/chain/"+currency+"/transaction", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CheckForMRH implements check_for_mrh: asks the server whether a
// reverse swap's invoice carries a Magic Routing Hint address, used as
// a fallback when the invoice's own fallback field can't be decoded
// locally.
func (c *Client) CheckForMRH(ctx context.Context, invoice string) (string, bool, error) {
	var resp struct {
		Address string `json:"address"`
		Found   bool   `json:"found"`
	}
	body := struct {
		Invoice string `json:"invoice"`
	}{invoice}
	if err := c.do(ctx, http.MethodPost, "/v2/swap/reverse/mrh-check", body, &resp); err != nil {
		return "", false, err
	}
	return resp.Address, resp.Found, nil
}

// FetchBOLT12Invoice implements fetch_bolt12_invoice (spec.md §3
// supplement): resolves a BOLT12 offer into a payable invoice for the
// requested amount.
func (c *Client) FetchBOLT12Invoice(ctx context.Context, offer string, amountSat uint64) (*BOLT12Invoice, error) {
	body := struct {
		Offer     string `json:"offer"`
		AmountSat uint64 `json:"amount_sat"`
	}{offer, amountSat}
	var resp BOLT12Invoice
	if err := c.do(ctx, http.MethodPost, "/v2/bolt12/fetch", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
