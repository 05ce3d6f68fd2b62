// Package swapper is the HTTP client for the swap server (component D,
// spec.md §4.4): creating swaps, fetching pair/fee data, exchanging
// claim/refund transaction details, and the MRH and BOLT12 lookups the
// Send/Receive handlers depend on. Modeled on lnd's RPC client request/
// response struct shape (one exported type per wire message) rather than
// hand-built JSON maps.
package swapper

// Pair describes a swap server's current fee/limit schedule for one
// swap direction, from get_submarine_pairs / get_reverse_pairs /
// get_chain_pairs.
type Pair struct {
	From          string
	To            string
	FeePercent    float64
	MinerFeeSat   uint64
	MinAmountSat  uint64
	MaxAmountSat  uint64
}

// CreateSubmarineRequest is the create_submarine_swap request body.
type CreateSubmarineRequest struct {
	Invoice      string
	RefundPubKey string
}

// CreateSubmarineResponse is the create_submarine_swap response.
type CreateSubmarineResponse struct {
	ID                 string
	Address            string
	ExpectedAmountSat  uint64
	TimeoutBlockHeight uint32
	SwapTree           string // serialized musig2/taproot tree descriptor, opaque here
	ClaimPubKey        string
	RawJSON            string
}

// CreateReverseRequest is the create_receive_swap (reverse submarine)
// request body.
type CreateReverseRequest struct {
	PayerAmountSat uint64
	PreimageHash   string
	ClaimPubKey    string
}

// CreateReverseResponse is the create_receive_swap response.
type CreateReverseResponse struct {
	ID                 string
	Invoice            string
	LockupAddress      string
	ReceiverAmountSat  uint64
	TimeoutBlockHeight uint32
	RefundPubKey       string
	RawJSON            string
}

// CreateChainRequest is the create_chain_swap request body. PayerAmountSat
// is 0 for an amountless chain swap.
type CreateChainRequest struct {
	Direction      string // "incoming" or "outgoing"
	PayerAmountSat uint64
	ClaimPubKey    string
	RefundPubKey   string
}

// CreateChainResponse is the create_chain_swap response.
type CreateChainResponse struct {
	ID                 string
	LockupAddress      string
	ClaimAddress       string
	ReceiverAmountSat  uint64
	TimeoutBlockHeight uint32
	RawJSON            string
}

// ChainQuote is a fee-acceptance quote for an amountless chain swap, from
// get_zero_amount_chain_swap_quote.
type ChainQuote struct {
	SwapID              string
	ActualPayerAmountSat uint64
	ServerFeeSat        uint64
}

// ClaimTxDetails carries what a handler needs to cooperatively sign a
// claim transaction, from get_send_claim_tx_details /
// get_chain_claim_tx_details.
type ClaimTxDetails struct {
	SwapID    string
	Preimage  string // hex
	PubNonce  string // hex, server's musig2 public nonce
	Message   string // hex, the digest the partial sig signs
}

// PartialSig is what post_*_claim_tx_details sends back to the server.
type PartialSig struct {
	SwapID    string
	PubNonce  string
	Signature string
}

// RefundTxDetails carries what's needed to cooperatively sign a refund,
// from get_chain_refund_tx_details-equivalent flows.
type RefundTxDetails struct {
	SwapID   string
	PubNonce string
	Message  string
}

// BOLT12Invoice is the result of fetch_bolt12_invoice.
type BOLT12Invoice struct {
	Invoice string
}
