package lnliquid

import "time"

// Network selects the address versions, asset ids and default server
// URLs the SDK operates against.
type Network uint8

const (
	// Mainnet is Liquid/Bitcoin mainnet.
	Mainnet Network = iota
	// Testnet is Liquid/Bitcoin testnet.
	Testnet
	// Regtest is a local regtest network.
	Regtest
)

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Regtest:
		return "regtest"
	default:
		return "unknown"
	}
}

// ExplorerConfig selects an Esplora-backed chain service backend.
type ExplorerConfig struct {
	URL          string `long:"url" description:"base URL of the Esplora-compatible explorer"`
	UseWaterfalls bool  `long:"use-waterfalls" description:"waterfalls bulk-history flag; stored on the client, no request uses the extension"`
}

// AssetMetadata describes a non-policy Liquid asset for display
// purposes only; it never affects swap accounting.
type AssetMetadata struct {
	AssetID   string `long:"asset-id"`
	Name      string `long:"name"`
	Ticker    string `long:"ticker"`
	Precision uint8  `long:"precision"`
	FiatID    string `long:"fiat-id"`
}

// Config collects every option recognized by the SDK, grounded on
// spec.md §6 and expressed as go-flags struct tags the way lnd's own
// daemon configuration is declared.
type Config struct {
	LiquidExplorer  ExplorerConfig `group:"liquid-explorer" namespace:"liquid-explorer"`
	BitcoinExplorer ExplorerConfig `group:"bitcoin-explorer" namespace:"bitcoin-explorer"`

	WorkingDir string  `long:"working-dir" description:"directory for persistent storage" required:"true"`
	Network    Network `long:"network" description:"mainnet, testnet or regtest"`

	PaymentTimeoutSec               uint64 `long:"payment-timeout-sec" default:"30"`
	ZeroConfMaxAmountSat            uint64 `long:"zero-conf-max-amount-sat" default:"1000000"`
	OnchainFeeRateLeewaySatPerVbyte uint64 `long:"onchain-fee-rate-leeway-sat-per-vbyte" default:"1"`

	AssetMetadata []AssetMetadata `long:"asset-metadata"`

	BreezAPIKey    string `long:"breez-api-key"`
	SideswapAPIKey string `long:"sideswap-api-key"`

	UseMagicRoutingHints bool `long:"use-magic-routing-hints" default:"true"`

	ExternalInputParsers           []string `long:"external-input-parser"`
	UseDefaultExternalInputParsers bool     `long:"use-default-external-input-parsers" default:"true"`

	// SwapServerURL is the HTTP(S) base URL for the swap coordinator;
	// its WebSocket endpoint is derived by swapping scheme for ws(s)
	// and appending /ws, per spec.md §6.
	SwapServerURL string `long:"swap-server-url"`
}

// PaymentTimeout returns PaymentTimeoutSec as a time.Duration.
func (c *Config) PaymentTimeout() time.Duration {
	return time.Duration(c.PaymentTimeoutSec) * time.Second
}

// EstimatedBTCLockupTxVsize is the constant used in the amountless
// chain-swap auto-accept leeway computation (scenario D).
const EstimatedBTCLockupTxVsize = 154

// GracePeriod is the suggested window (spec.md §4.9) during which the
// reconciler must not clobber a just-broadcast claim/refund tx id that
// isn't observable on chain yet.
const GracePeriod = 120 * time.Second

// KeepAliveInterval is the status-stream ping period (spec.md §4.5).
const KeepAliveInterval = 15 * time.Second

// ReconnectDelay bounds the status-stream reconnect backoff (spec.md §4.5).
const ReconnectDelay = 2 * time.Second

// EventBusCapacity is the bounded drop-oldest buffer size for SdkEvent
// fan-out (spec.md §5).
const EventBusCapacity = 30
