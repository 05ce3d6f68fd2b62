// Command lnliquidcli is a thin, idempotent command-line front end for
// an Sdk. It exposes only read-only and retry-safe verbs (spec.md §6):
// there is no "cancel" or "delete", because nothing about a swap can
// be safely undone once the server has a create_response on file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	lnliquid "github.com/lightningnetwork/lnliquid"
	"github.com/lightningnetwork/lnliquid/handlers"
)

// options holds the flags common to every verb.
type options struct {
	WorkingDir      string `long:"working-dir" description:"directory holding the swap database" required:"true"`
	SwapServerURL   string `long:"swap-server-url" required:"true"`
	LiquidExplorer  string `long:"liquid-explorer-url" required:"true"`
	BitcoinExplorer string `long:"bitcoin-explorer-url" required:"true"`
}

var opts options

func (o *options) toConfig() *lnliquid.Config {
	cfg := &lnliquid.Config{
		WorkingDir:    o.WorkingDir,
		SwapServerURL: o.SwapServerURL,
	}
	cfg.LiquidExplorer.URL = o.LiquidExplorer
	cfg.BitcoinExplorer.URL = o.BitcoinExplorer
	return cfg
}

// openSdk wires an Sdk against a no-op wallet: lnliquidcli has no key
// material of its own (wallet custody is a stated Non-goal
// collaborator), so the verbs that need the wallet to actually sign
// something (send, receive) will fail with a clear error rather than
// silently producing an unsigned transaction.
func openSdk() (*lnliquid.Sdk, error) {
	return lnliquid.NewSdk(opts.toConfig(), lnliquid.Deps{Wallet: noWallet{}})
}

type noWallet struct{}

func (noWallet) NewAddress(chain string) (string, error) {
	return "", fmt.Errorf("lnliquidcli has no wallet backend configured for chain %q", chain)
}

func (noWallet) BuildAndSignLockupTx(chain string, amountSat uint64, toAddress string) (string, string, error) {
	return "", "", fmt.Errorf("lnliquidcli has no wallet backend configured for chain %q", chain)
}

var _ handlers.Wallet = noWallet{}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type getAddressCmd struct {
	Chain string `long:"chain" default:"liquid" description:"liquid or bitcoin"`
}

func (c *getAddressCmd) Execute(_ []string) error {
	sdk, err := openSdk()
	if err != nil {
		return err
	}
	defer sdk.Stop()

	addr, err := sdk.GetAddress(c.Chain)
	if err != nil {
		return err
	}
	printJSON(map[string]string{"address": addr})
	return nil
}

type getBalanceCmd struct {
	Chain string `long:"chain" default:"liquid" description:"liquid or bitcoin"`
}

func (c *getBalanceCmd) Execute(_ []string) error {
	sdk, err := openSdk()
	if err != nil {
		return err
	}
	defer sdk.Stop()

	bal, err := sdk.GetBalance(context.Background(), c.Chain)
	if err != nil {
		return err
	}
	printJSON(bal)
	return nil
}

type listPaymentsCmd struct{}

func (c *listPaymentsCmd) Execute(_ []string) error {
	sdk, err := openSdk()
	if err != nil {
		return err
	}
	defer sdk.Stop()

	payments, err := sdk.ListPayments()
	if err != nil {
		return err
	}
	printJSON(payments)
	return nil
}

type listRefundablesCmd struct{}

func (c *listRefundablesCmd) Execute(_ []string) error {
	sdk, err := openSdk()
	if err != nil {
		return err
	}
	defer sdk.Stop()

	swaps, err := sdk.ListRefundables()
	if err != nil {
		return err
	}
	printJSON(swaps)
	return nil
}

type refundCmd struct {
	Positional struct {
		SwapID string `positional-arg-name:"swap-id" required:"true"`
	} `positional-args:"true"`
}

func (c *refundCmd) Execute(_ []string) error {
	sdk, err := openSdk()
	if err != nil {
		return err
	}
	defer sdk.Stop()

	return sdk.Refund(context.Background(), c.Positional.SwapID)
}

type sendCmd struct {
	Invoice      string `long:"invoice" required:"true"`
	RefundPubKey string `long:"refund-pubkey" required:"true"`
}

func (c *sendCmd) Execute(_ []string) error {
	sdk, err := openSdk()
	if err != nil {
		return err
	}
	defer sdk.Stop()

	sw, err := sdk.Send(context.Background(), c.Invoice, c.RefundPubKey)
	if err != nil {
		return err
	}
	printJSON(sw)
	return nil
}

type receiveCmd struct {
	AmountSat    uint64 `long:"amount-sat" required:"true"`
	PreimageHash string `long:"preimage-hash" required:"true"`
	ClaimPubKey  string `long:"claim-pubkey" required:"true"`
}

func (c *receiveCmd) Execute(_ []string) error {
	sdk, err := openSdk()
	if err != nil {
		return err
	}
	defer sdk.Stop()

	sw, err := sdk.Receive(context.Background(), c.AmountSat, c.PreimageHash, c.ClaimPubKey)
	if err != nil {
		return err
	}
	printJSON(sw)
	return nil
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)

	if _, err := parser.AddCommand("get-address", "Derive a receiving address", "", &getAddressCmd{}); err != nil {
		fatal(err)
	}
	if _, err := parser.AddCommand("get-balance", "Sum the balance of every reserved address", "", &getBalanceCmd{}); err != nil {
		fatal(err)
	}
	if _, err := parser.AddCommand("list-payments", "List every known payment", "", &listPaymentsCmd{}); err != nil {
		fatal(err)
	}
	if _, err := parser.AddCommand("list-refundables", "List chain swaps eligible for a refund", "", &listRefundablesCmd{}); err != nil {
		fatal(err)
	}
	if _, err := parser.AddCommand("refund", "Trigger a refund attempt for a swap", "", &refundCmd{}); err != nil {
		fatal(err)
	}
	if _, err := parser.AddCommand("send", "Pay a Lightning invoice via a submarine swap", "", &sendCmd{}); err != nil {
		fatal(err)
	}
	if _, err := parser.AddCommand("receive", "Create an invoice backed by a reverse submarine swap", "", &receiveCmd{}); err != nil {
		fatal(err)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "lnliquidcli: %v\n", err)
	os.Exit(1)
}
