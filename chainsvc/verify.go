package chainsvc

import (
	"context"

	"github.com/lightningnetwork/lnliquid/errkind"
)

// ErrTxNotFound is returned when verify_tx can't locate the tx at all.
var ErrTxNotFound = errkind.New(errkind.Protocol, "transaction not found", nil)

// ErrTxIDMismatch is returned when the parsed hex's computed tx id
// doesn't match the expected id.
var ErrTxIDMismatch = errkind.New(errkind.Protocol, "transaction id mismatch", nil)

// ErrNoOutputToAddress is returned when no output of the tx pays the
// expected address.
var ErrNoOutputToAddress = errkind.New(errkind.Protocol, "no output pays the expected address", nil)

// ErrNotConfirmed is returned when confirmation was required but the
// tx has zero confirmations.
var ErrNotConfirmed = errkind.New(errkind.Protocol, "transaction not confirmed", nil)

// VerifyTx implements the verify_tx primitive from spec.md §4.3: parses
// hex, checks that its tx id matches txID, checks that at least one
// output pays address, and — if requireConfirmed — confirms history
// shows at least one confirmation.
func VerifyTx(ctx context.Context, svc ChainService, address, txID, hex string, requireConfirmed bool) (*Tx, error) {
	tx, err := parseTxHex(hex)
	if err != nil {
		return nil, errkind.New(errkind.Protocol, "parse tx hex", err)
	}
	if tx.TxID != txID {
		return nil, ErrTxIDMismatch
	}

	found := false
	for _, out := range tx.Outputs {
		if out.Address == address {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoOutputToAddress
	}

	if requireConfirmed {
		confirmed, err := hasConfirmation(ctx, svc, address, txID)
		if err != nil {
			return nil, err
		}
		if !confirmed {
			return nil, ErrNotConfirmed
		}
		tx.IsConfirmed = true
	}

	return tx, nil
}

// hasConfirmation checks the address's script history for an entry
// matching txID with a positive height.
func hasConfirmation(ctx context.Context, svc ChainService, address, txID string) (bool, error) {
	script, err := ScriptForAddress(address)
	if err != nil {
		return false, err
	}
	history, err := svc.GetScriptHistoryWithRetry(ctx, script, 3)
	if err != nil {
		return false, err
	}
	for _, h := range history {
		if h.TxID == txID && h.Height > 0 {
			return true, nil
		}
	}
	return false, nil
}
