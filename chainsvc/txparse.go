package chainsvc

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// activeParams selects which address version verify_tx and the wallet
// use to decode scriptPubKeys into addresses (spec.md §6: network
// selects address versions).
var activeParams = &chaincfg.MainNetParams

// SetActiveParams switches the address-decoding network, called once
// at startup from the top-level Config.Network.
func SetActiveParams(p *chaincfg.Params) {
	activeParams = p
}

// parseTxHex decodes a raw transaction and extracts its outputs'
// addresses for verify_tx. This covers plain (non-confidential)
// Bitcoin-style script_pubkeys; concrete Liquid confidential-output
// unblinding is a stated Non-goal collaborator (spec.md §1) and lives
// behind the Wallet capability interface, not here.
func parseTxHex(rawHex string) (*Tx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}

	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	txid := msgTx.TxHash()

	outputs := make([]TxOutput, len(msgTx.TxOut))
	for i, out := range msgTx.TxOut {
		addr := ""
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, activeParams)
		if err == nil && len(addrs) > 0 {
			addr = addrs[0].EncodeAddress()
		}
		outputs[i] = TxOutput{
			ScriptPubKey: hex.EncodeToString(out.PkScript),
			Address:      addr,
			ValueSat:     out.Value,
		}
	}

	return &Tx{
		TxID:       txid.String(),
		Hex:        rawHex,
		Outputs:    outputs,
		SignalsRBF: signalsRBF(&msgTx),
	}, nil
}

// signalsRBF reports whether any input's sequence number opts the tx
// into replace-by-fee, per BIP 125.
func signalsRBF(tx *wire.MsgTx) bool {
	for _, in := range tx.TxIn {
		if in.Sequence < wire.MaxTxInSequenceNum-1 {
			return true
		}
	}
	return false
}

// scriptAddrs extracts the addresses a scriptPubKey pays, for callers
// that only have raw script bytes (e.g. from a persisted UTXO) and need
// an address string to query an Esplora-style API with.
func scriptAddrs(script []byte) (int, []string, int, error) {
	class, addrs, reqSigs, err := txscript.ExtractPkScriptAddrs(script, activeParams)
	if err != nil {
		return 0, nil, 0, err
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.EncodeAddress()
	}
	return int(class), out, reqSigs, nil
}

// ScriptForAddress returns the scriptPubKey bytes a chain service
// should watch for a given address.
func ScriptForAddress(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, activeParams)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}
