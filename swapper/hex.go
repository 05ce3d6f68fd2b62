package swapper

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func encodeHex(b []byte) string { return hex.EncodeToString(b) }

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func chainHashFromHex(txid string) (*chainhash.Hash, error) {
	return chainhash.NewHashFromStr(txid)
}
