package invoice

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/require"
)

// buildTestInvoice hand-assembles a minimal BOLT11-shaped bech32 string
// with a payment_hash ('p') and description ('d') tagged field plus a
// zeroed 104-group signature, so Decode can be exercised without
// depending on a hardcoded real-world invoice string.
func buildTestInvoice(t *testing.T, amountSuffix string, paymentHash [32]byte, description string) string {
	t.Helper()

	var data []byte

	// 7 base32 groups of timestamp (35 bits), value 1 for determinism.
	ts := make([]byte, 7)
	ts[6] = 1
	data = append(data, ts...)

	// 'p' field: 52 groups encoding the 32-byte payment hash.
	pHashGroups, err := bech32.ConvertBits(paymentHash[:], 8, 5, true)
	require.NoError(t, err)
	require.Len(t, pHashGroups, hashBase32Len)
	data = append(data, fieldTypeP, byte(hashBase32Len>>5), byte(hashBase32Len&31))
	data = append(data, pHashGroups...)

	// 'd' field: description.
	dGroups, err := bech32.ConvertBits([]byte(description), 8, 5, true)
	require.NoError(t, err)
	data = append(data, fieldTypeD, byte(len(dGroups)>>5), byte(len(dGroups)&31))
	data = append(data, dGroups...)

	// Zeroed signature (104 groups = 520 bits).
	data = append(data, make([]byte, 104)...)

	hrp := "lnbc" + amountSuffix
	encoded, err := bech32.Encode(hrp, data)
	require.NoError(t, err)
	return encoded
}

func TestDecodeExtractsPaymentHashAndDescription(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i)
	}

	raw := buildTestInvoice(t, "2500u", hash, "coffee")

	inv, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, inv.PaymentHash)
	require.Equal(t, hash, *inv.PaymentHash)
	require.Equal(t, "coffee", inv.Description)
	require.NotNil(t, inv.MilliSat)
	require.Equal(t, uint64(250_000_000), *inv.MilliSat)
}

func TestDecodeAmountless(t *testing.T) {
	var hash [32]byte
	raw := buildTestInvoice(t, "", hash, "")

	inv, err := Decode(raw)
	require.NoError(t, err)
	require.Nil(t, inv.MilliSat)
}

func TestDecodeRejectsMissingPrefix(t *testing.T) {
	_, err := Decode("not-an-invoice")
	require.Error(t, err)
}

func TestDecodeDefaultsExpiryAndCLTV(t *testing.T) {
	var hash [32]byte
	raw := buildTestInvoice(t, "1u", hash, "x")

	inv, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, defaultExpirySeconds*time.Second, inv.Expiry)
	require.Equal(t, uint64(defaultMinFinalCLTVExpiry), inv.MinFinalCLTVExpiry)
}
