// Package invoice decodes BOLT11 Lightning invoices (the `invoice`
// field of SendSwap/ReceiveSwap), adapted from zpay32/invoice.go and
// trimmed to decode-only: this client never signs or encodes invoices
// of its own, it only needs payment_hash, amount, description and any
// fallback on-chain address (the field a Magic Routing Hint rides in)
// out of invoices it receives from a swap server.
package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/lightningnetwork/lnliquid/errkind"
)

const (
	fieldTypeP = 1
	fieldTypeD = 13
	fieldTypeH = 23
	fieldTypeX = 6
	fieldTypeF = 9
	fieldTypeN = 19
	fieldTypeC = 24

	defaultExpirySeconds        = 3600
	defaultMinFinalCLTVExpiry   = 18
	hashBase32Len               = 52
	pubKeyBase32Len              = 53
)

// Invoice is the decoded subset of a BOLT11 invoice this client needs.
type Invoice struct {
	MilliSat            *uint64 // nil if amountless
	Timestamp           time.Time
	PaymentHash         *[32]byte
	Description         string
	DescriptionHash      *[32]byte
	Expiry              time.Duration
	FallbackAddress      string // decoded 'f' tag, raw form (network-specific encoding is the caller's concern)
	DestinationPubKey    string // hex, from the 'n' tag if present
	MinFinalCLTVExpiry   uint64
}

// Decode parses a bech32-encoded BOLT11 invoice string. It does not
// verify the invoice's signature: that requires recovering and
// comparing against a destination pubkey, which this client has no use
// for since it never originates payments to invoices it itself signs.
func Decode(bolt11 string) (*Invoice, error) {
	hrp, data, err := bech32.DecodeNoLimit(bolt11)
	if err != nil {
		return nil, errkind.New(errkind.Protocol, "bech32 decode invoice", err)
	}

	prefix, milliSat, err := parseHRP(hrp)
	if err != nil {
		return nil, err
	}
	_ = prefix // network prefix (lnbc/lntb/lnbcrt); network selection is a config-level concern

	if len(data) < 104/5+7 {
		return nil, errkind.New(errkind.Protocol, "invoice data too short", nil)
	}

	// Signature is the trailing 104 base32 groups (520 bits); everything
	// before that is timestamp + tagged fields.
	sigStart := len(data) - 104
	if sigStart < 7 {
		return nil, errkind.New(errkind.Protocol, "invoice missing signature", nil)
	}
	body := data[:sigStart]

	timestamp, err := parseTimestamp(body[:7])
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		MilliSat:           milliSat,
		Timestamp:          timestamp,
		Expiry:             defaultExpirySeconds * time.Second,
		MinFinalCLTVExpiry: defaultMinFinalCLTVExpiry,
	}

	if err := parseTaggedFields(inv, body[7:]); err != nil {
		return nil, err
	}

	return inv, nil
}

// parseHRP splits a human-readable part like "lnbc2500u" into its
// network prefix and an optional millisatoshi amount.
func parseHRP(hrp string) (prefix string, milliSat *uint64, err error) {
	if !strings.HasPrefix(hrp, "ln") {
		return "", nil, errkind.New(errkind.Protocol, "invoice missing ln prefix", nil)
	}

	cut := len(hrp)
	for i := 2; i < len(hrp); i++ {
		if hrp[i] >= '0' && hrp[i] <= '9' {
			cut = i
			break
		}
	}
	netPrefix := hrp[:cut]
	amountPart := hrp[cut:]

	if amountPart == "" {
		return netPrefix, nil, nil
	}

	multiplier := byte(0)
	digits := amountPart
	if last := amountPart[len(amountPart)-1]; last < '0' || last > '9' {
		multiplier = last
		digits = amountPart[:len(amountPart)-1]
	}

	amount, convErr := strconv.ParseUint(digits, 10, 64)
	if convErr != nil {
		return "", nil, errkind.New(errkind.Protocol, "invoice amount not numeric", convErr)
	}

	btcAmount, convErr := applyMultiplier(amount, multiplier)
	if convErr != nil {
		return "", nil, convErr
	}
	return netPrefix, &btcAmount, nil
}

// applyMultiplier converts a BOLT11 amount+multiplier pair into
// millisatoshis, per the m/u/n/p letter suffixes.
func applyMultiplier(amount uint64, multiplier byte) (uint64, error) {
	const mSatPerBTC = 100_000_000_000
	switch multiplier {
	case 0:
		return amount * mSatPerBTC, nil
	case 'm':
		return amount * mSatPerBTC / 1_000, nil
	case 'u':
		return amount * mSatPerBTC / 1_000_000, nil
	case 'n':
		return amount * mSatPerBTC / 1_000_000_000, nil
	case 'p':
		return amount * mSatPerBTC / 1_000_000_000_000, nil
	default:
		return 0, errkind.New(errkind.Protocol, fmt.Sprintf("unknown amount multiplier %q", multiplier), nil)
	}
}

func parseTimestamp(data []byte) (time.Time, error) {
	var ts uint64
	for _, b := range data {
		ts = ts<<5 | uint64(b)
	}
	return time.Unix(int64(ts), 0), nil
}

// parseTaggedFields walks the tagged-field section, filling in the
// fields this decoder understands and skipping the rest ('r' routing
// hints included — this client resolves routing via the swap server,
// not by assembling a route itself).
func parseTaggedFields(inv *Invoice, data []byte) error {
	for len(data) >= 3 {
		fieldType := data[0]
		dataLength := int(data[1])<<5 | int(data[2])
		data = data[3:]
		if len(data) < dataLength {
			return errkind.New(errkind.Protocol, "tagged field truncated", nil)
		}
		fieldData := data[:dataLength]
		data = data[dataLength:]

		switch fieldType {
		case fieldTypeP:
			if dataLength != hashBase32Len {
				break
			}
			raw, err := bech32.ConvertBits(fieldData, 5, 8, false)
			if err != nil || len(raw) < 32 {
				break
			}
			var hash [32]byte
			copy(hash[:], raw[:32])
			inv.PaymentHash = &hash

		case fieldTypeH:
			if dataLength != hashBase32Len {
				break
			}
			raw, err := bech32.ConvertBits(fieldData, 5, 8, false)
			if err != nil || len(raw) < 32 {
				break
			}
			var hash [32]byte
			copy(hash[:], raw[:32])
			inv.DescriptionHash = &hash

		case fieldTypeD:
			raw, err := bech32.ConvertBits(fieldData, 5, 8, false)
			if err == nil {
				inv.Description = string(raw)
			}

		case fieldTypeX:
			inv.Expiry = time.Duration(base32ToUint64(fieldData)) * time.Second

		case fieldTypeC:
			inv.MinFinalCLTVExpiry = base32ToUint64(fieldData)

		case fieldTypeF:
			raw, err := bech32.ConvertBits(fieldData, 5, 8, false)
			if err == nil {
				inv.FallbackAddress = fmt.Sprintf("%x", raw)
			}

		case fieldTypeN:
			if dataLength != pubKeyBase32Len {
				break
			}
			raw, err := bech32.ConvertBits(fieldData, 5, 8, false)
			if err == nil && len(raw) >= 33 {
				inv.DestinationPubKey = fmt.Sprintf("%x", raw[:33])
			}
		}
	}
	return nil
}

func base32ToUint64(data []byte) uint64 {
	var v uint64
	for _, b := range data {
		v = v<<5 | uint64(b)
	}
	return v
}
