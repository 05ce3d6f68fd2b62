package swap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateTransitionAllowed(t *testing.T) {
	cases := []struct {
		from, to PaymentState
	}{
		{Created, Pending},
		{Pending, Pending},
		{WaitingFeeAcceptance, Pending},
		{Created, WaitingFeeAcceptance},
		{RefundPending, Complete},
		{Created, TimedOut},
		{Complete, Refundable},
		{Failed, Refundable},
		{Pending, RefundPending},
		{Refundable, RefundPending},
		{Created, Failed},
		{Pending, Failed},
		{Refundable, Failed},
		{RefundPending, Failed},
	}
	for _, c := range cases {
		require.NoError(t, ValidateTransition(c.from, c.to),
			"%s -> %s should be allowed", c.from, c.to)
	}
}

func TestValidateTransitionRejected(t *testing.T) {
	cases := []struct {
		from, to PaymentState
	}{
		{Complete, Failed},
		{TimedOut, Pending},
		{Pending, Created},
		{Failed, Pending},
		{Complete, Pending},
		{TimedOut, Complete},
	}
	for _, c := range cases {
		err := ValidateTransition(c.from, c.to)
		require.Error(t, err, "%s -> %s should be rejected", c.from, c.to)
		var ist *InvalidStateTransition
		require.ErrorAs(t, err, &ist)
	}
}

func TestReceiveSwapClaimedByMRH(t *testing.T) {
	txid := "abc"
	r := &ReceiveSwap{MRHTxID: &txid}
	require.True(t, r.ClaimedByMRH())

	claimTxid := "def"
	r.ClaimTxID = &claimTxid
	require.False(t, r.ClaimedByMRH())
}

func TestChainSwapIsAmountless(t *testing.T) {
	c := &ChainSwap{PayerAmountSat: 0}
	require.True(t, c.IsAmountless())
	c.PayerAmountSat = 100
	require.False(t, c.IsAmountless())
}
