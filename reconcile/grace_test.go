package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnliquid/swap"
)

func TestWithinGracePeriod(t *testing.T) {
	now := time.Unix(10_000, 0)

	require.False(t, WithinGracePeriod(time.Time{}, now, 120*time.Second),
		"zero lastWritten must never be within the grace period")
	require.True(t, WithinGracePeriod(now.Add(-60*time.Second), now, 120*time.Second))
	require.False(t, WithinGracePeriod(now.Add(-200*time.Second), now, 120*time.Second))
}

func TestShouldSkipSendOnlyWhenClearingRefund(t *testing.T) {
	refundID := "refund-1"
	s := &swap.SendSwap{RefundTxID: &refundID}

	require.True(t, ShouldSkipSend(s, RecoveredSend{}, true),
		"derivation dropped a previously observed refund tx id inside the grace period")
	require.False(t, ShouldSkipSend(s, RecoveredSend{}, false),
		"outside the grace period recovery should proceed")
	require.False(t, ShouldSkipSend(s, RecoveredSend{RefundTxID: &refundID}, true),
		"derivation re-confirming the same tx id is never a clobber")
}

func TestShouldSkipReceiveOnlyWhenClearingClaim(t *testing.T) {
	claimID := "claim-1"
	s := &swap.ReceiveSwap{ClaimTxID: &claimID}

	require.True(t, ShouldSkipReceive(s, RecoveredReceive{}, true))
	require.False(t, ShouldSkipReceive(s, RecoveredReceive{ClaimTxID: &claimID}, true))
}

func TestShouldSkipChainEitherLegClearing(t *testing.T) {
	claimID := "claim-1"
	refundID := "refund-1"

	s := &swap.ChainSwap{ClaimTxID: &claimID}
	require.True(t, ShouldSkipChain(s, RecoveredChain{}, true))

	s = &swap.ChainSwap{RefundTxID: &refundID}
	require.True(t, ShouldSkipChain(s, RecoveredChain{}, true))

	s = &swap.ChainSwap{}
	require.False(t, ShouldSkipChain(s, RecoveredChain{}, true))
}
