package chainsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 3, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetryExhausted(t *testing.T) {
	attempts := 0
	sentinel := errors.New("still failing")
	err := WithRetry(context.Background(), 2, func() error {
		attempts++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 3, attempts) // first attempt + 2 retries
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := WithRetry(ctx, 5, func() error {
		attempts++
		return errors.New("fail")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}
