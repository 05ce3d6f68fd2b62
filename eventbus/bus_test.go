package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeDelivers(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()

	bus.Publish(Event{SwapID: "s1", Kind: "created"})
	ev, ok := sub.Next()
	require.True(t, ok)
	require.Equal(t, "s1", ev.SwapID)
}

func TestSlowSubscriberDropsOldestNotBlocksProducer(t *testing.T) {
	bus := New(2)
	sub := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{SwapID: "s", Kind: "tick"})
	}

	// Only the last `capacity` events survive; the rest were dropped
	// without blocking Publish above.
	count := 0
	for {
		if _, ok := sub.TryNext(); ok {
			count++
			continue
		}
		break
	}
	require.Equal(t, 2, count)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	sub.Unsubscribe()

	bus.Publish(Event{SwapID: "s1"})
	_, ok := sub.TryNext()
	require.False(t, ok)
}

func TestIndependentSubscribersEachGetEvents(t *testing.T) {
	bus := New(4)
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(Event{SwapID: "s1"})

	_, ok := a.Next()
	require.True(t, ok)
	_, ok = b.Next()
	require.True(t, ok)
}
