// Package eventbus is the SdkEvent publish/subscribe fan-out (component
// J, spec.md §4's event bus and §5's concurrency model): a bounded
// drop-oldest queue per subscriber so one slow external listener never
// blocks the handlers or reconciler that publish events.
package eventbus

import (
	"sync"

	"github.com/lightningnetwork/lnliquid/queue"
)

// Event is published whenever a swap's observable state changes:
// created, a lockup/claim/refund tx is seen, or it reaches a terminal
// state. The public SDK re-exports this as SdkEvent (see event.go at
// the module root).
type Event struct {
	SwapID string
	Kind   string // e.g. "PaymentPending", "PaymentSucceeded", "PaymentFailed", "PaymentRefundable"
}

// subscriber pairs a bounded queue with a wakeup channel a consumer
// goroutine can range over.
type subscriber struct {
	q *queue.DropOldest
}

// Bus fans Events out to every current subscriber. Each subscriber gets
// its own bounded queue (spec.md §5: capacity ~30, never blocks
// producers) so a slow consumer only loses its own oldest events, never
// another subscriber's.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	capacity    int
}

// New returns an empty Bus whose subscriber queues hold capacity events
// each.
func New(capacity int) *Bus {
	return &Bus{
		subscribers: make(map[int]*subscriber),
		capacity:    capacity,
	}
}

// Publish enqueues ev on every current subscriber's queue. It never
// blocks: a full subscriber queue drops its oldest entry instead.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		sub.q.Push(ev)
	}
}

// Subscription is a handle a caller drains via Next and releases via
// Unsubscribe.
type Subscription struct {
	bus *Bus
	id  int
	q   *queue.DropOldest
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	q := queue.NewDropOldest(b.capacity)
	b.subscribers[id] = &subscriber{q: q}
	return &Subscription{bus: b, id: id, q: q}
}

// Next blocks until an event is available or notify fires, returning
// false if the queue was empty after the wakeup (spurious wakeups are
// possible and must be tolerated by callers looping on Next).
func (s *Subscription) Next() (Event, bool) {
	if item, ok := s.q.Pop(); ok {
		return item.(Event), true
	}
	<-s.q.NotifyChan()
	if item, ok := s.q.Pop(); ok {
		return item.(Event), true
	}
	return Event{}, false
}

// TryNext is a non-blocking Pop, for callers that only want to drain
// whatever is already queued.
func (s *Subscription) TryNext() (Event, bool) {
	item, ok := s.q.Pop()
	if !ok {
		return Event{}, false
	}
	return item.(Event), true
}

// Unsubscribe removes the subscription; its queue is discarded.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subscribers, s.id)
}
