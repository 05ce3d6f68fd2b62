// Package ticker provides a mockable periodic ticker, the same role
// lnd's ticker package plays: production code gets a thin wrapper
// around time.Ticker, while tests can force ticks deterministically
// instead of racing against wall-clock timers.
package ticker

import "time"

// Ticker is the capability surface consumed by the status stream's
// keep-alive loop and the supervisor's periodic reconciliation loop.
type Ticker interface {
	// Ticks returns the channel that delivers tick times.
	Ticks() <-chan time.Time

	// Resume (re)starts the ticker.
	Resume()

	// Pause stops the ticker without releasing its resources.
	Pause()

	// Stop releases the ticker's resources.
	Stop()
}

// wallClock wraps time.Ticker.
type wallClock struct {
	t        *time.Ticker
	interval time.Duration
	ch       chan time.Time
}

// New returns a production ticker that fires every interval.
func New(interval time.Duration) Ticker {
	return &wallClock{
		interval: interval,
		ch:       make(chan time.Time, 1),
	}
}

func (w *wallClock) Ticks() <-chan time.Time { return w.ch }

func (w *wallClock) Resume() {
	if w.t != nil {
		return
	}
	w.t = time.NewTicker(w.interval)
	go func() {
		for range w.t.C {
			select {
			case w.ch <- time.Now():
			default:
				// Skip a missed tick rather than backlog it,
				// matching the keep-alive's "no backlog"
				// requirement.
			}
		}
	}()
}

func (w *wallClock) Pause() {
	if w.t == nil {
		return
	}
	w.t.Stop()
	w.t = nil
}

func (w *wallClock) Stop() {
	w.Pause()
}

// Force is a test ticker whose ticks are driven explicitly by sending
// on the Force channel.
type Force struct {
	Force chan time.Time
}

// NewForce returns a test ticker.
func NewForce() *Force {
	return &Force{Force: make(chan time.Time)}
}

// Ticks returns the force channel.
func (f *Force) Ticks() <-chan time.Time { return f.Force }

// Resume is a no-op for the forced ticker.
func (f *Force) Resume() {}

// Pause is a no-op for the forced ticker.
func (f *Force) Pause() {}

// Stop closes the force channel.
func (f *Force) Stop() { close(f.Force) }
