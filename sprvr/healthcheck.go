package sprvr

import (
	"context"
	"time"
)

// CheckFunc is one liveness probe: a chain backend ping, a status
// stream reachability check, anything whose failure should be logged
// and retried rather than brought down the whole supervisor.
type CheckFunc func(ctx context.Context) error

// Observation runs a single named CheckFunc on a fixed interval,
// retrying on failure with a capped backoff before giving up on that
// round and waiting for the next tick. The shape (name, interval,
// timeout, backoff, retries) follows lnd's healthcheck package, but no
// source for that package was available to copy exactly — only its
// go.mod stub is present in the retrieval pack, so this is a
// reconstruction from spec.md's description of what a health check
// does, not an adaptation of concrete lnd code.
type Observation struct {
	Name     string
	Check    CheckFunc
	Interval time.Duration
	Timeout  time.Duration
	Backoff  time.Duration
	Retries  int
}

// NewObservation returns an Observation with lnd's healthcheck
// defaults: a 1 minute interval, 30 second per-attempt timeout, 1
// second initial backoff doubling on each retry, and 2 retries before
// giving up on that round.
func NewObservation(name string, check CheckFunc) *Observation {
	return &Observation{
		Name:     name,
		Check:    check,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		Backoff:  time.Second,
		Retries:  2,
	}
}

// run blocks until ctx is cancelled, invoking Check on every tick and
// retrying failures with exponential backoff.
func (o *Observation) run(ctx context.Context) {
	t := time.NewTicker(o.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.attempt(ctx)
		}
	}
}

func (o *Observation) attempt(ctx context.Context) {
	backoff := o.Backoff

	for try := 0; try <= o.Retries; try++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.Timeout)
		err := o.Check(attemptCtx)
		cancel()

		if err == nil {
			return
		}

		if try == o.Retries {
			log.Warnf("health check %q failed after %d retries: %v",
				o.Name, o.Retries, err)
			return
		}

		log.Debugf("health check %q failed (attempt %d/%d), retrying in %s: %v",
			o.Name, try+1, o.Retries, backoff, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
