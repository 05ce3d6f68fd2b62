// Package metrics exposes the SDK's Prometheus counters and
// gauges. The pack declares github.com/prometheus/client_golang in its
// go.mod but no retrieved source actually calls it, so this package's
// shape follows the library's own promauto convention rather than a
// concrete in-pack usage site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lightningnetwork/lnliquid/swap"
)

const namespace = "lnliquid"

// Registry holds every metric this package registers. Sdk.Send and
// Sdk.Receive update SwapsCreated through ObserveCreated; nothing in this
// module updates the other metrics. Construct one with NewRegistry and pass it a prometheus.Registerer (or use the
// default one via prometheus.DefaultRegisterer) to expose it over
// /metrics.
type Registry struct {
	SwapsCreated      *prometheus.CounterVec
	SwapStateChanges  *prometheus.CounterVec
	StreamReconnects  prometheus.Counter
	ReconciliationRun prometheus.Counter
	ReconcileErrors   prometheus.Counter
	PendingSwaps      *prometheus.GaugeVec
}

// NewRegistry registers every metric against reg and returns the
// handle used to update them.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		SwapsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_created_total",
			Help:      "Number of swaps created, labeled by kind.",
		}, []string{"kind"}),
		SwapStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_state_changes_total",
			Help:      "Number of swap state transitions, labeled by kind and resulting state.",
		}, []string{"kind", "state"}),
		StreamReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_stream_reconnects_total",
			Help:      "Number of times the status stream websocket reconnected.",
		}),
		ReconciliationRun: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_runs_total",
			Help:      "Number of completed reconciliation passes.",
		}),
		ReconcileErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_errors_total",
			Help:      "Number of reconciliation passes that returned an error.",
		}),
		PendingSwaps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_swaps",
			Help:      "Current count of non-terminal swaps, labeled by kind.",
		}, []string{"kind"}),
	}
}

// kindLabel renders a swap.Kind the way the metric labels expect.
func kindLabel(k swap.Kind) string {
	switch k {
	case swap.KindSend:
		return "send"
	case swap.KindReceive:
		return "receive"
	case swap.KindChain:
		return "chain"
	default:
		return "unknown"
	}
}

// ObserveCreated increments the created-swaps counter for kind.
func (r *Registry) ObserveCreated(k swap.Kind) {
	r.SwapsCreated.WithLabelValues(kindLabel(k)).Inc()
}

// ObserveStateChange increments the state-change counter for kind
// transitioning into state.
func (r *Registry) ObserveStateChange(k swap.Kind, state swap.PaymentState) {
	r.SwapStateChanges.WithLabelValues(kindLabel(k), state.String()).Inc()
}

// SetPending sets the current pending-swap gauge for kind.
func (r *Registry) SetPending(k swap.Kind, count int) {
	r.PendingSwaps.WithLabelValues(kindLabel(k)).Set(float64(count))
}
