// Package metrics registers the engine's Prometheus collectors: queue
// depths, accepted/retired item counts, and per-kind error counts
//, grounded on ethpandaops-cbt's
// use of github.com/prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups the engine's collectors. Callers normally construct
// one with NewRegistry and register it against a global or per-job
// prometheus.Registerer.
type Registry struct {
	QueueDepth *prometheus.GaugeVec
	ItemsAccepted prometheus.Counter
	ItemsRetired prometheus.Counter
	ErrorsByKind *prometheus.CounterVec
	WarmupRowsDiscarded prometheus.Counter
}

// NewRegistry builds a fresh Registry and registers all of its
// collectors against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "videobatch",
				Name: "queue_depth",
				Help: "Number of entries currently queued per pipeline stage.",
			}, []string{"stage"}),
		ItemsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "videobatch",
				Name: "items_accepted_total",
				Help: "Work items the local node has accepted from the cluster dispatcher.",
		}),
		ItemsRetired: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "videobatch",
				Name: "items_retired_total",
				Help: "Work items fully persisted by the save stage.",
		}),
		ErrorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "videobatch",
				Name: "errors_total",
				Help: "Fatal/transient errors observed, partitioned by kind.",
			}, []string{"kind"}),
		WarmupRowsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "videobatch",
				Name: "warmup_rows_discarded_total",
				Help: "Output rows discarded at the terminal evaluate group for warmup trimming.",
		}),
	}

	reg.MustRegister(r.QueueDepth, r.ItemsAccepted, r.ItemsRetired, r.ErrorsByKind, r.WarmupRowsDiscarded)
	return r
}
