package subscriber

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecal-sub/ecal/metric"
)

type subscriberMetrics struct {
	samplesAccepted prometheus.Counter
	samplesDropped  prometheus.Counter
	gapEvents       prometheus.Counter
	dedupHits       prometheus.Counter
	filterMisses    prometheus.Counter
}

func newSubscriberMetrics(registry *metric.MetricsRegistry, name string) *subscriberMetrics {
	if registry == nil {
		return nil
	}
	m := &subscriberMetrics{
		samplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "subscriber", Name: "samples_accepted_total",
			Help: "Total samples delivered to the installed receive callback or read slot.",
		}),
		samplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "subscriber", Name: "samples_dropped_total",
			Help: "Total samples rejected by clock classification as duplicate or reordered.",
		}),
		gapEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "subscriber", Name: "clock_gap_events_total",
			Help: "Total accept-with-gap classifications across all publishers.",
		}),
		dedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "subscriber", Name: "dedup_hits_total",
			Help: "Total samples rejected as cross-layer duplicates.",
		}),
		filterMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "subscriber", Name: "filter_misses_total",
			Help: "Total samples rejected by the filter-id set.",
		}),
	}
	registry.RegisterCounter(name, "samples_accepted", m.samplesAccepted)
	registry.RegisterCounter(name, "samples_dropped", m.samplesDropped)
	registry.RegisterCounter(name, "clock_gap_events", m.gapEvents)
	registry.RegisterCounter(name, "dedup_hits", m.dedupHits)
	registry.RegisterCounter(name, "filter_misses", m.filterMisses)
	return m
}
