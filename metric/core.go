package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the subscriber-domain metrics exported by a running
// process: sample outcomes on the ingress path, connection/frequency
// state per topic, and the health of the registration bus transport.
type Metrics struct {
	// Ingress pipeline outcomes (§4.2/§7)
	SamplesAccepted *prometheus.CounterVec // labels: topic
	SamplesDropped  *prometheus.CounterVec // labels: topic, outcome
	MessageDrops    *prometheus.CounterVec // labels: topic (clock-gap count)
	DedupHits       *prometheus.CounterVec // labels: topic

	// Connection/frequency state (§4.3, §4.6)
	ActiveConnections *prometheus.GaugeVec // labels: topic
	Dfreq             *prometheus.GaugeVec // labels: topic (value in millihertz)

	// Registration bus transport health
	BusConnected   prometheus.Gauge
	BusReconnects  prometheus.Counter
	NATSRTT        prometheus.Gauge
	CircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all subscriber-domain metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SamplesAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ecal",
				Subsystem: "subscriber",
				Name:      "samples_accepted_total",
				Help:      "Total number of samples that passed the full ingress pipeline and were delivered",
			},
			[]string{"topic"},
		),

		SamplesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ecal",
				Subsystem: "subscriber",
				Name:      "samples_dropped_total",
				Help:      "Total number of samples silently rejected by the ingress pipeline, by outcome",
			},
			[]string{"topic", "outcome"},
		),

		MessageDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ecal",
				Subsystem: "subscriber",
				Name:      "message_drops_total",
				Help:      "Total number of clock gaps observed per topic (accept-with-gap classifications)",
			},
			[]string{"topic"},
		),

		DedupHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ecal",
				Subsystem: "subscriber",
				Name:      "dedup_hits_total",
				Help:      "Total number of samples rejected because their payload hash was already in the dedup window",
			},
			[]string{"topic"},
		),

		ActiveConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ecal",
				Subsystem: "subscriber",
				Name:      "active_connections",
				Help:      "Number of publishers currently connected per topic",
			},
			[]string{"topic"},
		),

		Dfreq: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ecal",
				Subsystem: "subscriber",
				Name:      "frequency_millihertz",
				Help:      "Estimated incoming sample rate per topic, in millihertz",
			},
			[]string{"topic"},
		),

		BusConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ecal",
				Subsystem: "registration_bus",
				Name:      "connected",
				Help:      "Registration bus connection status (0=disconnected, 1=connected)",
			},
		),

		BusReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ecal",
				Subsystem: "registration_bus",
				Name:      "reconnects_total",
				Help:      "Total number of registration bus reconnections",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ecal",
				Subsystem: "registration_bus",
				Name:      "rtt_milliseconds",
				Help:      "Registration bus round-trip time in milliseconds",
			},
		),

		CircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ecal",
				Subsystem: "registration_bus",
				Name:      "circuit_breaker",
				Help:      "Registration bus circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordSampleAccepted increments the accepted-sample counter for a topic.
func (c *Metrics) RecordSampleAccepted(topic string) {
	c.SamplesAccepted.WithLabelValues(topic).Inc()
}

// RecordSampleDropped increments the dropped-sample counter for a topic and outcome.
func (c *Metrics) RecordSampleDropped(topic, outcome string) {
	c.SamplesDropped.WithLabelValues(topic, outcome).Inc()
}

// RecordMessageDrop increments the clock-gap counter for a topic.
func (c *Metrics) RecordMessageDrop(topic string) {
	c.MessageDrops.WithLabelValues(topic).Inc()
}

// RecordDedupHit increments the dedup-hit counter for a topic.
func (c *Metrics) RecordDedupHit(topic string) {
	c.DedupHits.WithLabelValues(topic).Inc()
}

// RecordActiveConnections sets the active publisher count for a topic.
func (c *Metrics) RecordActiveConnections(topic string, count int) {
	c.ActiveConnections.WithLabelValues(topic).Set(float64(count))
}

// RecordFrequency sets the estimated incoming sample rate for a topic, in millihertz.
func (c *Metrics) RecordFrequency(topic string, millihertz float64) {
	c.Dfreq.WithLabelValues(topic).Set(millihertz)
}

// RecordBusStatus updates the registration bus connection status.
func (c *Metrics) RecordBusStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.BusConnected.Set(value)
}

// RecordBusReconnect increments the registration bus reconnection counter.
func (c *Metrics) RecordBusReconnect() {
	c.BusReconnects.Inc()
}

// RecordBusRTT updates the registration bus round-trip time.
func (c *Metrics) RecordBusRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordCircuitBreakerState updates the registration bus circuit breaker status.
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.CircuitBreaker.Set(float64(state))
}
