package subscriber

import (
	"time"

	"github.com/ecal-sub/ecal/component"
)

// Meta reports this subscriber's component identity, for operator
// tooling. Satisfies component.Discoverable.
func (s *Subscriber) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.identity.TopicName,
		Type:        "subscriber",
		Description: "eCAL subscriber data path for topic " + s.identity.TopicName,
		Version:     "1",
	}
}

// Health reports whether the subscriber is currently accepting samples.
// Satisfies component.Discoverable.
func (s *Subscriber) Health() component.HealthStatus {
	healthy := s.created.Load()
	var uptime time.Duration
	if healthy && !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt)
	}
	return component.HealthStatus{
		Healthy:   healthy,
		LastCheck: time.Now(),
		Uptime:    uptime,
	}
}

// DataFlow reports this subscriber's current accepted-sample rate.
// Satisfies component.Discoverable.
func (s *Subscriber) DataFlow() component.FlowMetrics {
	now := time.Now()
	return component.FlowMetrics{
		MessagesPerSecond: s.freq.RateMillihertz(now) / 1000,
		LastActivity:      now,
	}
}

var (
	_ component.Discoverable       = (*Subscriber)(nil)
	_ component.LifecycleComponent = (*Subscriber)(nil)
)
