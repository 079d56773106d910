// Package ecal implements the subscriber side of eCAL's data path: the
// per-topic state machine that turns inbound samples from one or more
// transport layers into a deduplicated, clock-ordered, rate-tracked
// delivery stream, plus the ambient plumbing (registration bus,
// metrics, health, configuration) a standalone subscriber process needs
// to run.
//
// # Packages
//
// Domain model:
//   - topic: subscriber identity minting and collision avoidance
//   - datatype: encoding/type-name/descriptor tuple carried per topic
//   - connection: per-publisher state and the second-touch-activates
//     connection table
//   - clocktracker: per-publisher send-clock delta classification
//   - dedup: bounded cross-layer duplicate-hash suppression
//   - freqestimator: windowed accepted-sample rate estimation
//   - readslot: single-slot blocking rendezvous buffer for Read
//   - callback: receive/event callback registry and its lock ordering
//
// Transport:
//   - layer: the Binder contract every transport implements
//   - layer/udp, layer/shm, layer/tcp: one binder per simulated transport
//
// Orchestration:
//   - subscriber: the per-topic Subscriber tying the domain model and
//     transport binders into the ingress pipeline
//   - registration: the NATS-backed registration-bus adapters
//     (RegistrationSource consumes publication updates,
//     RegistrationSink announces subscriber snapshots)
//
// Ambient stack:
//   - config: layered JSON/YAML configuration with environment overrides
//   - natsclient: circuit-breaker-wrapped NATS connection management
//   - metric: Prometheus metrics registry and HTTP endpoint
//   - health: aggregate health-status tracking
//   - component: discoverable/lifecycle interfaces used for health and
//     metrics registration, never for data-path semantics
//   - errors: structured, severity-tagged error wrapping
//   - pkg/worker: bounded worker pools (registration dispatch)
//   - pkg/buffer: the ring buffer backing dedup's bounded FIFO
//   - pkg/retry: reconnect backoff for layer binders
//   - pkg/security, pkg/tlsutil: TLS configuration for the metrics
//     endpoint and registration bus
//
// # Entry point
//
// cmd/ecal-subd wires the above into a runnable process: one Subscriber
// per topic named on the command line, connected to whichever layers
// its configuration enables, announcing itself on the registration bus
// and exposing /metrics and /healthz.
package ecal
