// Package component provides the shared lifecycle, discovery and logging
// primitives used by the subscriber orchestrator and its layer binders.
//
// Discoverable is the minimal introspection surface every long-lived piece
// exposes for health checks and flow metrics. LifecycleComponent layers a
// Create/Start/Stop state machine on top of it, following the same
// Initialize() error / Start(ctx) error / Stop(timeout) error shape used
// throughout this module for anything with a goroutine to manage.
//
// Logger wraps a *slog.Logger with an optional NATS fan-out so warnings
// raised deep in the ingress pipeline (e.g. the out-of-order "keep" path)
// are observable off-process without a separate monitoring aggregator.
package component
