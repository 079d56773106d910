// Package layer defines the transport-agnostic contract a subscriber uses
// to start, parameterize and stop a data layer (udp, shm, tcp).
//
// Per this module's scope, concrete binders under layer/udp, layer/shm and
// layer/tcp simulate their transport's bytes-on-the-wire framing — only
// the lifecycle (Start/Stop, retry-backed bind, Prometheus counters)
// and the ingress-callback shape are real.
package layer

import (
	"context"
	"time"
)

// Kind identifies one of the three eCAL transport layers.
type Kind int

const (
	UDP Kind = iota
	SHM
	TCP
)

func (k Kind) String() string {
	switch k {
	case UDP:
		return "udp"
	case SHM:
		return "shm"
	case TCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// SubscriptionKey identifies the subscription a binder should register
// with its transport: the tuple a publisher's announcement is matched
// against.
type SubscriptionKey struct {
	HostName  string
	TopicName string
	EntityID  string
}

// Sample is the ingress-callback shape every binder delivers through,
// regardless of which transport produced it.
type Sample struct {
	PayloadBytes       []byte
	PublisherEntityID  string
	PublisherHost      string
	PublisherPID       int
	PublisherTopicName string
	SendClock          int64
	SendTimeUs         int64
	FilterID           int64
	PayloadHash        uint64
	ArrivingLayer      Kind
}

// DeliverFunc is the shape of Subscriber.OnSample, injected into a binder
// at Start so the ingress pipeline itself stays transport-agnostic.
type DeliverFunc func(Sample) int

// Binder owns one layer's subscription lifecycle.
type Binder interface {
	// Name reports which layer this binder implements.
	Name() Kind

	// Start spawns whatever goroutines the layer needs and begins
	// calling deliver for every sample it produces. Returns once the
	// layer is bound and ready, or with an error if binding failed.
	Start(ctx context.Context, key SubscriptionKey, deliver DeliverFunc) error

	// ApplyParameter forwards an opaque per-layer connection parameter
	// blob verbatim, as received from a registration update.
	ApplyParameter(blob []byte) error

	// Stop gracefully shuts the binder down, waiting up to timeout for
	// in-flight delivery goroutines to exit.
	Stop(timeout time.Duration) error
}
