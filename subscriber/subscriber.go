// Package subscriber implements the eCAL subscriber data path: the
// orchestrator tying topic identity, connection tracking, clock
// classification, cross-layer deduplication, frequency estimation, the
// blocking read slot, and the pluggable layer binders into the single
// ingress pipeline described by on_sample.
package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecal-sub/ecal/callback"
	"github.com/ecal-sub/ecal/clocktracker"
	"github.com/ecal-sub/ecal/component"
	"github.com/ecal-sub/ecal/connection"
	"github.com/ecal-sub/ecal/datatype"
	"github.com/ecal-sub/ecal/dedup"
	"github.com/ecal-sub/ecal/errors"
	"github.com/ecal-sub/ecal/freqestimator"
	"github.com/ecal-sub/ecal/layer"
	"github.com/ecal-sub/ecal/metric"
	"github.com/ecal-sub/ecal/readslot"
	"github.com/ecal-sub/ecal/registration"
	"github.com/ecal-sub/ecal/topic"
)

// Sink is the subset of *registration.RegistrationSink a Subscriber
// needs, kept narrow so tests can run without a live bus.
type Sink interface {
	PublishRegister(ctx context.Context, snap registration.Snapshot) error
	PublishUnregister(ctx context.Context, snap registration.Snapshot) error
}

// Deps configures a new Subscriber. Binders must already be constructed
// (one per enabled layer) but not started; Subscriber calls Start/Stop on
// each as its own lifecycle progresses.
type Deps struct {
	TopicName     string
	HostGroupName string
	UnitName      string
	DataType      datatype.Information

	LayerEnabled map[layer.Kind]bool
	Binders      map[layer.Kind]layer.Binder

	DropOutOfOrderMessages bool
	ShareTopicType         bool
	ShareTopicDescription  bool

	Registration Sink // optional; nil disables snapshot emission

	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Subscriber is the per-topic orchestrator described by this module's
// component design. One instance exists per subscribed topic.
type Subscriber struct {
	identity topic.Identity
	dataType datatype.Information

	layerEnabled           map[layer.Kind]bool
	binders                map[layer.Kind]layer.Binder
	dropOutOfOrderMessages bool
	shareTopicType         bool
	shareTopicDescription  bool

	conns  *connection.Table
	clocks *clocktracker.Tracker
	dedup  *dedup.Queue
	freq   *freqestimator.Estimator
	slot   *readslot.Slot
	cbs    *callback.Registry

	filterMu  sync.RWMutex
	filterIDs map[int64]struct{}

	attrMu     sync.RWMutex
	attributes map[string]string

	dclock       atomic.Int64
	messageDrops atomic.Int64
	topicSize    atomic.Int64

	// layerActiveFlags latches true the first time a sample arrives on
	// that layer, independent of whether the originating publisher is
	// already registered in conns — the receive can precede the
	// connected event. Indexed by layer.Kind.
	layerActiveFlags [3]atomic.Bool

	created   atomic.Bool
	startedAt time.Time

	stateMu sync.Mutex
	state   component.State

	sink    Sink
	logger  *slog.Logger
	metrics *subscriberMetrics
}

// New constructs a Subscriber. The returned instance is in StateCreated;
// call Initialize then Start to begin receiving.
func New(deps Deps) (*Subscriber, error) {
	if deps.TopicName == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("topic name is required"), "subscriber", "New", "validate deps")
	}
	if len(deps.Binders) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("at least one layer binder is required"), "subscriber", "New", "validate deps")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	identity := topic.Mint(deps.TopicName, deps.HostGroupName, deps.UnitName)

	s := &Subscriber{
		identity:               identity,
		dataType:               deps.DataType,
		layerEnabled:           deps.LayerEnabled,
		binders:                deps.Binders,
		dropOutOfOrderMessages: deps.DropOutOfOrderMessages,
		shareTopicType:         deps.ShareTopicType,
		shareTopicDescription:  deps.ShareTopicDescription,
		conns:                  connection.New(),
		clocks:                 clocktracker.New(),
		dedup:                  dedup.New(),
		freq:                   freqestimator.New(),
		slot:                   readslot.New(),
		cbs:                    callback.New(),
		filterIDs:              make(map[int64]struct{}),
		attributes:             make(map[string]string),
		sink:                   deps.Registration,
		logger:                 logger.With("topic", deps.TopicName, "entity_id", identity.EntityID),
		metrics:                newSubscriberMetrics(deps.MetricsRegistry, "subscriber-"+deps.TopicName),
		state:                  component.StateCreated,
	}
	return s, nil
}

// Initialize validates the subscriber is ready to start. It performs no
// I/O; binders are not touched until Start.
func (s *Subscriber) Initialize() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != component.StateCreated {
		return errors.WrapInvalid(fmt.Errorf("subscriber already initialized"), "subscriber", "Initialize", "state check")
	}
	anyEnabled := false
	for _, enabled := range s.layerEnabled {
		if enabled {
			anyEnabled = true
			break
		}
	}
	if !anyEnabled {
		return errors.WrapInvalid(fmt.Errorf("no layer is enabled"), "subscriber", "Initialize", "validate layers")
	}
	s.state = component.StateInitialized
	return nil
}

// Start registers this subscriber's ingress callback with every enabled
// layer binder and emits an initial registration snapshot. Idempotent:
// calling Start twice is a no-op on the second call.
func (s *Subscriber) Start(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state == component.StateStarted {
		s.stateMu.Unlock()
		return nil
	}
	s.stateMu.Unlock()

	key := layer.SubscriptionKey{
		HostName:  s.identity.HostName,
		TopicName: s.identity.TopicName,
		EntityID:  s.identity.EntityID,
	}

	for kind, enabled := range s.layerEnabled {
		if !enabled {
			continue
		}
		binder, ok := s.binders[kind]
		if !ok {
			return errors.WrapInvalid(fmt.Errorf("no binder registered for layer %s", kind),
				"subscriber", "Start", "layer lookup")
		}
		if err := binder.Start(ctx, key, s.onSample); err != nil {
			return errors.WrapTransient(err, "subscriber", "Start", "start layer "+kind.String())
		}
	}

	s.startedAt = time.Now()
	s.created.Store(true)

	s.stateMu.Lock()
	s.state = component.StateStarted
	s.stateMu.Unlock()

	if s.sink != nil {
		if err := s.sink.PublishRegister(ctx, s.Snapshot()); err != nil {
			s.logger.Warn("failed to publish initial registration snapshot", "error", err)
		}
	}
	return nil
}

// Stop unregisters layer subscriptions, clears the callback registry and
// event map, emits an unregistration record, and flips created to false.
// Idempotent once created.
func (s *Subscriber) Stop(timeout time.Duration) error {
	if !s.created.CompareAndSwap(true, false) {
		return nil
	}

	snap := s.Snapshot()

	var stopErr error
	for kind, binder := range s.binders {
		if !s.layerEnabled[kind] {
			continue
		}
		if err := binder.Stop(timeout); err != nil && stopErr == nil {
			stopErr = err
		}
	}

	s.cbs.Clear()

	if s.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.sink.PublishUnregister(ctx, snap); err != nil {
			s.logger.Warn("failed to publish unregistration snapshot", "error", err)
		}
		cancel()
	}

	s.stateMu.Lock()
	s.state = component.StateStopped
	s.stateMu.Unlock()

	if stopErr != nil {
		return errors.WrapTransient(stopErr, "subscriber", "Stop", "stop layer binder")
	}
	return nil
}

// Read drains the read slot per readslot's timeout semantics: timeout<0
// waits indefinitely, timeout==0 polls without blocking, timeout>0 waits
// up to that long. ctx is an additional, idiomatic cancellation path.
func (s *Subscriber) Read(ctx context.Context, timeout time.Duration) (buf []byte, timeUs int64, ok bool) {
	return s.slot.Read(ctx, timeout)
}

// RegisterReceiveCallback installs fn as the subscriber's sole receive
// callback, replacing any existing one. Returns false if the subscriber
// has been stopped or never started.
func (s *Subscriber) RegisterReceiveCallback(fn callback.ReceiveFunc) bool {
	if !s.created.Load() {
		return false
	}
	s.cbs.SetReceive(fn)
	return true
}

// RegisterEventCallback installs fn for kind, replacing any existing
// callback for that kind.
func (s *Subscriber) RegisterEventCallback(kind callback.EventKind, fn callback.EventFunc) bool {
	if !s.created.Load() {
		return false
	}
	s.cbs.SetEvent(kind, fn)
	return true
}

// SetFilterIDs replaces the accepted filter-id set. An empty set disables
// filtering (every filter_id is accepted).
func (s *Subscriber) SetFilterIDs(ids []int64) bool {
	if !s.created.Load() {
		return false
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.filterMu.Lock()
	s.filterIDs = set
	s.filterMu.Unlock()
	return true
}

// SetAttribute records key=value for registration snapshots.
func (s *Subscriber) SetAttribute(key, value string) bool {
	if !s.created.Load() {
		return false
	}
	s.attrMu.Lock()
	s.attributes[key] = value
	s.attrMu.Unlock()
	return true
}

// ClearAttribute removes key from the attribute map.
func (s *Subscriber) ClearAttribute(key string) bool {
	if !s.created.Load() {
		return false
	}
	s.attrMu.Lock()
	delete(s.attributes, key)
	s.attrMu.Unlock()
	return true
}
