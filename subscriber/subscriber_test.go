package subscriber

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecal-sub/ecal/callback"
	"github.com/ecal-sub/ecal/connection"
	"github.com/ecal-sub/ecal/datatype"
	"github.com/ecal-sub/ecal/layer"
	"github.com/ecal-sub/ecal/registration"
	"github.com/ecal-sub/ecal/topic"
)

type fakeBinder struct {
	kind layer.Kind

	mu      sync.Mutex
	deliver layer.DeliverFunc
	started bool
	stopped bool
	params  [][]byte
}

func newFakeBinder(kind layer.Kind) *fakeBinder { return &fakeBinder{kind: kind} }

func (b *fakeBinder) Name() layer.Kind { return b.kind }

func (b *fakeBinder) Start(_ context.Context, _ layer.SubscriptionKey, deliver layer.DeliverFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = deliver
	b.started = true
	return nil
}

func (b *fakeBinder) ApplyParameter(blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params = append(b.params, blob)
	return nil
}

func (b *fakeBinder) Stop(time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	return nil
}

func (b *fakeBinder) inject(s layer.Sample) int {
	b.mu.Lock()
	deliver := b.deliver
	b.mu.Unlock()
	s.ArrivingLayer = b.kind
	return deliver(s)
}

func sample(eid, host string, pid int, clock int64, payload []byte, hash uint64) layer.Sample {
	return layer.Sample{
		PayloadBytes:      payload,
		PublisherEntityID: eid,
		PublisherHost:     host,
		PublisherPID:      pid,
		SendClock:         clock,
		SendTimeUs:        clock * 1000,
		PayloadHash:       hash,
	}
}

func newTestSubscriber(t *testing.T, dropOutOfOrder bool) (*Subscriber, *fakeBinder, *fakeBinder) {
	t.Helper()
	udp := newFakeBinder(layer.UDP)
	shm := newFakeBinder(layer.SHM)

	sub, err := New(Deps{
		TopicName:              "chatter",
		HostGroupName:          "grp",
		UnitName:               "unit",
		DataType:               datatype.Information{Encoding: "proto", TypeName: "Foo"},
		LayerEnabled:           map[layer.Kind]bool{layer.UDP: true, layer.SHM: true},
		Binders:                map[layer.Kind]layer.Binder{layer.UDP: udp, layer.SHM: shm},
		DropOutOfOrderMessages: dropOutOfOrder,
	})
	require.NoError(t, err)
	require.NoError(t, sub.Initialize())
	require.NoError(t, sub.Start(context.Background()))
	return sub, udp, shm
}

func applyPub(t *testing.T, sub *Subscriber, host string, pid int, eid string) {
	t.Helper()
	ok := sub.ApplyPublication(registration.PublicationMessage{
		Key:      connection.Key{HostName: host, PID: pid, EntityID: eid},
		DataType: datatype.Information{Encoding: "proto", TypeName: "Foo"},
	})
	require.True(t, ok)
}

func removePub(t *testing.T, sub *Subscriber, host string, pid int, eid string) {
	t.Helper()
	ok := sub.RemovePublication(registration.PublicationMessage{
		Key: connection.Key{HostName: host, PID: pid, EntityID: eid},
	})
	require.True(t, ok)
}

func TestSubscriber_S1_InOrderDelivery(t *testing.T) {
	sub, udp, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()

	var connectedCount, updateCount int
	sub.RegisterEventCallback(callback.EventConnected, func(string, callback.ConnectionEvent) { connectedCount++ })
	sub.RegisterEventCallback(callback.EventUpdateConnection, func(string, callback.ConnectionEvent) { updateCount++ })

	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")
	assert.Equal(t, 1, connectedCount)
	assert.Equal(t, 0, updateCount)

	var received [][]byte
	sub.RegisterReceiveCallback(func(_ topic.Identity, _ datatype.Information, data callback.ReceiveData) {
		received = append(received, data.Buf)
	})

	udp.inject(sample("p1", "h", 1, 1, []byte("a"), 1))
	udp.inject(sample("p1", "h", 1, 2, []byte("b"), 2))
	udp.inject(sample("p1", "h", 1, 3, []byte("c"), 3))

	require.Len(t, received, 3)
	assert.Equal(t, []byte("a"), received[0])
	assert.Equal(t, []byte("b"), received[1])
	assert.Equal(t, []byte("c"), received[2])
	assert.Equal(t, int64(0), sub.messageDrops.Load())
	assert.Equal(t, int64(3), sub.dclock.Load())
}

func TestSubscriber_S2_GapDetection(t *testing.T) {
	sub, udp, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")

	var received [][]byte
	sub.RegisterReceiveCallback(func(_ topic.Identity, _ datatype.Information, data callback.ReceiveData) {
		received = append(received, data.Buf)
	})

	var dropped []callback.ConnectionEvent
	sub.RegisterEventCallback(callback.EventDropped, func(_ string, e callback.ConnectionEvent) {
		dropped = append(dropped, e)
	})

	udp.inject(sample("p1", "h", 1, 1, []byte("a"), 1))
	udp.inject(sample("p1", "h", 1, 2, []byte("b"), 2))
	udp.inject(sample("p1", "h", 1, 3, []byte("c"), 3))
	udp.inject(sample("p1", "h", 1, 7, []byte("g"), 7))

	require.Len(t, dropped, 1)
	assert.Equal(t, int64(7), dropped[0].Clock)
	assert.Equal(t, int64(3), sub.messageDrops.Load())
	require.Len(t, received, 4)
	assert.Equal(t, []byte("g"), received[3])
}

func TestSubscriber_S3_CrossLayerDuplicate(t *testing.T) {
	sub, udp, shm := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")

	var received [][]byte
	sub.RegisterReceiveCallback(func(_ topic.Identity, _ datatype.Information, data callback.ReceiveData) {
		received = append(received, data.Buf)
	})

	udp.inject(sample("p1", "h", 1, 1, []byte("a"), 42))
	shm.inject(sample("p1", "h", 1, 2, []byte("a-dup"), 42))

	require.Len(t, received, 1)
	assert.Equal(t, int64(1), sub.dclock.Load())
}

func TestSubscriber_S4_OutOfOrderDropPolicy(t *testing.T) {
	sub, udp, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")

	var received [][]byte
	sub.RegisterReceiveCallback(func(_ topic.Identity, _ datatype.Information, data callback.ReceiveData) {
		received = append(received, data.Buf)
	})

	udp.inject(sample("p1", "h", 1, 5, []byte("five"), 5))
	udp.inject(sample("p1", "h", 1, 4, []byte("four"), 4))

	require.Len(t, received, 1)
	last, ok := sub.clocks.LastAccepted("p1")
	require.True(t, ok)
	assert.Equal(t, int64(5), last)
}

func TestSubscriber_S4_OutOfOrderKeepPolicy(t *testing.T) {
	sub, udp, _ := newTestSubscriber(t, false)
	defer func() { _ = sub.Stop(time.Second) }()
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")

	var received [][]byte
	sub.RegisterReceiveCallback(func(_ topic.Identity, _ datatype.Information, data callback.ReceiveData) {
		received = append(received, data.Buf)
	})

	udp.inject(sample("p1", "h", 1, 5, []byte("five"), 5))
	udp.inject(sample("p1", "h", 1, 4, []byte("four"), 4))

	require.Len(t, received, 2)
	last, ok := sub.clocks.LastAccepted("p1")
	require.True(t, ok)
	assert.Equal(t, int64(5), last)
}

func TestSubscriber_S5_DisconnectTransition(t *testing.T) {
	sub, _, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()

	var disconnects int
	sub.RegisterEventCallback(callback.EventDisconnected, func(string, callback.ConnectionEvent) { disconnects++ })

	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 2, "p2")
	applyPub(t, sub, "h", 2, "p2")

	removePub(t, sub, "h", 1, "p1")
	assert.Equal(t, 0, disconnects)

	removePub(t, sub, "h", 2, "p2")
	assert.Equal(t, 1, disconnects)
}

func TestSubscriber_S6_BlockingRead(t *testing.T) {
	sub, udp, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")

	go func() {
		time.Sleep(50 * time.Millisecond)
		udp.inject(sample("p1", "h", 1, 1, []byte("x"), 1))
	}()

	buf, _, ok := sub.Read(context.Background(), 500*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), buf)

	_, _, ok = sub.Read(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)
}

func TestSubscriber_S7_RegistrationBusRoundTrip(t *testing.T) {
	sub, _, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()

	src := registration.NewSource(sub, registration.SourceDeps{})
	bus := &fakeRegistrationBus{}
	require.NoError(t, src.Start(context.Background(), bus))
	defer func() { _ = src.Stop(time.Second) }()

	var connected int
	sub.RegisterEventCallback(callback.EventConnected, func(string, callback.ConnectionEvent) { connected++ })

	msg := registration.PublicationMessage{
		Key:      connection.Key{HostName: "h", PID: 1, EntityID: "p1"},
		DataType: datatype.Information{Encoding: "proto", TypeName: "Foo"},
	}
	data, err := msg.Encode()
	require.NoError(t, err)

	bus.deliver(data)
	bus.deliver(data)

	require.Eventually(t, func() bool {
		_, ok := sub.conns.Lookup(connection.Key{HostName: "h", PID: 1, EntityID: "p1"})
		return ok
	}, time.Second, 5*time.Millisecond)

	state, ok := sub.conns.Lookup(connection.Key{HostName: "h", PID: 1, EntityID: "p1"})
	require.True(t, ok)
	assert.True(t, state.Active)
}

type fakeRegistrationBus struct {
	mu      sync.Mutex
	handler func(context.Context, []byte)
}

func (f *fakeRegistrationBus) Subscribe(_ context.Context, _ string, handler func(context.Context, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeRegistrationBus) deliver(data []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(context.Background(), data)
}

func TestSubscriber_P6_NoCallbacksAfterStop(t *testing.T) {
	sub, udp, _ := newTestSubscriber(t, true)
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")

	var received int
	sub.RegisterReceiveCallback(func(topic.Identity, datatype.Information, callback.ReceiveData) { received++ })

	require.NoError(t, sub.Stop(time.Second))

	udp.inject(sample("p1", "h", 1, 1, []byte("x"), 1))
	assert.Equal(t, 0, received)
}

func TestSubscriber_P7_ReadTimeoutZeroNeverBlocks(t *testing.T) {
	sub, _, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()

	start := time.Now()
	_, _, ok := sub.Read(context.Background(), 0)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestSubscriber_R2_ApplyPublicationIdempotent(t *testing.T) {
	sub, _, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()

	var connected, updated int
	sub.RegisterEventCallback(callback.EventConnected, func(string, callback.ConnectionEvent) { connected++ })
	sub.RegisterEventCallback(callback.EventUpdateConnection, func(string, callback.ConnectionEvent) { updated++ })

	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")

	assert.Equal(t, 1, connected)
	assert.Equal(t, 2, updated)
}

func TestSubscriber_MutatorsFailAfterStop(t *testing.T) {
	sub, _, _ := newTestSubscriber(t, true)
	require.NoError(t, sub.Stop(time.Second))

	assert.False(t, sub.SetFilterIDs([]int64{1}))
	assert.False(t, sub.SetAttribute("k", "v"))
	assert.False(t, sub.RegisterReceiveCallback(nil))
	assert.False(t, sub.ApplyPublication(registration.PublicationMessage{}))
}

func TestSubscriber_FilterIDs(t *testing.T) {
	sub, udp, _ := newTestSubscriber(t, true)
	defer func() { _ = sub.Stop(time.Second) }()
	applyPub(t, sub, "h", 1, "p1")
	applyPub(t, sub, "h", 1, "p1")

	sub.SetFilterIDs([]int64{9})

	var received int
	sub.RegisterReceiveCallback(func(topic.Identity, datatype.Information, callback.ReceiveData) { received++ })

	s := sample("p1", "h", 1, 1, []byte("x"), 1)
	s.FilterID = 1
	udp.inject(s)
	assert.Equal(t, 0, received)

	s2 := sample("p1", "h", 1, 2, []byte("y"), 2)
	s2.FilterID = 9
	udp.inject(s2)
	assert.Equal(t, 1, received)
}

func TestSubscriber_SnapshotReflectsSettings(t *testing.T) {
	udp := newFakeBinder(layer.UDP)
	sub, err := New(Deps{
		TopicName:             "chatter",
		DataType:              datatype.Information{Encoding: "proto", TypeName: "Foo", DescriptorBlob: []byte("desc")},
		LayerEnabled:          map[layer.Kind]bool{layer.UDP: true},
		Binders:               map[layer.Kind]layer.Binder{layer.UDP: udp},
		ShareTopicType:        true,
		ShareTopicDescription: true,
	})
	require.NoError(t, err)
	require.NoError(t, sub.Initialize())
	require.NoError(t, sub.Start(context.Background()))
	defer func() { _ = sub.Stop(time.Second) }()

	sub.SetAttribute("env", "prod")

	snap := sub.Snapshot()
	assert.Equal(t, "proto", snap.Encoding)
	assert.Equal(t, "Foo", snap.TypeName)
	assert.Equal(t, []byte("desc"), snap.DescriptorBlob)
	assert.Equal(t, "prod", snap.Attributes["env"])
	require.Len(t, snap.Layers, 1)
	assert.Equal(t, layer.UDP, snap.Layers[0].Type)
}

func TestSubscriber_SnapshotLayerActiveSurvivesUnknownPublisher(t *testing.T) {
	udp := newFakeBinder(layer.UDP)
	sub, err := New(Deps{
		TopicName:    "chatter",
		LayerEnabled: map[layer.Kind]bool{layer.UDP: true},
		Binders:      map[layer.Kind]layer.Binder{layer.UDP: udp},
	})
	require.NoError(t, err)
	require.NoError(t, sub.Initialize())
	require.NoError(t, sub.Start(context.Background()))
	defer func() { _ = sub.Stop(time.Second) }()

	// The sample arrives before any ApplyPublication for "p1" — the
	// connected event can legitimately lag the first receive.
	udp.inject(sample("p1", "h", 1, 1, []byte("x"), 1))

	snap := sub.Snapshot()
	require.Len(t, snap.Layers, 1)
	assert.True(t, snap.Layers[0].Active, "layer must latch active even though the publisher is still unknown")
}
