package registration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	subject  string
	payloads [][]byte
	failWith error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.subject = subject
	f.payloads = append(f.payloads, data)
	return nil
}

func TestRegistrationSink_PublishRegisterSetsCmdType(t *testing.T) {
	bus := &fakePublisher{}
	sink := NewSink(bus, SinkDeps{})

	require.NoError(t, sink.PublishRegister(context.Background(), Snapshot{TopicName: "chatter"}))

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.payloads, 1)
	assert.Equal(t, SnapshotSubject, bus.subject)

	snap, err := DecodeSnapshot(bus.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, RegisterSubscriber, snap.CmdType)
	assert.Equal(t, "chatter", snap.TopicName)
}

func TestRegistrationSink_PublishUnregisterSetsCmdType(t *testing.T) {
	bus := &fakePublisher{}
	sink := NewSink(bus, SinkDeps{})

	require.NoError(t, sink.PublishUnregister(context.Background(), Snapshot{TopicName: "chatter"}))

	snap, err := DecodeSnapshot(bus.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, UnregisterSubscriber, snap.CmdType)
}

func TestRegistrationSink_UsesConfiguredSubject(t *testing.T) {
	bus := &fakePublisher{}
	sink := NewSink(bus, SinkDeps{Subject: "custom.snapshot"})

	require.NoError(t, sink.PublishRegister(context.Background(), Snapshot{}))
	assert.Equal(t, "custom.snapshot", bus.subject)
}

func TestRegistrationSink_PublishErrorIsWrapped(t *testing.T) {
	bus := &fakePublisher{failWith: errors.New("bus down")}
	sink := NewSink(bus, SinkDeps{})

	err := sink.PublishRegister(context.Background(), Snapshot{})
	require.Error(t, err)
}
