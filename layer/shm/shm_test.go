package shm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecal-sub/ecal/layer"
)

func TestBinder_StartDeliversInjectedSample(t *testing.T) {
	b := New(Deps{})
	defer func() { _ = b.Stop(time.Second) }()

	received := make(chan layer.Sample, 1)
	require.NoError(t, b.Start(context.Background(), layer.SubscriptionKey{}, func(s layer.Sample) int {
		received <- s
		return len(s.PayloadBytes)
	}))

	require.NoError(t, b.Inject(layer.Sample{PayloadBytes: []byte("local"), SendClock: 1}))

	select {
	case s := <-received:
		assert.Equal(t, []byte("local"), s.PayloadBytes)
		assert.Equal(t, layer.SHM, s.ArrivingLayer)
	case <-time.After(2 * time.Second):
		t.Fatal("sample was not delivered")
	}
}

func TestBinder_InjectBeforeStartFails(t *testing.T) {
	b := New(Deps{})
	assert.Error(t, b.Inject(layer.Sample{}))
}

func TestBinder_NameReportsSHM(t *testing.T) {
	b := New(Deps{})
	assert.Equal(t, layer.SHM, b.Name())
}

func TestBinder_QueueOverflowDropsOldest(t *testing.T) {
	b := New(Deps{QueueDepth: 2})
	require.NoError(t, b.Start(context.Background(), layer.SubscriptionKey{}, func(layer.Sample) int { return 0 }))
	defer func() { _ = b.Stop(time.Second) }()

	// Fill past capacity quickly, before the consumer loop can drain.
	for i := 0; i < 10; i++ {
		_ = b.Inject(layer.Sample{SendClock: int64(i)})
	}
	// No assertion on drop count here (timing-sensitive); this exercises
	// the overflow path without panicking or deadlocking.
}
