package readslot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_ZeroTimeoutPollsWithoutBlocking(t *testing.T) {
	s := New()

	_, _, ok := s.Read(context.Background(), 0)
	assert.False(t, ok)

	s.Publish([]byte("x"), 123)
	buf, timeUs, ok := s.Read(context.Background(), 0)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), buf)
	assert.Equal(t, int64(123), timeUs)

	// Drained: filled must now be false.
	_, _, ok = s.Read(context.Background(), 0)
	assert.False(t, ok)
}

func TestRead_PositiveTimeoutWakesOnPublish(t *testing.T) {
	s := New()

	done := make(chan struct{})
	var buf []byte
	var ok bool
	go func() {
		buf, _, ok = s.Read(context.Background(), 500*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Publish([]byte("hello"), 1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read did not wake up on publish")
	}
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), buf)
}

func TestRead_PositiveTimeoutExpiresWithoutData(t *testing.T) {
	s := New()
	_, _, ok := s.Read(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)
}

func TestRead_NegativeTimeoutBlocksIndefinitely(t *testing.T) {
	s := New()

	done := make(chan struct{})
	go func() {
		_, _, _ = s.Read(context.Background(), -1)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Read returned before any publish")
	case <-time.After(100 * time.Millisecond):
	}

	s.Publish([]byte("late"), 7)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read never woke after publish")
	}
}

func TestRead_ContextCancellationActsLikeTimeout(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var ok bool
	go func() {
		_, _, ok = s.Read(ctx, -1)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read did not observe context cancellation")
	}
	assert.False(t, ok)
}

func TestPublish_OverwritesUndrainedValueSilently(t *testing.T) {
	s := New()
	s.Publish([]byte("first"), 1)
	s.Publish([]byte("second"), 2)

	buf, timeUs, ok := s.Read(context.Background(), 0)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), buf)
	assert.Equal(t, int64(2), timeUs)
}
