package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAndAdd_FirstSeenIsNotDuplicate(t *testing.T) {
	q := New()
	assert.False(t, q.CheckAndAdd(0xABCD))
}

func TestCheckAndAdd_RepeatIsDuplicate(t *testing.T) {
	q := New()
	q.CheckAndAdd(42)
	assert.True(t, q.CheckAndAdd(42))
}

func TestCheckAndAdd_CrossLayerDuplicateAcrossCalls(t *testing.T) {
	q := New()
	require := assert.New(t)

	require.False(q.CheckAndAdd(7)) // arrives on udp
	require.True(q.CheckAndAdd(7))  // same hash arrives on shm
}

func TestCheckAndAdd_EvictsOldestPastWindow(t *testing.T) {
	q := New()

	for i := 0; i < Window; i++ {
		assert.False(t, q.CheckAndAdd(uint64(i)))
	}
	assert.Equal(t, Window, q.Len())

	// The (Window+1)th distinct hash evicts hash 0.
	assert.False(t, q.CheckAndAdd(uint64(Window)))
	assert.Equal(t, Window, q.Len())

	// Hash 0 fell out of the window, so it's accepted again.
	assert.False(t, q.CheckAndAdd(0))
}
