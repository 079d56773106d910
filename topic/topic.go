// Package topic defines the immutable identity a Subscriber carries for
// the lifetime of its subscription.
package topic

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Identity is minted once at subscriber construction and never mutated
// afterward.
type Identity struct {
	HostName      string
	ProcessID     int
	ProcessName   string
	UnitName      string
	HostGroupName string
	TopicName     string
	EntityID      string
}

var mint struct {
	mu       sync.Mutex
	lastNano int64
}

// Mint constructs a new Identity for topicName, deriving EntityID from a
// wall-clock nanosecond reading taken at construction. Two mints landing on the
// same clock reading (same process, sub-tick succession) fall back to a
// random uuid so EntityID stays process-unique without a shared counter
// that would need its own lock ordering against the subscriber locks.
func Mint(topicName, hostGroupName, unitName string) Identity {
	hostName, _ := os.Hostname()
	pid := os.Getpid()

	now := time.Now().UnixNano()
	mint.mu.Lock()
	collided := now == mint.lastNano
	mint.lastNano = now
	mint.mu.Unlock()

	entityID := fmt.Sprintf("%d-%d", pid, now)
	if collided {
		entityID = uuid.NewString()
	}

	return Identity{
		HostName:      hostName,
		ProcessID:     pid,
		ProcessName:   processName(),
		UnitName:      unitName,
		HostGroupName: hostGroupName,
		TopicName:     topicName,
		EntityID:      entityID,
	}
}

func processName() string {
	if len(os.Args) == 0 {
		return "unknown"
	}
	return os.Args[0]
}
