// Package clocktracker classifies each incoming sample against the last
// clock value accepted from its publisher, detecting duplicates, gaps and
// out-of-order arrivals.
package clocktracker

import "sync"

// Outcome is the result of classifying one sample's send_clock against a
// publisher's last accepted clock.
type Outcome int

const (
	// Accept: clock recorded, sample delivered, no event.
	Accept Outcome = iota
	// AcceptWithGap: clock recorded, sample delivered, dropped event
	// fired with the given gap count.
	AcceptWithGap
	// AcceptWithWarn: clock NOT recorded (deliberately — see the Tracker
	// type doc), sample delivered, caller must log a warning.
	AcceptWithWarn
	// RejectDuplicate: delta == 0, no state change, no delivery.
	RejectDuplicate
	// RejectReorder: delta < 0 under the drop policy, no state change,
	// no delivery.
	RejectReorder
)

// Tracker is a map keyed by publisher_entity_id. Entries are created on
// first sight and never removed except at subscriber stop.
//
// The out-of-order "keep" branch deliberately does not update the stored
// last_clock: accepting a late sample must not pull the cursor backward,
// or a subsequent in-order sample would be misclassified as another large
// gap. This is preserved exactly even though it looks like a bug at first
// read.
type Tracker struct {
	mu   sync.Mutex
	last map[string]int64
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{last: make(map[string]int64)}
}

// Classify applies the Δ-based decision table for publisherEntityID at
// sendClock, given the current out-of-order policy. gap is the Δ−1 count
// to attach to a dropped event on AcceptWithGap; it is zero otherwise.
func (t *Tracker) Classify(publisherEntityID string, sendClock int64, dropOutOfOrder bool) (outcome Outcome, gap int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, seen := t.last[publisherEntityID]
	if !seen {
		t.last[publisherEntityID] = sendClock
		return Accept, 0
	}

	delta := sendClock - last
	switch {
	case delta == 1:
		t.last[publisherEntityID] = sendClock
		return Accept, 0
	case delta == 0:
		return RejectDuplicate, 0
	case delta >= 2:
		t.last[publisherEntityID] = sendClock
		return AcceptWithGap, delta - 1
	default: // delta <= -1
		if dropOutOfOrder {
			return RejectReorder, 0
		}
		return AcceptWithWarn, 0
	}
}

// Forget removes publisherEntityID's tracked clock, called at subscriber
// stop to release per-publisher state.
func (t *Tracker) Forget(publisherEntityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, publisherEntityID)
}

// LastAccepted returns the last accepted clock for publisherEntityID, for
// tests and diagnostics.
func (t *Tracker) LastAccepted(publisherEntityID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.last[publisherEntityID]
	return v, ok
}
