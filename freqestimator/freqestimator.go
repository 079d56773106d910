// Package freqestimator tracks the accepted-sample rate of a publisher
// over a rolling window, expressed in millihertz.
package freqestimator

import (
	"sync"
	"time"
)

// DefaultWindow is the rolling window over which frequency is averaged.
// The source hard-codes this at 3 seconds; it is kept as a default here
// rather than exposed on the public configuration surface, reachable
// only through WithWindow for tests.
const DefaultWindow = 3 * time.Second

// Estimator records monotonic timestamps of accepted samples and reports
// the instantaneous rate over its window, in millihertz. It holds its own
// lock so registration-snapshot readers calling Rate never block ingress
// calling Tick.
//
// Tick sweeps timestamps older than the window lazily, on every call,
// rather than running a background ticker goroutine, which fits "own
// lock, doesn't block ingress" more directly.
type Estimator struct {
	mu     sync.Mutex
	window time.Duration
	ticks  []time.Time
}

// Option configures an Estimator at construction.
type Option func(*Estimator)

// WithWindow overrides DefaultWindow. Only tests call it:
// FrequencyEstimator's window is "tunable but hard-coded" per the
// external interface, so production code never calls this.
func WithWindow(d time.Duration) Option {
	return func(e *Estimator) { e.window = d }
}

// New returns an Estimator using DefaultWindow unless overridden.
func New(opts ...Option) *Estimator {
	e := &Estimator{window: DefaultWindow}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick records now as an accepted-sample timestamp and sweeps entries
// that have fallen outside the window.
func (e *Estimator) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks = append(e.sweepLocked(now), now)
}

// RateMillihertz returns the current accepted-sample rate, in millihertz,
// averaged over the window as of now.
func (e *Estimator) RateMillihertz(now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks = e.sweepLocked(now)

	if len(e.ticks) < 2 {
		return 0
	}

	elapsed := now.Sub(e.ticks[0]).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(len(e.ticks)-1) / elapsed * 1000
}

func (e *Estimator) sweepLocked(now time.Time) []time.Time {
	cutoff := now.Add(-e.window)
	i := 0
	for i < len(e.ticks) && e.ticks[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return e.ticks
	}
	return append([]time.Time{}, e.ticks[i:]...)
}
