// Package shm implements layer.Binder over an in-process queue, standing
// in for eCAL's real shared-memory transport.
//
// Shared memory is local to a single host by construction, so there is no
// wire format to simulate here at all: Inject hands a layer.Sample
// directly to a consumer goroutine through a pkg/buffer ring buffer
// rather than going through any (de)serialization step.
package shm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecal-sub/ecal/errors"
	"github.com/ecal-sub/ecal/layer"
	"github.com/ecal-sub/ecal/metric"
	"github.com/ecal-sub/ecal/pkg/buffer"
)

// Metrics holds Prometheus counters for one bound SHM binder.
type Metrics struct {
	samplesDelivered prometheus.Counter
	samplesDropped   prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry, name string) *Metrics {
	if registry == nil {
		return nil
	}
	m := &Metrics{
		samplesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "layer_shm", Name: "samples_delivered_total",
			Help: "Total samples delivered through the simulated shared-memory queue.",
		}),
		samplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "layer_shm", Name: "samples_dropped_total",
			Help: "Total samples dropped because the queue was full.",
		}),
	}
	registry.RegisterCounter(name, "samples_delivered", m.samplesDelivered)
	registry.RegisterCounter(name, "samples_dropped", m.samplesDropped)
	return m
}

// Binder implements layer.Binder over an in-process buffer.Buffer.
type Binder struct {
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	queue    buffer.Buffer[layer.Sample]
	deliver  layer.DeliverFunc
	shutdown chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
}

// Deps configures a new Binder.
type Deps struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	QueueDepth      int
	Name            string
}

// New returns a Binder. It does not allocate its queue until Start.
func New(deps Deps) *Binder {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := deps.Name
	if name == "" {
		name = "layer-shm"
	}
	depth := deps.QueueDepth
	if depth <= 0 {
		depth = 256
	}
	b := &Binder{
		logger:  logger.With("layer", "shm"),
		metrics: newMetrics(deps.MetricsRegistry, name),
	}
	b.queue = mustQueue(depth, func(layer.Sample) {
		if b.metrics != nil {
			b.metrics.samplesDropped.Inc()
		}
	})
	return b
}

func mustQueue(depth int, onDrop buffer.DropCallback[layer.Sample]) buffer.Buffer[layer.Sample] {
	q, err := buffer.NewCircularBuffer[layer.Sample](depth,
		buffer.WithOverflowPolicy[layer.Sample](buffer.DropOldest),
		buffer.WithDropCallback[layer.Sample](onDrop))
	if err != nil {
		panic("layer/shm: unexpected queue construction failure: " + err.Error())
	}
	return q
}

// Name reports the layer kind.
func (b *Binder) Name() layer.Kind { return layer.SHM }

// Start begins the consumer loop draining the in-process queue.
func (b *Binder) Start(ctx context.Context, _ layer.SubscriptionKey, deliver layer.DeliverFunc) error {
	b.mu.Lock()
	if b.running.Load() {
		b.mu.Unlock()
		return nil
	}
	b.deliver = deliver
	b.shutdown = make(chan struct{})
	b.mu.Unlock()

	b.running.Store(true)
	b.wg.Add(1)
	go b.consumeLoop(ctx)
	return nil
}

// Inject places a fabricated sample on the queue, simulating a local
// publisher writing into shared memory. Used by tests and the demo
// command.
func (b *Binder) Inject(s layer.Sample) error {
	if !b.running.Load() {
		return errors.ErrNoConnection
	}
	s.ArrivingLayer = layer.SHM
	if err := b.queue.Write(s); err != nil {
		if b.metrics != nil {
			b.metrics.samplesDropped.Inc()
		}
		return err
	}
	return nil
}

// ApplyParameter is forwarded verbatim; logged for visibility since the
// simulated SHM layer has no per-connection state to tune.
func (b *Binder) ApplyParameter(blob []byte) error {
	b.logger.Debug("applying layer parameter", "bytes", len(blob))
	return nil
}

// Stop signals the consumer loop and waits up to timeout for it to drain.
func (b *Binder) Stop(timeout time.Duration) error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}

	b.mu.Lock()
	close(b.shutdown)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"layer-shm", "Stop", "graceful shutdown")
	}
}

func (b *Binder) consumeLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-b.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				s, ok := b.queue.Read()
				if !ok {
					break
				}
				if b.metrics != nil {
					b.metrics.samplesDelivered.Inc()
				}
				b.mu.Lock()
				deliver := b.deliver
				b.mu.Unlock()
				if deliver != nil {
					deliver(s)
				}
			}
		}
	}
}
