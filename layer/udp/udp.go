// Package udp implements layer.Binder over a loopback UDP socket.
//
// Per this module's scope, the UDP wire format here is this module's own
// invention (JSON-encoded layer.Sample records) rather than eCAL's actual
// UDP multicast framing — only the bind/readLoop/Stop lifecycle and the
// deliver-callback shape are real: a shutdown channel plus sync.WaitGroup
// for graceful stop, retry-backed socket binding, and Prometheus counters
// registered through metric.MetricsRegistry.
package udp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecal-sub/ecal/errors"
	"github.com/ecal-sub/ecal/layer"
	"github.com/ecal-sub/ecal/metric"
	"github.com/ecal-sub/ecal/pkg/retry"
)

type wireSample struct {
	PayloadBytes       []byte `json:"payload_bytes"`
	PublisherEntityID  string `json:"publisher_entity_id"`
	PublisherHost      string `json:"publisher_host"`
	PublisherPID       int    `json:"publisher_pid"`
	PublisherTopicName string `json:"publisher_topic_name"`
	SendClock          int64  `json:"send_clock"`
	SendTimeUs         int64  `json:"send_time_us"`
	FilterID           int64  `json:"filter_id"`
	PayloadHash        uint64 `json:"payload_hash"`
}

// Metrics holds Prometheus counters for one bound UDP binder.
type Metrics struct {
	samplesReceived prometheus.Counter
	samplesDropped  prometheus.Counter
	bindErrors      prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry, name string) *Metrics {
	if registry == nil {
		return nil
	}
	m := &Metrics{
		samplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "layer_udp", Name: "samples_received_total",
			Help: "Total samples received on the simulated UDP layer.",
		}),
		samplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "layer_udp", Name: "samples_dropped_total",
			Help: "Total malformed or rate-limited samples dropped before delivery.",
		}),
		bindErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "layer_udp", Name: "bind_errors_total",
			Help: "Total socket bind failures.",
		}),
	}
	registry.RegisterCounter(name, "samples_received", m.samplesReceived)
	registry.RegisterCounter(name, "samples_dropped", m.samplesDropped)
	registry.RegisterCounter(name, "bind_errors", m.bindErrors)
	return m
}

// Binder implements layer.Binder over a loopback UDP socket.
type Binder struct {
	logger      *slog.Logger
	retryConfig retry.Config
	limiter     *rate.Limiter // nil = unthrottled
	metrics     *Metrics

	mu       sync.Mutex
	conn     *net.UDPConn
	key      layer.SubscriptionKey
	deliver  layer.DeliverFunc
	shutdown chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
}

// Deps configures a new Binder.
type Deps struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	// Limiter caps the rate at which Inject accepts synthetic samples,
	// simulating the wire-rate throttling a real UDP layer would
	// experience under load. Nil disables throttling.
	Limiter *rate.Limiter
	Name    string
}

// New returns a Binder. It does not bind a socket until Start.
func New(deps Deps) *Binder {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := deps.Name
	if name == "" {
		name = "layer-udp"
	}
	return &Binder{
		logger:      logger.With("layer", "udp"),
		retryConfig: retry.DefaultConfig(),
		limiter:     deps.Limiter,
		metrics:     newMetrics(deps.MetricsRegistry, name),
	}
}

// Name reports the layer kind.
func (b *Binder) Name() layer.Kind { return layer.UDP }

// Start binds a loopback UDP socket and begins delivering decoded samples.
func (b *Binder) Start(ctx context.Context, key layer.SubscriptionKey, deliver layer.DeliverFunc) error {
	b.mu.Lock()
	if b.running.Load() {
		b.mu.Unlock()
		return nil
	}
	b.key = key
	b.deliver = deliver
	b.shutdown = make(chan struct{})
	b.mu.Unlock()

	bind := func() error {
		addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		return nil
	}

	if err := retry.Do(ctx, b.retryConfig, bind); err != nil {
		if b.metrics != nil {
			b.metrics.bindErrors.Inc()
		}
		return errors.WrapTransient(err, "layer-udp", "Start", "socket bind")
	}

	b.running.Store(true)
	b.wg.Add(1)
	go b.readLoop()
	return nil
}

// Addr returns the bound loopback address, for Inject by a peer or test.
func (b *Binder) Addr() *net.UDPAddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.LocalAddr().(*net.UDPAddr)
}

// Inject sends a fabricated sample to this binder's own loopback socket,
// simulating a remote publisher's packet arriving on the wire. Used by
// tests and the demo command — not part of the real eCAL wire protocol.
func (b *Binder) Inject(s layer.Sample) error {
	if b.limiter != nil && !b.limiter.Allow() {
		if b.metrics != nil {
			b.metrics.samplesDropped.Inc()
		}
		return fmt.Errorf("layer-udp: rate limit exceeded")
	}

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return errors.ErrNoConnection
	}

	payload, err := json.Marshal(wireSample{
		PayloadBytes:       s.PayloadBytes,
		PublisherEntityID:  s.PublisherEntityID,
		PublisherHost:      s.PublisherHost,
		PublisherPID:       s.PublisherPID,
		PublisherTopicName: s.PublisherTopicName,
		SendClock:          s.SendClock,
		SendTimeUs:         s.SendTimeUs,
		FilterID:           s.FilterID,
		PayloadHash:        s.PayloadHash,
	})
	if err != nil {
		return errors.WrapInvalid(err, "layer-udp", "Inject", "encode sample")
	}

	_, err = conn.WriteToUDP(payload, conn.LocalAddr().(*net.UDPAddr))
	return err
}

// ApplyParameter is forwarded verbatim; this simulated layer has nothing
// to apply it to besides logging it for visibility.
func (b *Binder) ApplyParameter(blob []byte) error {
	b.logger.Debug("applying layer parameter", "bytes", len(blob))
	return nil
}

// Stop closes the socket and waits up to timeout for readLoop to exit.
func (b *Binder) Stop(timeout time.Duration) error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}

	b.mu.Lock()
	close(b.shutdown)
	if b.conn != nil {
		_ = b.conn.Close()
	}
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
			"layer-udp", "Stop", "graceful shutdown")
	}
}

func (b *Binder) readLoop() {
	defer b.wg.Done()

	buf := make([]byte, 65536)
	for {
		select {
		case <-b.shutdown:
			return
		default:
		}

		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-b.shutdown:
				return
			default:
				continue
			}
		}

		var ws wireSample
		if err := json.Unmarshal(buf[:n], &ws); err != nil {
			if b.metrics != nil {
				b.metrics.samplesDropped.Inc()
			}
			continue
		}

		if b.metrics != nil {
			b.metrics.samplesReceived.Inc()
		}

		b.mu.Lock()
		deliver := b.deliver
		b.mu.Unlock()
		if deliver != nil {
			deliver(layer.Sample{
				PayloadBytes:       ws.PayloadBytes,
				PublisherEntityID:  ws.PublisherEntityID,
				PublisherHost:      ws.PublisherHost,
				PublisherPID:       ws.PublisherPID,
				PublisherTopicName: ws.PublisherTopicName,
				SendClock:          ws.SendClock,
				SendTimeUs:         ws.SendTimeUs,
				FilterID:           ws.FilterID,
				PayloadHash:        ws.PayloadHash,
				ArrivingLayer:      layer.UDP,
			})
		}
	}
}
