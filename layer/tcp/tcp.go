// Package tcp implements layer.Binder over a loopback TCP connection.
//
// As with layer/udp, the framing here (length-prefixed JSON records) is
// this module's own invention, not eCAL's actual TCP layer protocol.
// Lifecycle follows the same teacher-grounded shutdown-channel +
// WaitGroup pattern as layer/udp.
package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

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

// Metrics holds Prometheus counters for one bound TCP binder.
type Metrics struct {
	samplesReceived prometheus.Counter
	acceptErrors    prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry, name string) *Metrics {
	if registry == nil {
		return nil
	}
	m := &Metrics{
		samplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "layer_tcp", Name: "samples_received_total",
			Help: "Total samples received on the simulated TCP layer.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecal", Subsystem: "layer_tcp", Name: "accept_errors_total",
			Help: "Total listener accept errors.",
		}),
	}
	registry.RegisterCounter(name, "samples_received", m.samplesReceived)
	registry.RegisterCounter(name, "accept_errors", m.acceptErrors)
	return m
}

// Binder implements layer.Binder over a loopback TCP listener, holding a
// single persistent self-connection that Inject writes through.
type Binder struct {
	logger      *slog.Logger
	retryConfig retry.Config
	metrics     *Metrics

	mu       sync.Mutex
	listener net.Listener
	injector net.Conn // dialed back to the listener, for Inject
	deliver  layer.DeliverFunc
	shutdown chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
}

// Deps configures a new Binder.
type Deps struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	Name            string
}

// New returns a Binder. It does not listen until Start.
func New(deps Deps) *Binder {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := deps.Name
	if name == "" {
		name = "layer-tcp"
	}
	return &Binder{
		logger:      logger.With("layer", "tcp"),
		retryConfig: retry.DefaultConfig(),
		metrics:     newMetrics(deps.MetricsRegistry, name),
	}
}

// Name reports the layer kind.
func (b *Binder) Name() layer.Kind { return layer.TCP }

// Start binds a loopback TCP listener, accepts its own self-connection
// for Inject, and begins delivering decoded samples from any accepted
// connection.
func (b *Binder) Start(ctx context.Context, _ layer.SubscriptionKey, deliver layer.DeliverFunc) error {
	b.mu.Lock()
	if b.running.Load() {
		b.mu.Unlock()
		return nil
	}
	b.deliver = deliver
	b.shutdown = make(chan struct{})
	b.mu.Unlock()

	bind := func() error {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.listener = l
		b.mu.Unlock()
		return nil
	}

	if err := retry.Do(ctx, b.retryConfig, bind); err != nil {
		return errors.WrapTransient(err, "layer-tcp", "Start", "listener bind")
	}

	b.running.Store(true)
	b.wg.Add(1)
	go b.acceptLoop()

	conn, err := net.Dial("tcp", b.listener.Addr().String())
	if err != nil {
		_ = b.Stop(time.Second)
		return errors.WrapTransient(err, "layer-tcp", "Start", "self-dial for Inject")
	}
	b.mu.Lock()
	b.injector = conn
	b.mu.Unlock()

	return nil
}

// Inject writes a fabricated sample to the binder's self-connection,
// simulating a remote publisher's framed message arriving on the wire.
func (b *Binder) Inject(s layer.Sample) error {
	b.mu.Lock()
	conn := b.injector
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
		return errors.WrapInvalid(err, "layer-tcp", "Inject", "encode sample")
	}

	_, err = conn.Write(append(payload, '\n'))
	return err
}

// ApplyParameter is forwarded verbatim; logged for visibility.
func (b *Binder) ApplyParameter(blob []byte) error {
	b.logger.Debug("applying layer parameter", "bytes", len(blob))
	return nil
}

// Stop closes the listener and self-connection and waits up to timeout
// for acceptLoop and any connection readers to exit.
func (b *Binder) Stop(timeout time.Duration) error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}

	b.mu.Lock()
	close(b.shutdown)
	if b.listener != nil {
		_ = b.listener.Close()
	}
	if b.injector != nil {
		_ = b.injector.Close()
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
			"layer-tcp", "Stop", "graceful shutdown")
	}
}

func (b *Binder) acceptLoop() {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		l := b.listener
		b.mu.Unlock()
		if l == nil {
			return
		}

		conn, err := l.Accept()
		if err != nil {
			select {
			case <-b.shutdown:
				return
			default:
				if b.metrics != nil {
					b.metrics.acceptErrors.Inc()
				}
				continue
			}
		}

		b.wg.Add(1)
		go b.readConn(conn)
	}
}

func (b *Binder) readConn(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 65536), 1<<20)

	for scanner.Scan() {
		select {
		case <-b.shutdown:
			return
		default:
		}

		var ws wireSample
		if err := json.Unmarshal(scanner.Bytes(), &ws); err != nil {
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
				ArrivingLayer:      layer.TCP,
			})
		}
	}
}
