package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecal-sub/ecal/errors"
	"github.com/ecal-sub/ecal/pkg/worker"
)

// Applier is the subset of Subscriber that RegistrationSource dispatches
// decoded bus messages to. A *subscriber.Subscriber satisfies this.
type Applier interface {
	ApplyPublication(msg PublicationMessage) bool
	RemovePublication(msg PublicationMessage) bool
	ApplyLayerParameter(msg PublicationMessage) bool
}

// natsSubscriber is the subset of *natsclient.Client RegistrationSource
// needs, kept narrow so tests can fake it without a live NATS server.
type natsSubscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// SourceDeps configures a RegistrationSource.
type SourceDeps struct {
	Logger  *slog.Logger
	Subject string // defaults to PublicationSubject
	Workers int    // worker pool size, defaults to 4
	Queue   int    // worker pool queue depth, defaults to 64
}

// RegistrationSource consumes inbound publication-info messages from the
// registration bus and dispatches each to an Applier through a bounded
// worker pool, so a slow or misbehaving Subscriber mutator never blocks
// the NATS client's own delivery goroutine.
type RegistrationSource struct {
	logger  *slog.Logger
	subject string
	pool    *worker.Pool[PublicationMessage]
}

// NewSource builds a RegistrationSource bound to applier. Start must be
// called to begin consuming.
func NewSource(applier Applier, deps SourceDeps) *RegistrationSource {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subject := deps.Subject
	if subject == "" {
		subject = PublicationSubject
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 4
	}
	queue := deps.Queue
	if queue <= 0 {
		queue = 64
	}

	processor := func(_ context.Context, msg PublicationMessage) error {
		var ok bool
		switch msg.Kind {
		case RemovePublication:
			ok = applier.RemovePublication(msg)
		case ApplyLayerParameter:
			ok = applier.ApplyLayerParameter(msg)
		default:
			ok = applier.ApplyPublication(msg)
		}
		if !ok {
			return errors.ErrNotCreated
		}
		return nil
	}

	return &RegistrationSource{
		logger:  logger.With("component", "registration-source"),
		subject: subject,
		pool:    worker.NewPool(workers, queue, processor),
	}
}

// Start subscribes to the registration bus and begins draining its
// worker pool. bus is typically a *natsclient.Client.
func (s *RegistrationSource) Start(ctx context.Context, bus natsSubscriber) error {
	if err := s.pool.Start(ctx); err != nil {
		return errors.WrapTransient(err, "registration-source", "Start", "worker pool")
	}
	if err := bus.Subscribe(ctx, s.subject, s.handle); err != nil {
		_ = s.pool.Stop(0)
		return errors.WrapTransient(err, "registration-source", "Start", "bus subscribe")
	}
	return nil
}

// Stop drains the worker pool, waiting up to timeout for in-flight
// dispatches to finish.
func (s *RegistrationSource) Stop(timeout time.Duration) error {
	return s.pool.Stop(timeout)
}

func (s *RegistrationSource) handle(_ context.Context, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		s.logger.Warn("discarding malformed registration message", "error", err)
		return
	}
	if err := s.pool.Submit(msg); err != nil {
		s.logger.Warn("registration worker pool rejected message", "error", err,
			"key", msg.Key, "kind", msg.Kind)
	}
}
