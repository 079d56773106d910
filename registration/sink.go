package registration

import (
	"context"
	"log/slog"

	"github.com/ecal-sub/ecal/errors"
)

// natsPublisher is the subset of *natsclient.Client RegistrationSink
// needs.
type natsPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SinkDeps configures a RegistrationSink.
type SinkDeps struct {
	Logger  *slog.Logger
	Subject string // defaults to SnapshotSubject
}

// RegistrationSink publishes a Subscriber's registration snapshot to the
// bus on start, on stop, and on demand.
type RegistrationSink struct {
	logger  *slog.Logger
	subject string
	bus     natsPublisher
}

// NewSink builds a RegistrationSink that publishes through bus, typically
// a *natsclient.Client.
func NewSink(bus natsPublisher, deps SinkDeps) *RegistrationSink {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subject := deps.Subject
	if subject == "" {
		subject = SnapshotSubject
	}
	return &RegistrationSink{
		logger:  logger.With("component", "registration-sink"),
		subject: subject,
		bus:     bus,
	}
}

// PublishRegister announces snap as a newly started subscriber.
func (s *RegistrationSink) PublishRegister(ctx context.Context, snap Snapshot) error {
	snap.CmdType = RegisterSubscriber
	return s.publish(ctx, snap)
}

// PublishUnregister announces snap's subscriber is stopping.
func (s *RegistrationSink) PublishUnregister(ctx context.Context, snap Snapshot) error {
	snap.CmdType = UnregisterSubscriber
	return s.publish(ctx, snap)
}

func (s *RegistrationSink) publish(ctx context.Context, snap Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return errors.WrapInvalid(err, "registration-sink", "publish", "encode snapshot")
	}
	if err := s.bus.Publish(ctx, s.subject, data); err != nil {
		s.logger.Warn("failed to publish registration snapshot", "error", err,
			"topic", snap.TopicName, "cmd_type", snap.CmdType)
		return errors.WrapTransient(err, "registration-sink", "publish", "bus publish")
	}
	return nil
}
