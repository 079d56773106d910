package subscriber

import (
	"time"

	"github.com/ecal-sub/ecal/callback"
	"github.com/ecal-sub/ecal/connection"
	"github.com/ecal-sub/ecal/registration"
)

// ApplyPublication applies a publication-info update for the publisher
// named in msg.Key, firing connected or update_connection as the table's
// second-touch-activates rule dictates. Satisfies registration.Applier.
func (s *Subscriber) ApplyPublication(msg registration.PublicationMessage) bool {
	if !s.created.Load() {
		return false
	}

	key := connection.Key{HostName: msg.Key.HostName, PID: msg.Key.PID, EntityID: msg.Key.EntityID}
	event := s.conns.ApplyPublication(key, msg.DataType, msg.LayerStates)
	if event == nil {
		return true
	}

	kind := callback.EventUpdateConnection
	if event.Kind == connection.Connected {
		kind = callback.EventConnected
	}
	s.cbs.Fire(s.identity.TopicName, callback.ConnectionEvent{
		Kind:              kind,
		TimeUs:            time.Now().UnixMicro(),
		PublisherEntityID: msg.Key.EntityID,
		PublisherTypeInfo: event.State.DataTypeInfo,
	})
	return true
}

// RemovePublication erases the publisher named in msg.Key from the
// connection table, firing disconnected iff this removal drops the
// active-publisher count to zero. Satisfies registration.Applier.
func (s *Subscriber) RemovePublication(msg registration.PublicationMessage) bool {
	if !s.created.Load() {
		return false
	}

	key := connection.Key{HostName: msg.Key.HostName, PID: msg.Key.PID, EntityID: msg.Key.EntityID}
	event := s.conns.RemovePublication(key)
	s.clocks.Forget(msg.Key.EntityID)
	if event == nil {
		return true
	}

	s.cbs.Fire(s.identity.TopicName, callback.ConnectionEvent{
		Kind:   callback.EventDisconnected,
		TimeUs: time.Now().UnixMicro(),
	})
	return true
}

// ApplyLayerParameter forwards msg.ParamBlob verbatim to the named
// layer's binder. Satisfies registration.Applier.
func (s *Subscriber) ApplyLayerParameter(msg registration.PublicationMessage) bool {
	if !s.created.Load() {
		return false
	}

	binder, ok := s.binders[msg.Layer]
	if !ok {
		return false
	}
	return binder.ApplyParameter(msg.ParamBlob) == nil
}
