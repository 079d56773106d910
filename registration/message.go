// Package registration adapts the subscriber's connection-table mutators
// and registration snapshots to an external message bus.
//
// The bus transport is NATS (github.com/nats-io/nats.go, via this
// module's natsclient.Client), but the wire format carried over it is
// this module's own — eCAL's actual discovery-broadcast protocol is out
// of scope per this document's §1 scope note.
package registration

import (
	"encoding/json"

	"github.com/ecal-sub/ecal/connection"
	"github.com/ecal-sub/ecal/datatype"
	"github.com/ecal-sub/ecal/layer"
)

// PublicationSubject is the default NATS subject RegistrationSource
// consumes and external publishers are expected to publish to.
const PublicationSubject = "ecal.registration.publication"

// SnapshotSubject is the default NATS subject RegistrationSink publishes
// subscriber registration snapshots to.
const SnapshotSubject = "ecal.registration.snapshot"

// PublicationSubjectFor returns the per-topic publication subject a
// process running one RegistrationSource per subscribed topic should
// subscribe to, so that one topic's publication traffic never queues
// behind another's worker pool.
func PublicationSubjectFor(topicName string) string {
	return PublicationSubject + "." + topicName
}

// MessageKind distinguishes the three registration inputs a
// PublicationMessage can carry over the bus.
type MessageKind string

const (
	ApplyPublication    MessageKind = "apply_publication"
	RemovePublication   MessageKind = "remove_publication"
	ApplyLayerParameter MessageKind = "apply_layer_parameter"
)

// PublicationMessage is the wire shape of an inbound registration-input
// event: a publication apply, its removal, or a layer parameter update.
// Only the fields relevant to Kind are populated.
type PublicationMessage struct {
	Kind        MessageKind                          `json:"kind"`
	Key         connection.Key                       `json:"key"`
	DataType    datatype.Information                 `json:"data_type,omitempty"`
	LayerStates map[layer.Kind]connection.LayerState  `json:"layer_states,omitempty"`
	Layer       layer.Kind                            `json:"layer,omitempty"`
	ParamBlob   []byte                                `json:"param_blob,omitempty"`
}

// Encode serializes m for publication.
func (m PublicationMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses data into a PublicationMessage.
func Decode(data []byte) (PublicationMessage, error) {
	var m PublicationMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// CmdType enumerates the two registration snapshot record kinds.
type CmdType string

const (
	RegisterSubscriber   CmdType = "register_subscriber"
	UnregisterSubscriber CmdType = "unregister_subscriber"
)

// LayerRecord describes one layer's advertised state in a snapshot.
type LayerRecord struct {
	Type    layer.Kind `json:"type"`
	Version int        `json:"version"`
	Enabled bool       `json:"enabled"`
	Active  bool       `json:"active"`
}

// Snapshot is the registration record a Subscriber emits on start, on
// stop, and on demand.
type Snapshot struct {
	CmdType       CmdType           `json:"cmd_type"`
	ProcessID     int               `json:"process_id"`
	HostName      string            `json:"host_name"`
	EntityID      string            `json:"entity_id"`
	HostGroupName string            `json:"host_group_name"`
	TopicName     string            `json:"topic_name"`
	Encoding      string            `json:"encoding,omitempty"`
	TypeName      string            `json:"type_name,omitempty"`
	DescriptorBlob []byte           `json:"descriptor_blob,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	TopicSize     int               `json:"topic_size"`
	Layers        []LayerRecord     `json:"layers"`
	ProcessName   string            `json:"process_name"`
	UnitName      string            `json:"unit_name"`
	DClock        int64             `json:"dclock"`
	DFreq         float64           `json:"dfreq"`
	MessageDrops  int64             `json:"message_drops"`
}

// Encode serializes s for publication.
func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses data into a Snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(data, &s)
	return s, err
}
