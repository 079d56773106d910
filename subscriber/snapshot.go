package subscriber

import (
	"time"

	"github.com/ecal-sub/ecal/layer"
	"github.com/ecal-sub/ecal/registration"
)

// Snapshot builds the registration record for this subscriber's current
// state: identifier, topic metadata, per-layer advertisement, and the
// accepted-sample counters. CmdType is left unset; callers (Start/Stop)
// set it before publishing.
func (s *Subscriber) Snapshot() registration.Snapshot {
	snap := registration.Snapshot{
		ProcessID:     s.identity.ProcessID,
		HostName:      s.identity.HostName,
		EntityID:      s.identity.EntityID,
		HostGroupName: s.identity.HostGroupName,
		TopicName:     s.identity.TopicName,
		ProcessName:   s.identity.ProcessName,
		UnitName:      s.identity.UnitName,
		TopicSize:     int(s.topicSize.Load()),
		DClock:        s.dclock.Load(),
		DFreq:         s.freq.RateMillihertz(time.Now()),
		MessageDrops:  s.messageDrops.Load(),
	}

	if s.shareTopicType {
		snap.Encoding = s.dataType.Encoding
		snap.TypeName = s.dataType.TypeName
	}
	if s.shareTopicDescription {
		snap.DescriptorBlob = s.dataType.DescriptorBlob
	}

	s.attrMu.RLock()
	if len(s.attributes) > 0 {
		snap.Attributes = make(map[string]string, len(s.attributes))
		for k, v := range s.attributes {
			snap.Attributes[k] = v
		}
	}
	s.attrMu.RUnlock()

	for _, kind := range []layer.Kind{layer.UDP, layer.SHM, layer.TCP} {
		enabled := s.layerEnabled[kind]
		if !enabled {
			continue
		}
		snap.Layers = append(snap.Layers, registration.LayerRecord{
			Type:    kind,
			Version: 1,
			Enabled: true,
			Active:  s.layerActive(kind),
		})
	}

	return snap
}

// layerActive reports whether any sample has arrived on kind since this
// subscriber started (latched at ingress step 3, before the dedup, filter
// and clock checks), used only to populate the snapshot's per-layer
// Active flag.
func (s *Subscriber) layerActive(kind layer.Kind) bool {
	return s.layerActiveFlags[kind].Load()
}
