package subscriber

import (
	"time"

	"github.com/ecal-sub/ecal/callback"
	"github.com/ecal-sub/ecal/clocktracker"
	"github.com/ecal-sub/ecal/connection"
	"github.com/ecal-sub/ecal/layer"
)

// onSample is the DeliverFunc every enabled layer binder is started with.
// It runs on a transport goroutine holding no subscriber lock on entry,
// and implements the nine-step ingress pipeline: created check, layer
// gating, active latching, dedup, filter-id gating, clock classification,
// accept bookkeeping, and delivery. Every rejection path is silent: a
// cross-layer duplicate returns its payload size without delivery, every
// other rejection returns 0; there is no error return by design (§7).
func (s *Subscriber) onSample(sample layer.Sample) int {
	// Step 1: created check happens before any lock is taken, so a
	// sample arriving after Stop never blocks on a lock Stop itself
	// may be holding.
	if !s.created.Load() {
		return 0
	}

	s.cbs.LockReceive()
	defer s.cbs.UnlockReceive()

	if !s.created.Load() {
		return 0
	}

	// Step 2: layer gating.
	if !s.layerEnabled[sample.ArrivingLayer] {
		return 0
	}

	key := connection.Key{
		HostName: sample.PublisherHost,
		PID:      sample.PublisherPID,
		EntityID: sample.PublisherEntityID,
	}

	// Step 3: latch this layer active for the subscriber as a whole.
	// Unconditional: a sample can legitimately arrive before the
	// publisher's connected event, so this cannot depend on key already
	// being present in conns.
	s.layerActiveFlags[sample.ArrivingLayer].Store(true)

	// Steps 4-5: cross-layer duplicate check and push.
	if s.dedup.CheckAndAdd(sample.PayloadHash) {
		if s.metrics != nil {
			s.metrics.dedupHits.Inc()
		}
		return len(sample.PayloadBytes)
	}

	// Step 6: filter-id gating.
	s.filterMu.RLock()
	filterCount := len(s.filterIDs)
	_, inFilter := s.filterIDs[sample.FilterID]
	s.filterMu.RUnlock()
	if filterCount > 0 && !inFilter {
		if s.metrics != nil {
			s.metrics.filterMisses.Inc()
		}
		return 0
	}

	// Step 7: clock classification.
	outcome, gap := s.clocks.Classify(sample.PublisherEntityID, sample.SendClock, s.dropOutOfOrderMessages)

	now := time.Now()

	switch outcome {
	case clocktracker.RejectDuplicate, clocktracker.RejectReorder:
		if s.metrics != nil {
			s.metrics.samplesDropped.Inc()
		}
		return 0
	case clocktracker.AcceptWithWarn:
		s.logger.Warn("accepted out-of-order sample under keep policy",
			"publisher_entity_id", sample.PublisherEntityID, "send_clock", sample.SendClock)
	case clocktracker.AcceptWithGap:
		s.messageDrops.Add(gap)
		if s.metrics != nil {
			s.metrics.gapEvents.Inc()
		}
		pubState, _ := s.conns.Lookup(key)
		s.cbs.Fire(s.identity.TopicName, callback.ConnectionEvent{
			Kind:              callback.EventDropped,
			TimeUs:            now.UnixMicro(),
			Clock:             sample.SendClock,
			PublisherEntityID: sample.PublisherEntityID,
			PublisherTypeInfo: pubState.DataTypeInfo,
		})
	}

	// Step 8: accept bookkeeping.
	s.dclock.Add(1)
	s.freq.Tick(now)
	s.topicSize.Store(int64(len(sample.PayloadBytes)))
	if s.metrics != nil {
		s.metrics.samplesAccepted.Inc()
	}

	// Step 9: delivery, still holding the receive-callback lock.
	data := callback.ReceiveData{
		Buf:       sample.PayloadBytes,
		Size:      len(sample.PayloadBytes),
		FilterID:  sample.FilterID,
		TimeUs:    sample.SendTimeUs,
		SendClock: sample.SendClock,
	}
	if recv := s.cbs.ReceiveLocked(); recv != nil {
		pubState, _ := s.conns.Lookup(key)
		recv(s.identity, pubState.DataTypeInfo, data)
	} else {
		s.slot.Publish(sample.PayloadBytes, sample.SendTimeUs)
	}

	return len(sample.PayloadBytes)
}
