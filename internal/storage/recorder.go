package storage

import (
	"sync"
	"time"

	"camwatch/internal/detect"
	"camwatch/internal/logger"
)

// event is one buffered detection frame awaiting flush.
type event struct {
	timestamp  time.Time
	data       []byte
	detections []detect.Detection
}

// EventRecorder buffers frames that contain detections and flushes them to
// the Store periodically. A minimum gap between accepted events keeps a
// parked car from filling the disk.
type EventRecorder struct {
	store  *Store
	limit  int
	minGap time.Duration
	log    *logger.Logger

	mu       sync.Mutex
	pending  []event
	lastSeen time.Time
}

// NewEventRecorder creates a recorder flushing into store.
func NewEventRecorder(store *Store, limit int, minGap time.Duration, log *logger.Logger) *EventRecorder {
	return &EventRecorder{
		store:   store,
		limit:   limit,
		minGap:  minGap,
		log:     log,
		pending: make([]event, 0, limit),
	}
}

// Publish accepts an annotated frame from the run loop. Frames without
// detections, frames arriving before the minimum gap has passed, and
// frames beyond the buffer limit are dropped.
func (r *EventRecorder) Publish(jpeg []byte, result detect.Result) {
	if len(result.Detections) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if !r.lastSeen.IsZero() && now.Sub(r.lastSeen) < r.minGap {
		return
	}
	if len(r.pending) >= r.limit {
		r.log.Warning("Event buffer full (%d), dropping detection frame", r.limit)
		return
	}

	// The run loop reuses its encode buffer, so keep a private copy.
	data := make([]byte, len(jpeg))
	copy(data, jpeg)

	r.pending = append(r.pending, event{
		timestamp:  now,
		data:       data,
		detections: result.Detections,
	})
	r.lastSeen = now
}

// Flush writes all buffered events to the store and returns how many were
// persisted.
func (r *EventRecorder) Flush() int {
	r.mu.Lock()
	pending := r.pending
	r.pending = make([]event, 0, r.limit)
	r.mu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	saved := 0
	for _, ev := range pending {
		if _, err := r.store.saveEvent(ev.timestamp, ev.data, ev.detections); err != nil {
			r.log.Error("Failed to save event frame: %v", err)
			continue
		}
		saved++
	}

	if saved > 0 {
		r.log.Info("Flushed %d event frame(s) to %s", saved, r.store.dir)
	}
	return saved
}

// PendingCount reports how many events await the next flush.
func (r *EventRecorder) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
