package detect

import (
	"sync"
	"time"
)

// statsWindow bounds the number of inference times kept for averaging.
const statsWindow = 100

// Stats tracks rolling inference performance.
type Stats struct {
	mu              sync.Mutex
	inferenceTimes  []time.Duration
	totalDetections int
	totalFrames     int
}

// StatsSnapshot is a point-in-time copy of the statistics.
type StatsSnapshot struct {
	TotalFrames     int
	TotalDetections int
	AvgInference    time.Duration
	EstimatedFPS    float64
}

// NewStats creates an empty statistics tracker.
func NewStats() *Stats {
	return &Stats{
		inferenceTimes: make([]time.Duration, 0, statsWindow),
	}
}

// Record adds one frame's inference time and detection count.
func (s *Stats) Record(inference time.Duration, detections int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inferenceTimes = append(s.inferenceTimes, inference)
	if len(s.inferenceTimes) > statsWindow {
		s.inferenceTimes = s.inferenceTimes[1:]
	}
	s.totalDetections += detections
	s.totalFrames++
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum time.Duration
	for _, d := range s.inferenceTimes {
		sum += d
	}

	snap := StatsSnapshot{
		TotalFrames:     s.totalFrames,
		TotalDetections: s.totalDetections,
	}
	if len(s.inferenceTimes) > 0 {
		snap.AvgInference = sum / time.Duration(len(s.inferenceTimes))
	}
	if snap.AvgInference > 0 {
		snap.EstimatedFPS = float64(time.Second) / float64(snap.AvgInference)
	}

	return snap
}
