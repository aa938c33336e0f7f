// Package storage writes annotated frames to disk and records their
// metadata in SQLite.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"camwatch/internal/detect"
	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/storage/sqlite"
)

// Store persists JPEG frames with unique timestamped filenames and keeps
// image/detection rows in the database.
type Store struct {
	dir        string
	camera     string
	images     *sqlite.ImageRepository
	detections *sqlite.DetectionRepository
	log        *logger.Logger

	mu  sync.Mutex
	seq uint64
}

// NewStore creates a Store rooted at dir. The directory is created on the
// first save, not here.
func NewStore(dir, camera string, images *sqlite.ImageRepository, detections *sqlite.DetectionRepository, log *logger.Logger) *Store {
	return &Store{
		dir:        dir,
		camera:     camera,
		images:     images,
		detections: detections,
		log:        log,
	}
}

// SaveSnapshot writes one frame to disk immediately and records it in the
// database. Each call produces exactly one new file with a unique name.
func (s *Store) SaveSnapshot(jpeg []byte, detections []detect.Detection) (string, error) {
	return s.save("detection_frame", jpeg, time.Now(), detections)
}

// saveEvent writes an automatically captured detection event frame.
func (s *Store) saveEvent(timestamp time.Time, jpeg []byte, detections []detect.Detection) (string, error) {
	return s.save("event", jpeg, timestamp, detections)
}

func (s *Store) save(prefix string, jpeg []byte, timestamp time.Time, detections []detect.Detection) (string, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// The sequence number keeps names unique within one second.
	filename := fmt.Sprintf("%s_%s_%04d.jpg", prefix, timestamp.Format("2006-01-02_15-04-05"), seq)
	fullPath := filepath.Join(s.dir, filename)

	if err := os.WriteFile(fullPath, jpeg, 0644); err != nil {
		return "", fmt.Errorf("failed to save image %s: %w", filename, err)
	}

	if err := s.record(filename, fullPath, timestamp, int64(len(jpeg)), detections); err != nil {
		// The file on disk is the primary artifact; losing the DB row
		// is logged but does not fail the save.
		s.log.Warning("Failed to record %s in database: %v", filename, err)
	}

	return fullPath, nil
}

func (s *Store) record(filename, fullPath string, timestamp time.Time, size int64, detections []detect.Detection) error {
	if s.images == nil {
		return nil
	}

	imageID, err := s.images.Insert(&model.Image{
		Filename:  filename,
		Camera:    s.camera,
		Timestamp: timestamp,
		FilePath:  fullPath,
		FileSize:  size,
	})
	if err != nil {
		return err
	}

	if len(detections) == 0 || s.detections == nil {
		return nil
	}

	rows := make([]model.Detection, 0, len(detections))
	for _, det := range detections {
		rows = append(rows, model.Detection{
			ImageID:    imageID,
			Label:      det.Label,
			X:          det.Box.Min.X,
			Y:          det.Box.Min.Y,
			Width:      det.Box.Dx(),
			Height:     det.Box.Dy(),
			Confidence: float64(det.Confidence),
		})
	}
	return s.detections.InsertBatch(rows)
}
