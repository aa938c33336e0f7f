package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"camwatch/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertImage(t *testing.T, repo *ImageRepository, filename, camera string, ts time.Time) int64 {
	t.Helper()

	id, err := repo.Insert(&model.Image{
		Filename:  filename,
		Camera:    camera,
		Timestamp: ts,
		FilePath:  "/outputs/" + filename,
		FileSize:  1024,
	})
	if err != nil {
		t.Fatalf("Insert(%s) = %v", filename, err)
	}
	return id
}

func TestNew_UnusablePathFails(t *testing.T) {
	// A directory is not a valid database file; migration fails and New
	// must surface the error instead of handing back a broken handle.
	if _, err := New(t.TempDir()); err == nil {
		t.Fatal("New() on a directory path succeeded, want error")
	}
}

func TestImageRepository_InsertAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewImageRepository(db)

	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	id := insertImage(t, repo, "frame_001.jpg", "ipcam", ts)
	if id == 0 {
		t.Fatal("Insert() returned id 0")
	}

	img, err := repo.GetByFilename("frame_001.jpg")
	if err != nil {
		t.Fatalf("GetByFilename() = %v", err)
	}
	if img == nil {
		t.Fatal("GetByFilename() = nil for existing image")
	}
	if img.Camera != "ipcam" || img.FileSize != 1024 {
		t.Errorf("Image = %+v", img)
	}

	missing, err := repo.GetByFilename("nope.jpg")
	if err != nil {
		t.Fatalf("GetByFilename(missing) = %v", err)
	}
	if missing != nil {
		t.Error("GetByFilename(missing) != nil")
	}
}

func TestImageRepository_FilterByLabel(t *testing.T) {
	db := testDB(t)
	images := NewImageRepository(db)
	detections := NewDetectionRepository(db)

	now := time.Now()
	personID := insertImage(t, images, "person.jpg", "ipcam", now)
	insertImage(t, images, "empty.jpg", "ipcam", now)

	if _, err := detections.Insert(&model.Detection{ImageID: personID, Label: "person", Confidence: 0.8}); err != nil {
		t.Fatalf("Insert detection = %v", err)
	}

	got, err := images.GetAll(&model.ImageFilter{Label: "person"})
	if err != nil {
		t.Fatalf("GetAll() = %v", err)
	}
	if len(got) != 1 || got[0].Filename != "person.jpg" {
		t.Errorf("GetAll(label=person) = %+v, want only person.jpg", got)
	}

	all, err := images.GetAll(&model.ImageFilter{})
	if err != nil {
		t.Fatalf("GetAll() = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("GetAll() = %d images, want 2", len(all))
	}
}

func TestImageRepository_FilterByTime(t *testing.T) {
	db := testDB(t)
	images := NewImageRepository(db)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	insertImage(t, images, "old.jpg", "ipcam", old)
	insertImage(t, images, "recent.jpg", "ipcam", recent)

	got, err := images.GetAll(&model.ImageFilter{Since: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("GetAll() = %v", err)
	}
	if len(got) != 1 || got[0].Filename != "recent.jpg" {
		t.Errorf("GetAll(since June) = %+v, want only recent.jpg", got)
	}

	count, err := images.Count(&model.ImageFilter{})
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestImageRepository_Delete(t *testing.T) {
	db := testDB(t)
	images := NewImageRepository(db)
	detections := NewDetectionRepository(db)

	id := insertImage(t, images, "gone.jpg", "ipcam", time.Now())
	if _, err := detections.Insert(&model.Detection{ImageID: id, Label: "dog"}); err != nil {
		t.Fatalf("Insert detection = %v", err)
	}

	if err := images.Delete(id); err != nil {
		t.Fatalf("Delete() = %v", err)
	}

	img, err := images.GetByFilename("gone.jpg")
	if err != nil {
		t.Fatalf("GetByFilename() = %v", err)
	}
	if img != nil {
		t.Error("Image still present after Delete()")
	}

	dets, err := detections.GetByImageID(id)
	if err != nil {
		t.Fatalf("GetByImageID() = %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("Detections still present after Delete(): %+v", dets)
	}
}

func TestDetectionRepository_BatchAndLabels(t *testing.T) {
	db := testDB(t)
	images := NewImageRepository(db)
	detections := NewDetectionRepository(db)

	id := insertImage(t, images, "multi.jpg", "ipcam", time.Now())

	batch := []model.Detection{
		{ImageID: id, Label: "person", X: 1, Y: 2, Width: 3, Height: 4, Confidence: 0.9},
		{ImageID: id, Label: "car", Confidence: 0.5},
		{ImageID: id, Label: "person", Confidence: 0.6},
	}
	if err := detections.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch() = %v", err)
	}

	dets, err := detections.GetByImageID(id)
	if err != nil {
		t.Fatalf("GetByImageID() = %v", err)
	}
	if len(dets) != 3 {
		t.Fatalf("GetByImageID() = %d detections, want 3", len(dets))
	}

	labels, err := detections.GetAllLabels()
	if err != nil {
		t.Fatalf("GetAllLabels() = %v", err)
	}
	want := []string{"car", "person"}
	if len(labels) != len(want) {
		t.Fatalf("GetAllLabels() = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("labels[%d] = %q, want %q", i, labels[i], want[i])
		}
	}
}
