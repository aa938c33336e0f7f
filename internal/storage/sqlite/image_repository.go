package sqlite

import (
	"database/sql"
	"fmt"

	"camwatch/internal/model"
)

// ImageRepository stores image records in SQLite.
type ImageRepository struct {
	db *DB
}

// NewImageRepository creates a new SQLite image repository.
func NewImageRepository(db *DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Insert adds a new image record to the database.
func (r *ImageRepository) Insert(img *model.Image) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO images (filename, camera, timestamp, filepath, filesize)
		VALUES (?, ?, ?, ?, ?)
	`, img.Filename, img.Camera, img.Timestamp, img.FilePath, img.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert image: %w", err)
	}

	return result.LastInsertId()
}

// GetByFilename retrieves an image by its filename, nil if not found.
func (r *ImageRepository) GetByFilename(filename string) (*model.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var img model.Image
	err := r.db.Conn().QueryRow(`
		SELECT id, filename, camera, timestamp, filepath, filesize
		FROM images WHERE filename = ?
	`, filename).Scan(&img.ID, &img.Filename, &img.Camera, &img.Timestamp, &img.FilePath, &img.FileSize)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query image: %w", err)
	}

	return &img, nil
}

// GetAll retrieves images matching the filter, newest first.
func (r *ImageRepository) GetAll(filter *model.ImageFilter) ([]model.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT DISTINCT i.id, i.filename, i.camera, i.timestamp, i.filepath, i.filesize
		FROM images i
		LEFT JOIN detections d ON i.id = d.image_id
		WHERE 1=1
	`
	query, args := applyFilter(query, filter)
	query += " ORDER BY i.timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.ID, &img.Filename, &img.Camera, &img.Timestamp, &img.FilePath, &img.FileSize); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}

	return images, rows.Err()
}

// Count returns the number of images matching the filter.
func (r *ImageRepository) Count(filter *model.ImageFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT COUNT(DISTINCT i.id)
		FROM images i
		LEFT JOIN detections d ON i.id = d.image_id
		WHERE 1=1
	`
	query, args := applyFilter(query, filter)

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}

	return count, nil
}

// Delete removes an image record and its detections.
func (r *ImageRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE image_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	_, err := r.db.Conn().Exec(`DELETE FROM images WHERE id = ?`, id)
	return err
}

// applyFilter appends WHERE clauses for the non-zero filter fields.
func applyFilter(query string, filter *model.ImageFilter) (string, []interface{}) {
	args := []interface{}{}

	if filter.Camera != "" {
		query += " AND i.camera = ?"
		args = append(args, filter.Camera)
	}
	if filter.Label != "" {
		query += " AND d.label = ?"
		args = append(args, filter.Label)
	}
	if !filter.Since.IsZero() {
		query += " AND i.timestamp >= ?"
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query += " AND i.timestamp <= ?"
		args = append(args, filter.Until)
	}

	return query, args
}
