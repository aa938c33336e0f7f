package web

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/storage/sqlite"
)

const defaultPageSize = 24

// Gallery serves the saved snapshot and event frames over HTTP.
type Gallery struct {
	dir        string
	images     *sqlite.ImageRepository
	detections *sqlite.DetectionRepository
	log        *logger.Logger
}

// NewGallery creates a gallery over the output directory and its metadata.
func NewGallery(dir string, images *sqlite.ImageRepository, detections *sqlite.DetectionRepository, log *logger.Logger) *Gallery {
	return &Gallery{
		dir:        dir,
		images:     images,
		detections: detections,
		log:        log,
	}
}

// galleryImage is one saved frame in the listing response.
type galleryImage struct {
	Filename  string    `json:"filename"`
	Camera    string    `json:"camera"`
	Timestamp time.Time `json:"timestamp"`
	FileSize  int64     `json:"fileSize"`
	Objects   []string  `json:"objects"`
}

// galleryResponse is the paginated listing payload.
type galleryResponse struct {
	Images     []galleryImage `json:"images"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// handleImages lists saved frames with filtering and pagination.
// Query parameters: camera, object, since, until (RFC 3339), page, limit.
func (g *Gallery) handleImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	limit := atoiDefault(q.Get("limit"), defaultPageSize)

	filter := &model.ImageFilter{
		Camera: q.Get("camera"),
		Label:  q.Get("object"),
		Since:  parseTime(q.Get("since")),
		Until:  parseTime(q.Get("until")),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	images, err := g.images.GetAll(filter)
	if err != nil {
		g.log.Error("Failed to list images: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	total, err := g.images.Count(filter)
	if err != nil {
		g.log.Error("Failed to count images: %v", err)
		total = len(images)
	}

	listing := make([]galleryImage, 0, len(images))
	for _, img := range images {
		objects := []string{}
		dets, err := g.detections.GetByImageID(img.ID)
		if err != nil {
			g.log.Error("Failed to load detections for %s: %v", img.Filename, err)
		}
		for _, det := range dets {
			objects = append(objects, det.Label)
		}
		listing = append(listing, galleryImage{
			Filename:  img.Filename,
			Camera:    img.Camera,
			Timestamp: img.Timestamp,
			FileSize:  img.FileSize,
			Objects:   objects,
		})
	}

	writeJSON(w, galleryResponse{
		Images:     listing,
		Total:      total,
		Page:       page,
		PageSize:   limit,
		TotalPages: (total + limit - 1) / limit,
	})
}

// handleLabels returns the distinct object labels seen so far, for filter
// dropdowns.
func (g *Gallery) handleLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := g.detections.GetAllLabels()
	if err != nil {
		g.log.Error("Failed to load labels: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, map[string][]string{"labels": labels})
}

// handleImage serves one saved frame by filename.
func (g *Gallery) handleImage(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name parameter is required", http.StatusBadRequest)
		return
	}
	// Strip any path components so requests stay inside the output dir.
	http.ServeFile(w, r, filepath.Join(g.dir, filepath.Base(name)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
