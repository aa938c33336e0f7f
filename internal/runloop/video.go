package runloop

import (
	"fmt"

	"gocv.io/x/gocv"
)

// VideoWriter records annotated frames into an mp4 file.
type VideoWriter struct {
	writer *gocv.VideoWriter
}

// NewVideoWriter opens path for writing at the given frame rate and size.
func NewVideoWriter(path string, fps float64, width, height int) (*VideoWriter, error) {
	writer, err := gocv.VideoWriterFile(path, "mp4v", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer %s: %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("video writer %s did not open", path)
	}
	return &VideoWriter{writer: writer}, nil
}

// Write appends one frame to the video.
func (v *VideoWriter) Write(img gocv.Mat) error {
	return v.writer.Write(img)
}

// Close finalizes the video file.
func (v *VideoWriter) Close() error {
	return v.writer.Close()
}
