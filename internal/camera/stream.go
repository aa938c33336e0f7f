// Package camera connects to phone IP camera apps (IP Webcam style) that
// expose an MJPEG stream at /video and single JPEG frames at /photo.jpg.
package camera

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// ErrConnection marks camera connectivity failures: unreachable endpoint,
// dropped stream, unreadable frames.
var ErrConnection = errors.New("camera connection error")

// Mode identifies how frames are acquired from the camera.
type Mode string

const (
	// ModeVideo reads the MJPEG stream through a video capture handle.
	ModeVideo Mode = "video"
	// ModePhoto polls the single-frame photo endpoint. Fallback used when
	// the video stream cannot be opened.
	ModePhoto Mode = "photo"
)

// Info describes an open stream.
type Info struct {
	BaseURL   string
	StreamURL string
	PhotoURL  string
	Mode      Mode
	Width     int
	Height    int
	FPS       float64
}

// Stream yields decoded BGR frames from an IP camera.
type Stream struct {
	baseURL   string
	streamURL string
	photoURL  string

	client *http.Client
	cap    *gocv.VideoCapture
	mode   Mode

	width     int
	height    int
	fps       float64
	lastFrame time.Time
}

// Open connects to the camera at baseURL. It probes the base endpoint, tries
// the MJPEG video stream first and falls back to photo polling. Both failing
// yields an error wrapping ErrConnection.
func Open(baseURL string, timeout time.Duration) (*Stream, error) {
	base := NormalizeURL(baseURL)

	s := &Stream{
		baseURL:   base,
		streamURL: StreamURL(base),
		photoURL:  PhotoURL(base),
		client:    &http.Client{Timeout: timeout},
	}

	reachable, probeErr := s.probe()
	if !reachable {
		// Opening a video capture on a dead host can block far longer
		// than the configured timeout, so only the cheap photo check
		// gets a chance before giving up.
		if fallbackErr := s.setupPhotoMode(); fallbackErr != nil {
			return nil, fmt.Errorf("%w: %v, photo fallback: %v", ErrConnection, probeErr, fallbackErr)
		}
		return s, nil
	}

	// A non-200 probe is not fatal: some camera apps reject the root
	// path but still serve /video.
	if err := s.openVideoStream(); err != nil {
		if fallbackErr := s.setupPhotoMode(); fallbackErr != nil {
			return nil, fmt.Errorf("%w: video stream: %v, photo fallback: %v", ErrConnection, err, fallbackErr)
		}
	}

	return s, nil
}

// probe checks whether the camera base endpoint answers at all. The bool
// reports transport-level reachability; the error carries detail.
func (s *Stream) probe() (bool, error) {
	resp, err := s.client.Get(s.baseURL)
	if err != nil {
		return false, fmt.Errorf("%s unreachable: %v", s.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return true, fmt.Errorf("%s returned status %d", s.baseURL, resp.StatusCode)
	}
	return true, nil
}

// openVideoStream opens the MJPEG endpoint and verifies a frame can be read.
func (s *Stream) openVideoStream() error {
	capture, err := gocv.OpenVideoCapture(s.streamURL)
	if err != nil {
		return fmt.Errorf("could not open video stream from %s: %v", s.streamURL, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("could not open video stream from %s", s.streamURL)
	}

	probe := gocv.NewMat()
	defer probe.Close()
	if ok := capture.Read(&probe); !ok || probe.Empty() {
		capture.Close()
		return fmt.Errorf("could not read frame from video stream %s", s.streamURL)
	}

	s.cap = capture
	s.mode = ModeVideo
	s.width = probe.Cols()
	s.height = probe.Rows()
	s.fps = capture.Get(gocv.VideoCaptureFPS)
	s.lastFrame = time.Now()
	return nil
}

// setupPhotoMode verifies the photo endpoint responds and switches the
// stream to polling mode.
func (s *Stream) setupPhotoMode() error {
	resp, err := s.client.Get(s.photoURL)
	if err != nil {
		return fmt.Errorf("photo stream unavailable: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("photo stream returned status %d", resp.StatusCode)
	}

	s.mode = ModePhoto
	return nil
}

// ReadFrame reads the next frame into dst. The returned error wraps
// ErrConnection; callers decide how many failures in a row are tolerable.
func (s *Stream) ReadFrame(dst *gocv.Mat) error {
	switch s.mode {
	case ModeVideo:
		return s.readVideoFrame(dst)
	case ModePhoto:
		return s.readPhotoFrame(dst)
	default:
		return fmt.Errorf("%w: stream not connected", ErrConnection)
	}
}

func (s *Stream) readVideoFrame(dst *gocv.Mat) error {
	if s.cap == nil {
		return fmt.Errorf("%w: video capture closed", ErrConnection)
	}
	if ok := s.cap.Read(dst); !ok || dst.Empty() {
		return fmt.Errorf("%w: failed to read frame from %s", ErrConnection, s.streamURL)
	}
	s.lastFrame = time.Now()
	return nil
}

func (s *Stream) readPhotoFrame(dst *gocv.Mat) error {
	resp, err := s.client.Get(s.photoURL)
	if err != nil {
		return fmt.Errorf("%w: photo fetch failed: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: photo endpoint returned status %d", ErrConnection, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading photo body: %v", ErrConnection, err)
	}

	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("%w: decoding photo frame: %v", ErrConnection, err)
	}
	defer frame.Close()

	if frame.Empty() {
		return fmt.Errorf("%w: photo frame decoded empty", ErrConnection)
	}

	frame.CopyTo(dst)
	s.width = frame.Cols()
	s.height = frame.Rows()
	s.lastFrame = time.Now()
	return nil
}

// StreamType reports the acquisition mode for display overlays.
func (s *Stream) StreamType() string {
	return string(s.mode)
}

// Info returns metadata about the open stream.
func (s *Stream) Info() Info {
	return Info{
		BaseURL:   s.baseURL,
		StreamURL: s.streamURL,
		PhotoURL:  s.photoURL,
		Mode:      s.mode,
		Width:     s.width,
		Height:    s.height,
		FPS:       s.fps,
	}
}

// Close releases the capture handle. Safe to call in any mode.
func (s *Stream) Close() error {
	if s.cap != nil {
		err := s.cap.Close()
		s.cap = nil
		return err
	}
	return nil
}

// NormalizeURL strips trailing slashes from the camera base URL.
func NormalizeURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}

// StreamURL returns the MJPEG endpoint for a camera base URL.
func StreamURL(baseURL string) string {
	return NormalizeURL(baseURL) + "/video"
}

// PhotoURL returns the single-frame endpoint for a camera base URL.
func PhotoURL(baseURL string) string {
	return NormalizeURL(baseURL) + "/photo.jpg"
}
