package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid marks configuration errors. Callers match it with errors.Is
// and exit with a usage status instead of a runtime failure status.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all settings for the watcher. Immutable after Load/flag overrides.
type Config struct {
	CameraURL string // base IP camera URL, e.g. http://192.168.1.100:8080
	Camera    string // short camera name used in filenames and DB records

	Confidence   float64 // detection confidence threshold [0,1]
	NMSThreshold float64 // non-max suppression threshold [0,1]

	ModelPath  string // YOLO weights
	ConfigPath string // YOLO network config
	LabelsPath string // class names file; empty = built-in COCO list

	Width  int // resize target, 0 = keep stream size
	Height int
	FPS    int // frame rate written to the output video

	Save        bool   // write annotated video
	OutputDir   string // directory for snapshots and event frames
	OutputVideo string // output video path; empty = detection_output.mp4 in OutputDir

	DatabasePath string // SQLite file for image/detection metadata

	ListenAddr   string // optional web viewer/metrics address, "" = disabled
	Headless     bool   // no display window, stop via signal
	RecordEvents bool   // persist frames containing detections

	ConnectTimeout time.Duration // HTTP probe / stream open timeout
	ReadRetries    int           // transient read failures tolerated in a row
	RetryDelay     time.Duration // pause between read retries

	BufferLimit   int           // max buffered event frames before drops
	FlushInterval time.Duration // event buffer flush period
	EventMinGap   time.Duration // minimum gap between recorded events

	LogDirectory string
}

// Load builds the configuration from the environment, reading an optional
// .env file first. Flag overrides happen in the command packages.
func Load() *Config {
	// Missing .env is fine, env vars and defaults still apply.
	_ = godotenv.Load()

	return &Config{
		CameraURL: getEnv("CAMERA_URL", "http://192.168.1.100:8080"),
		Camera:    getEnv("CAMERA_NAME", "ipcam"),

		Confidence:   getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.5),
		NMSThreshold: getEnvAsFloat("NMS_THRESHOLD", 0.4),

		ModelPath:  getEnv("MODEL_PATH", filepath.Join(".", "models", "yolov4-tiny.weights")),
		ConfigPath: getEnv("MODEL_CONFIG", filepath.Join(".", "models", "yolov4-tiny.cfg")),
		LabelsPath: getEnv("MODEL_LABELS", ""),

		Width:  getEnvAsInt("FRAME_WIDTH", 640),
		Height: getEnvAsInt("FRAME_HEIGHT", 480),
		FPS:    getEnvAsInt("OUTPUT_FPS", 20),

		Save:        false,
		OutputDir:   getEnv("OUTPUT_DIR", "outputs"),
		OutputVideo: getEnv("OUTPUT_VIDEO", ""),

		DatabasePath: getEnv("DATABASE_PATH", filepath.Join("outputs", "detections.db")),

		ListenAddr:   getEnv("LISTEN_ADDR", ""),
		Headless:     false,
		RecordEvents: false,

		ConnectTimeout: getEnvAsDuration("CONNECT_TIMEOUT", 10*time.Second),
		ReadRetries:    getEnvAsInt("READ_RETRIES", 3),
		RetryDelay:     getEnvAsDuration("RETRY_DELAY", 2*time.Second),

		BufferLimit:   getEnvAsInt("BUFFER_LIMIT", 7),
		FlushInterval: getEnvAsDuration("FLUSH_INTERVAL", 30*time.Second),
		EventMinGap:   getEnvAsDuration("EVENT_MIN_GAP", 5*time.Second),

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// Validate checks the configuration for values the rest of the program
// assumes to hold.
func (c *Config) Validate() error {
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence threshold %.2f outside [0,1]", ErrInvalid, c.Confidence)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("%w: NMS threshold %.2f outside [0,1]", ErrInvalid, c.NMSThreshold)
	}

	u, err := url.Parse(c.CameraURL)
	if err != nil {
		return fmt.Errorf("%w: camera URL %q: %v", ErrInvalid, c.CameraURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: camera URL %q must use http or https", ErrInvalid, c.CameraURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: camera URL %q has no host", ErrInvalid, c.CameraURL)
	}

	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalid, c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: output FPS %d", ErrInvalid, c.FPS)
	}
	if c.ReadRetries < 1 {
		return fmt.Errorf("%w: read retries %d, need at least 1", ErrInvalid, c.ReadRetries)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect timeout %v", ErrInvalid, c.ConnectTimeout)
	}
	if c.BufferLimit < 1 {
		return fmt.Errorf("%w: buffer limit %d", ErrInvalid, c.BufferLimit)
	}

	return nil
}

// OutputVideoPath returns the output video file path. An explicit
// OutputVideo is used as given; otherwise the default filename goes into
// the output directory.
func (c *Config) OutputVideoPath() string {
	if c.OutputVideo != "" {
		return c.OutputVideo
	}
	return filepath.Join(c.OutputDir, "detection_output.mp4")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
