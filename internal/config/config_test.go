package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Load()
	cfg.CameraURL = "http://192.168.1.100:8080"
	return cfg
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Confidence != 0.5 {
		t.Errorf("Default confidence = %v, want 0.5", cfg.Confidence)
	}
	if cfg.NMSThreshold != 0.4 {
		t.Errorf("Default NMS threshold = %v, want 0.4", cfg.NMSThreshold)
	}
	if cfg.ReadRetries != 3 {
		t.Errorf("Default read retries = %d, want 3", cfg.ReadRetries)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Errorf("Default retry delay = %v, want 2s", cfg.RetryDelay)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("Default frame size = %dx%d, want 640x480", cfg.Width, cfg.Height)
	}
}

func TestConfig_EnvOverride(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("CAMERA_URL", "http://10.0.0.5:8080")
	t.Setenv("READ_RETRIES", "5")

	cfg := Load()

	if cfg.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", cfg.Confidence)
	}
	if cfg.CameraURL != "http://10.0.0.5:8080" {
		t.Errorf("CameraURL = %q, want http://10.0.0.5:8080", cfg.CameraURL)
	}
	if cfg.ReadRetries != 5 {
		t.Errorf("ReadRetries = %d, want 5", cfg.ReadRetries)
	}
}

func TestConfig_EnvInvalidValueFallsBack(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "not-a-number")

	cfg := Load()

	if cfg.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want default 0.5 for unparseable env", cfg.Confidence)
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_Thresholds(t *testing.T) {
	tests := []struct {
		name string
		conf float64
		nms  float64
		ok   bool
	}{
		{"both zero", 0, 0, true},
		{"both one", 1, 1, true},
		{"conf negative", -0.1, 0.4, false},
		{"conf above one", 1.1, 0.4, false},
		{"nms negative", 0.5, -0.01, false},
		{"nms above one", 0.5, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Confidence = tt.conf
			cfg.NMSThreshold = tt.nms

			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("Validate() = %v, want ErrInvalid", err)
				}
			}
		})
	}
}

func TestValidate_CameraURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{"http", "http://192.168.1.100:8080", true},
		{"https", "https://cam.local", true},
		{"no scheme", "192.168.1.100:8080", false},
		{"wrong scheme", "rtsp://192.168.1.100", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.CameraURL = tt.url

			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.url, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate(%q) = %v, want ErrInvalid", tt.url, err)
			}
		})
	}
}

func TestValidate_Retries(t *testing.T) {
	cfg := validConfig()
	cfg.ReadRetries = 0

	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Validate() = %v, want ErrInvalid for zero retries", err)
	}
}

func TestOutputVideoPath(t *testing.T) {
	cfg := validConfig()
	cfg.OutputDir = "outputs"
	cfg.OutputVideo = ""

	want := filepath.Join("outputs", "detection_output.mp4")
	if got := cfg.OutputVideoPath(); got != want {
		t.Errorf("OutputVideoPath() = %q, want %q", got, want)
	}
}

func TestOutputVideoPath_ExplicitPathWins(t *testing.T) {
	cfg := validConfig()
	cfg.OutputDir = "outputs"
	cfg.OutputVideo = "mywalk.mp4"

	// The video path is taken as given, not nested inside the output dir.
	if got := cfg.OutputVideoPath(); got != "mywalk.mp4" {
		t.Errorf("OutputVideoPath() = %q, want mywalk.mp4", got)
	}
}
