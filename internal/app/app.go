// Package app assembles the watcher from its parts and runs it.
package app

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"camwatch/internal/camera"
	"camwatch/internal/config"
	"camwatch/internal/detect"
	"camwatch/internal/logger"
	"camwatch/internal/metrics"
	"camwatch/internal/runloop"
	"camwatch/internal/storage"
	"camwatch/internal/storage/sqlite"
	"camwatch/internal/web"
)

// App owns the wiring between config, camera, detector and outputs.
type App struct {
	cfg *config.Config
	log *logger.Logger
	met *metrics.Metrics
}

// New creates the application. The config must already be validated.
func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		cfg: cfg,
		log: log,
		met: metrics.New(),
	}
}

// Run connects everything and drives the frame loop until it stops. The
// returned error wraps camera.ErrConnection or detect.ErrModel for the
// command layer to map onto exit codes.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg

	// Background collaborators stop when the loop exits, not only when an
	// external signal cancels the parent context.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		// Metadata is secondary to the live stream; run without it.
		a.log.Warning("Database unavailable, continuing without metadata: %v", err)
		db = nil
	}
	var images *sqlite.ImageRepository
	var detections *sqlite.DetectionRepository
	if db != nil {
		defer db.Close()
		images = sqlite.NewImageRepository(db)
		detections = sqlite.NewDetectionRepository(db)
	}
	store := storage.NewStore(cfg.OutputDir, cfg.Camera, images, detections, a.log)

	var sinks []runloop.FrameSink
	var recorder *storage.EventRecorder

	if cfg.RecordEvents {
		recorder = storage.NewEventRecorder(store, cfg.BufferLimit, cfg.EventMinGap, a.log)
		sinks = append(sinks, recorder)
		go a.flushEvents(ctx, recorder)
	}

	if cfg.ListenAddr != "" {
		hub := web.NewHub(cfg.Camera, a.log)
		var gallery *web.Gallery
		if db != nil {
			gallery = web.NewGallery(cfg.OutputDir, images, detections, a.log)
		}
		web.NewServer(cfg.ListenAddr, hub, a.met, gallery, a.log).Start(ctx)
		sinks = append(sinks, hub)
	}

	a.log.Info("Connecting to camera at %s", cfg.CameraURL)
	stream, err := camera.Open(cfg.CameraURL, cfg.ConnectTimeout)
	if err != nil {
		return err
	}
	defer stream.Close()
	info := stream.Info()
	a.log.Info("Connected: %s stream, %dx%d", info.Mode, info.Width, info.Height)

	detector, err := detect.New(cfg.ModelPath, cfg.ConfigPath, cfg.LabelsPath,
		cfg.Confidence, cfg.NMSThreshold)
	if err != nil {
		return err
	}
	defer detector.Close()

	var video *runloop.VideoWriter
	if cfg.Save {
		video, err = a.openVideoWriter(stream)
		if err != nil {
			return err
		}
		defer video.Close()
		a.log.Info("Recording annotated video to %s", cfg.OutputVideoPath())
	}

	var display runloop.Display
	if !cfg.Headless {
		window := runloop.NewWindow("camwatch - " + cfg.Camera)
		defer window.Close()
		display = window
	}

	a.printBanner(info.Mode)

	opts := runloop.Options{
		Source:      stream,
		Detector:    detector,
		Display:     display,
		Snapshots:   store,
		Sinks:       sinks,
		Metrics:     a.met,
		Log:         a.log,
		Width:       cfg.Width,
		Height:      cfg.Height,
		ReadRetries: cfg.ReadRetries,
		RetryDelay:  cfg.RetryDelay,
	}
	if video != nil {
		opts.Video = video
	}

	runErr := runloop.New(opts).Run(ctx)

	// A quit keypress ends the loop without cancelling ctx, and the flush
	// goroutine may never get scheduled before the process exits. Drain
	// the event buffer here so nothing accepted is lost.
	if recorder != nil {
		a.met.EventsRecorded.Add(uint64(recorder.Flush()))
	}

	return runErr
}

// flushEvents drains the event buffer periodically and counts what was
// persisted.
func (a *App) flushEvents(ctx context.Context, recorder *storage.EventRecorder) {
	interval := a.cfg.FlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.met.EventsRecorded.Add(uint64(recorder.Flush()))
			return
		case <-ticker.C:
			a.met.EventsRecorded.Add(uint64(recorder.Flush()))
		}
	}
}

// openVideoWriter determines the output frame size and opens the writer.
func (a *App) openVideoWriter(stream *camera.Stream) (*runloop.VideoWriter, error) {
	cfg := a.cfg

	width, height := cfg.Width, cfg.Height
	if width == 0 || height == 0 {
		info := stream.Info()
		width, height = info.Width, info.Height
	}
	if width == 0 || height == 0 {
		// Photo mode reports its size only after the first frame.
		probe := gocv.NewMat()
		defer probe.Close()
		if err := stream.ReadFrame(&probe); err != nil {
			return nil, err
		}
		width, height = probe.Cols(), probe.Rows()
	}

	return runloop.NewVideoWriter(cfg.OutputVideoPath(), float64(cfg.FPS), width, height)
}

func (a *App) printBanner(mode camera.Mode) {
	cfg := a.cfg
	fmt.Printf("🎥 camwatch object detection\n")
	fmt.Printf("📍 Camera: %s (%s stream)\n", cfg.CameraURL, mode)
	fmt.Printf("🤖 Model: %s (conf %.2f, nms %.2f)\n", cfg.ModelPath, cfg.Confidence, cfg.NMSThreshold)
	fmt.Printf("📁 Output: %s\n", cfg.OutputDir)
	if cfg.ListenAddr != "" {
		fmt.Printf("🌐 Live view: http://%s\n", cfg.ListenAddr)
	}
	if !cfg.Headless {
		fmt.Printf("⌨  Keys: q quit | s snapshot | +/- confidence\n")
	}
}
