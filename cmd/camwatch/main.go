package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"camwatch/internal/app"
	"camwatch/internal/config"
	"camwatch/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	flag.StringVar(&cfg.CameraURL, "ip", cfg.CameraURL, "camera base URL")
	flag.StringVar(&cfg.Camera, "camera", cfg.Camera, "camera name for filenames and records")
	flag.Float64Var(&cfg.Confidence, "conf", cfg.Confidence, "detection confidence threshold")
	flag.Float64Var(&cfg.NMSThreshold, "nms", cfg.NMSThreshold, "non-max suppression threshold")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "YOLO weights file")
	flag.StringVar(&cfg.ConfigPath, "model-config", cfg.ConfigPath, "YOLO network config file")
	flag.StringVar(&cfg.LabelsPath, "labels", cfg.LabelsPath, "class names file (default: built-in COCO)")
	flag.IntVar(&cfg.Width, "width", cfg.Width, "resize frames to this width (0 = keep)")
	flag.IntVar(&cfg.Height, "height", cfg.Height, "resize frames to this height (0 = keep)")
	flag.BoolVar(&cfg.Save, "save", cfg.Save, "record annotated video")
	flag.StringVar(&cfg.OutputVideo, "output", cfg.OutputVideo, "output video file path (default outputs/detection_output.mp4)")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory for snapshots and event frames")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "live view / metrics address (empty = disabled)")
	flag.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run without a display window")
	flag.BoolVar(&cfg.RecordEvents, "record-events", cfg.RecordEvents, "persist frames containing detections")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "camwatch: %v\n", err)
		return 2
	}

	log := logger.New(cfg.LogDirectory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, log).Run(ctx); err != nil {
		log.Error("%v", err)
		fmt.Fprintf(os.Stderr, "camwatch: %v\n", err)
		if errors.Is(err, config.ErrInvalid) {
			return 2
		}
		return 1
	}
	return 0
}
