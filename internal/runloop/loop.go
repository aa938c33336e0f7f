// Package runloop drives the capture -> detect -> annotate -> output cycle
// and owns the watcher's lifecycle state.
package runloop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"camwatch/internal/annotate"
	"camwatch/internal/detect"
	"camwatch/internal/logger"
	"camwatch/internal/metrics"
)

// State tracks where the loop is in its lifecycle.
type State int32

const (
	StateInit State = iota
	StateStreaming
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Keyboard controls, matching the viewer window.
const (
	keyQuit     = 'q'
	keySnapshot = 's'
	keyConfUp   = '+'
	keyConfDown = '-'
)

const confidenceStep = 0.05

// statsLogEvery controls how often a progress line is logged.
const statsLogEvery = 100

// FrameSource yields decoded frames. Implemented by camera.Stream.
type FrameSource interface {
	ReadFrame(dst *gocv.Mat) error
	StreamType() string
}

// Detector runs inference on frames. Implemented by detect.Detector.
type Detector interface {
	Detect(frame gocv.Mat) (detect.Result, error)
	Confidence() float32
	SetConfidence(confidence float32) float32
	Stats() detect.StatsSnapshot
}

// Display shows annotated frames and reports keypresses. Nil in headless mode.
type Display interface {
	Show(img gocv.Mat)
	// PollKey returns the pressed key code, or a negative value when no
	// key is pending.
	PollKey() int
}

// VideoSink receives every annotated frame, typically a video file writer.
type VideoSink interface {
	Write(img gocv.Mat) error
}

// FrameSink receives encoded annotated frames together with their
// detections. Implemented by the websocket hub and the event recorder.
type FrameSink interface {
	Publish(jpeg []byte, result detect.Result)
}

// SnapshotStore persists a single frame on demand.
type SnapshotStore interface {
	SaveSnapshot(jpeg []byte, detections []detect.Detection) (string, error)
}

// Options wires the loop's collaborators. Source, Detector and Log are
// required; everything else is optional.
type Options struct {
	Source    FrameSource
	Detector  Detector
	Display   Display
	Video     VideoSink
	Snapshots SnapshotStore
	Sinks     []FrameSink
	Metrics   *metrics.Metrics
	Log       *logger.Logger

	// Frames are resized to Width x Height before inference when both are
	// set and the source size differs.
	Width  int
	Height int

	// Read failure tolerance. A frame read is attempted ReadRetries times
	// with RetryDelay pauses before the loop gives up.
	ReadRetries int
	RetryDelay  time.Duration
}

// Loop is the frame processing loop.
type Loop struct {
	opts   Options
	state  atomic.Int32
	frames uint64
}

// New creates a loop in the init state.
func New(opts Options) *Loop {
	return &Loop{opts: opts}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Run processes frames until the quit key is pressed, ctx is cancelled, or
// a fatal error occurs. Camera errors surface wrapping camera.ErrConnection,
// model errors wrapping detect.ErrModel. A clean stop returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateStreaming)
	defer l.setState(StateTerminated)

	frame := gocv.NewMat()
	defer frame.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	for {
		select {
		case <-ctx.Done():
			return l.stop(nil)
		default:
		}

		if err := l.readFrame(ctx, &frame); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return l.stop(nil)
			}
			return l.stop(err)
		}

		input := frame
		if l.opts.Width > 0 && l.opts.Height > 0 &&
			(frame.Cols() != l.opts.Width || frame.Rows() != l.opts.Height) {
			gocv.Resize(frame, &resized, image.Pt(l.opts.Width, l.opts.Height), 0, 0, gocv.InterpolationLinear)
			input = resized
		}

		result, err := l.opts.Detector.Detect(input)
		if err != nil {
			return l.stop(err)
		}

		l.frames++
		if m := l.opts.Metrics; m != nil {
			m.FramesRead.Add(1)
			m.Detections.Add(uint64(len(result.Detections)))
			m.InferenceMs.Store(uint64(result.InferenceTime.Milliseconds()))
		}

		stop := l.processFrame(input, result)

		if l.frames%statsLogEvery == 0 {
			l.logStats("Progress")
		}

		if stop {
			return l.stop(nil)
		}
	}
}

// processFrame annotates one frame and feeds every output. Returns true
// when the quit key was pressed.
func (l *Loop) processFrame(input gocv.Mat, result detect.Result) bool {
	annotated := annotate.Render(input, result.Detections)
	defer annotated.Close()

	stats := l.opts.Detector.Stats()
	annotate.DrawOverlay(&annotated, annotate.Overlay{
		FPS:        stats.EstimatedFPS,
		Objects:    len(result.Detections),
		Inference:  result.InferenceTime,
		StreamType: l.opts.Source.StreamType(),
	})

	if l.opts.Video != nil {
		if err := l.opts.Video.Write(annotated); err != nil {
			l.opts.Log.Warning("Failed to write video frame: %v", err)
		}
	}

	// Encode at most once per frame, shared by all consumers.
	var jpegData []byte
	encode := func() []byte {
		if jpegData != nil {
			return jpegData
		}
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, annotated)
		if err != nil {
			l.opts.Log.Error("Failed to encode frame: %v", err)
			return nil
		}
		defer buf.Close()
		jpegData = append([]byte(nil), buf.GetBytes()...)
		return jpegData
	}

	for _, sink := range l.opts.Sinks {
		if data := encode(); data != nil {
			sink.Publish(data, result)
		}
	}

	if l.opts.Display == nil {
		return false
	}
	l.opts.Display.Show(annotated)
	return l.handleKey(l.opts.Display.PollKey(), encode, result)
}

// handleKey reacts to a viewer keypress. Returns true for quit.
func (l *Loop) handleKey(key int, encode func() []byte, result detect.Result) bool {
	switch key {
	case keyQuit:
		l.opts.Log.Info("Quit requested")
		return true

	case keySnapshot:
		if l.opts.Snapshots == nil {
			return false
		}
		data := encode()
		if data == nil {
			return false
		}
		path, err := l.opts.Snapshots.SaveSnapshot(data, result.Detections)
		if err != nil {
			l.opts.Log.Error("Failed to save snapshot: %v", err)
			return false
		}
		l.opts.Log.Info("Snapshot saved: %s", path)
		if l.opts.Metrics != nil {
			l.opts.Metrics.SnapshotsSaved.Add(1)
		}

	case keyConfUp:
		conf := l.opts.Detector.SetConfidence(l.opts.Detector.Confidence() + confidenceStep)
		l.opts.Log.Info("Confidence threshold: %.2f", conf)

	case keyConfDown:
		conf := l.opts.Detector.SetConfidence(l.opts.Detector.Confidence() - confidenceStep)
		l.opts.Log.Info("Confidence threshold: %.2f", conf)
	}
	return false
}

// readFrame attempts a frame read with bounded retries. Exhausting the
// retries returns the last read error.
func (l *Loop) readFrame(ctx context.Context, dst *gocv.Mat) error {
	retries := l.opts.ReadRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := l.opts.Source.ReadFrame(dst); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if l.opts.Metrics != nil {
			l.opts.Metrics.FramesDropped.Add(1)
		}
		l.opts.Log.Warning("Frame read failed (attempt %d/%d): %v", attempt, retries, lastErr)

		if attempt < retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.opts.RetryDelay):
			}
		}
	}
	return fmt.Errorf("giving up after %d read attempts: %w", retries, lastErr)
}

// stop moves the loop into the stopping state and logs the final summary.
func (l *Loop) stop(err error) error {
	l.setState(StateStopping)
	l.logStats("Session complete")
	return err
}

func (l *Loop) logStats(prefix string) {
	s := l.opts.Detector.Stats()
	l.opts.Log.Info("%s: %d frames | %d objects | avg inference %.1fms | ~%.1f FPS",
		prefix, s.TotalFrames, s.TotalDetections,
		float64(s.AvgInference.Microseconds())/1000.0, s.EstimatedFPS)
}
