package runloop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"camwatch/internal/camera"
	"camwatch/internal/detect"
	"camwatch/internal/logger"
	"camwatch/internal/metrics"
)

// fakeSource serves synthetic frames and can inject read failures.
type fakeSource struct {
	reads    int
	failures map[int]error // read number (1-based) -> error
	onRead   func(read int)
}

func (f *fakeSource) ReadFrame(dst *gocv.Mat) error {
	f.reads++
	if f.onRead != nil {
		f.onRead(f.reads)
	}
	if err, ok := f.failures[f.reads]; ok {
		return err
	}
	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer mat.Close()
	mat.CopyTo(dst)
	return nil
}

func (f *fakeSource) StreamType() string { return "fake" }

// fakeDetector returns a fixed result and tracks threshold changes.
type fakeDetector struct {
	calls      int
	confidence float32
	result     detect.Result
	err        error
}

func (f *fakeDetector) Detect(frame gocv.Mat) (detect.Result, error) {
	f.calls++
	if f.err != nil {
		return detect.Result{}, f.err
	}
	res := f.result
	res.FrameWidth = frame.Cols()
	res.FrameHeight = frame.Rows()
	return res, nil
}

func (f *fakeDetector) Confidence() float32 { return f.confidence }

func (f *fakeDetector) SetConfidence(confidence float32) float32 {
	f.confidence = detect.ClampConfidence(confidence)
	return f.confidence
}

func (f *fakeDetector) Stats() detect.StatsSnapshot {
	return detect.StatsSnapshot{TotalFrames: f.calls}
}

// fakeDisplay replays a scripted key sequence.
type fakeDisplay struct {
	keys  []int
	shown int
}

func (f *fakeDisplay) Show(img gocv.Mat) { f.shown++ }

func (f *fakeDisplay) PollKey() int {
	if len(f.keys) == 0 {
		return -1
	}
	key := f.keys[0]
	f.keys = f.keys[1:]
	return key
}

// fakeSink collects published frames.
type fakeSink struct {
	published int
	lastJPEG  []byte
}

func (f *fakeSink) Publish(jpeg []byte, result detect.Result) {
	f.published++
	f.lastJPEG = jpeg
}

// fakeSnapshots records snapshot saves.
type fakeSnapshots struct {
	saved int
}

func (f *fakeSnapshots) SaveSnapshot(jpeg []byte, detections []detect.Detection) (string, error) {
	f.saved++
	return fmt.Sprintf("/outputs/snap_%d.jpg", f.saved), nil
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.New(t.TempDir())
}

func sampleResult() detect.Result {
	return detect.Result{
		Detections: []detect.Detection{
			{Box: image.Rect(5, 5, 20, 20), ClassID: 0, Label: "person", Confidence: 0.9},
		},
		InferenceTime: 12 * time.Millisecond,
	}
}

func TestLoop_RunsUntilQuitKey(t *testing.T) {
	src := &fakeSource{}
	det := &fakeDetector{confidence: 0.5, result: sampleResult()}
	disp := &fakeDisplay{keys: []int{-1, -1, keyQuit}}
	sink := &fakeSink{}
	m := metrics.New()

	loop := New(Options{
		Source:      src,
		Detector:    det,
		Display:     disp,
		Sinks:       []FrameSink{sink},
		Metrics:     m,
		Log:         testLog(t),
		ReadRetries: 1,
	})

	if got := loop.State(); got != StateInit {
		t.Fatalf("State() before Run = %v, want init", got)
	}

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if got := loop.State(); got != StateTerminated {
		t.Errorf("State() after Run = %v, want terminated", got)
	}
	if src.reads != 3 {
		t.Errorf("Source reads = %d, want 3", src.reads)
	}
	if det.calls != 3 {
		t.Errorf("Detector calls = %d, want 3", det.calls)
	}
	if disp.shown != 3 {
		t.Errorf("Frames shown = %d, want 3", disp.shown)
	}
	if sink.published != 3 {
		t.Errorf("Frames published = %d, want 3", sink.published)
	}
	if len(sink.lastJPEG) == 0 {
		t.Error("Published frame has no JPEG data")
	}
	if got := m.FramesRead.Load(); got != 3 {
		t.Errorf("FramesRead = %d, want 3", got)
	}
	if got := m.Detections.Load(); got != 3 {
		t.Errorf("Detections = %d, want 3", got)
	}
}

func TestLoop_SnapshotKey(t *testing.T) {
	snaps := &fakeSnapshots{}
	m := metrics.New()

	loop := New(Options{
		Source:      &fakeSource{},
		Detector:    &fakeDetector{confidence: 0.5, result: sampleResult()},
		Display:     &fakeDisplay{keys: []int{keySnapshot, keyQuit}},
		Snapshots:   snaps,
		Metrics:     m,
		Log:         testLog(t),
		ReadRetries: 1,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if snaps.saved != 1 {
		t.Errorf("Snapshots saved = %d, want 1", snaps.saved)
	}
	if got := m.SnapshotsSaved.Load(); got != 1 {
		t.Errorf("SnapshotsSaved metric = %d, want 1", got)
	}
}

func TestLoop_ConfidenceKeys(t *testing.T) {
	det := &fakeDetector{confidence: 0.5}

	loop := New(Options{
		Source:      &fakeSource{},
		Detector:    det,
		Display:     &fakeDisplay{keys: []int{keyConfUp, keyConfUp, keyConfDown, keyQuit}},
		Log:         testLog(t),
		ReadRetries: 1,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if math.Abs(float64(det.confidence)-0.55) > 1e-6 {
		t.Errorf("Confidence after +,+,- = %.3f, want 0.55", det.confidence)
	}
}

func TestLoop_GivesUpAfterReadRetries(t *testing.T) {
	failing := fmt.Errorf("%w: stream gone", camera.ErrConnection)
	src := &fakeSource{failures: map[int]error{1: failing, 2: failing, 3: failing}}
	m := metrics.New()

	loop := New(Options{
		Source:      src,
		Detector:    &fakeDetector{},
		Metrics:     m,
		Log:         testLog(t),
		ReadRetries: 3,
		RetryDelay:  time.Millisecond,
	})

	err := loop.Run(context.Background())
	if !errors.Is(err, camera.ErrConnection) {
		t.Fatalf("Run() = %v, want camera.ErrConnection", err)
	}
	if got := m.FramesDropped.Load(); got != 3 {
		t.Errorf("FramesDropped = %d, want 3", got)
	}
	if got := loop.State(); got != StateTerminated {
		t.Errorf("State() after fatal error = %v, want terminated", got)
	}
}

func TestLoop_TransientReadFailureRecovers(t *testing.T) {
	src := &fakeSource{failures: map[int]error{
		1: fmt.Errorf("%w: hiccup", camera.ErrConnection),
	}}

	loop := New(Options{
		Source:      src,
		Detector:    &fakeDetector{},
		Display:     &fakeDisplay{keys: []int{keyQuit}},
		Log:         testLog(t),
		ReadRetries: 3,
		RetryDelay:  time.Millisecond,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want recovery after transient failure", err)
	}
	if src.reads != 2 {
		t.Errorf("Source reads = %d, want 2 (one failed, one good)", src.reads)
	}
}

func TestLoop_DetectorErrorIsFatal(t *testing.T) {
	modelErr := fmt.Errorf("%w: forward pass failed", detect.ErrModel)

	loop := New(Options{
		Source:      &fakeSource{},
		Detector:    &fakeDetector{err: modelErr},
		Log:         testLog(t),
		ReadRetries: 1,
	})

	err := loop.Run(context.Background())
	if !errors.Is(err, detect.ErrModel) {
		t.Fatalf("Run() = %v, want detect.ErrModel", err)
	}
}

func TestLoop_HeadlessStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{}
	src.onRead = func(read int) {
		if read >= 5 {
			cancel()
		}
	}

	loop := New(Options{
		Source:      src,
		Detector:    &fakeDetector{},
		Log:         testLog(t),
		ReadRetries: 1,
	})

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want clean stop on cancel", err)
	}
	if got := loop.State(); got != StateTerminated {
		t.Errorf("State() = %v, want terminated", got)
	}
	if src.reads < 5 {
		t.Errorf("Source reads = %d, want at least 5", src.reads)
	}
}
