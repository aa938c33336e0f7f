package annotate

import (
	"image"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"camwatch/internal/detect"
)

func testDetections() []detect.Detection {
	return []detect.Detection{
		{Box: image.Rect(10, 10, 100, 100), ClassID: 0, Label: "person", Confidence: 0.92},
		{Box: image.Rect(200, 50, 300, 220), ClassID: 2, Label: "car", Confidence: 0.61},
	}
}

func TestRender_PreservesDimensions(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out := Render(frame, testDetections())
	defer out.Close()

	if out.Rows() != frame.Rows() || out.Cols() != frame.Cols() {
		t.Errorf("Render() output %dx%d, want %dx%d", out.Cols(), out.Rows(), frame.Cols(), frame.Rows())
	}
}

func TestRender_DoesNotModifyInput(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out := Render(frame, testDetections())
	defer out.Close()

	// The box outline at (10,10) must appear only in the copy.
	for ch := 0; ch < 3; ch++ {
		if v := frame.GetUCharAt3(10, 10, ch); v != 0 {
			t.Fatalf("Input frame modified at (10,10) channel %d: %d", ch, v)
		}
	}
}

func TestRender_NoDetections(t *testing.T) {
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out := Render(frame, nil)
	defer out.Close()

	if out.Rows() != 120 || out.Cols() != 160 {
		t.Errorf("Render() output %dx%d, want 160x120", out.Cols(), out.Rows())
	}
}

func TestRender_BoxAtFrameEdge(t *testing.T) {
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	// Label background for a box at y=0 would extend above the frame;
	// rendering must still succeed and keep dimensions.
	dets := []detect.Detection{
		{Box: image.Rect(0, 0, 50, 40), ClassID: 1, Label: "bicycle", Confidence: 0.5},
	}

	out := Render(frame, dets)
	defer out.Close()

	if out.Rows() != 120 || out.Cols() != 160 {
		t.Errorf("Render() output %dx%d, want 160x120", out.Cols(), out.Rows())
	}
}

func TestDrawOverlay(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	DrawOverlay(&frame, Overlay{
		FPS:        24.5,
		Objects:    3,
		Inference:  42 * time.Millisecond,
		StreamType: "video",
	})

	if frame.Rows() != 480 || frame.Cols() != 640 {
		t.Errorf("DrawOverlay() changed dimensions to %dx%d", frame.Cols(), frame.Rows())
	}
}

func TestClassColor_Deterministic(t *testing.T) {
	for id := 0; id < 80; id++ {
		if ClassColor(id) != ClassColor(id) {
			t.Fatalf("ClassColor(%d) not deterministic", id)
		}
	}
	if ClassColor(0) == ClassColor(1) {
		t.Error("Adjacent classes share a color")
	}
}

func TestClassColor_OutOfRange(t *testing.T) {
	// IDs beyond the palette wrap around instead of panicking.
	if ClassColor(80) != ClassColor(0) {
		t.Error("ClassColor(80) should wrap to ClassColor(0)")
	}
	_ = ClassColor(-1)
}
