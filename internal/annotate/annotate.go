// Package annotate draws detection boxes, labels and the information
// overlay onto frame copies. It never modifies the input frame.
package annotate

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"camwatch/internal/detect"
)

const (
	boxThickness  = 2
	fontScale     = 0.5
	fontThickness = 1
)

// Overlay holds the values shown in the corner information block.
type Overlay struct {
	FPS        float64
	Objects    int
	Inference  time.Duration
	StreamType string
}

// Render returns a copy of frame with all detections drawn on it. The
// output has the same dimensions as the input.
func Render(frame gocv.Mat, detections []detect.Detection) gocv.Mat {
	out := frame.Clone()
	for _, det := range detections {
		drawDetection(&out, det)
	}
	return out
}

// drawDetection draws one bounding box with a filled label background.
func drawDetection(img *gocv.Mat, det detect.Detection) {
	clr := ClassColor(det.ClassID)

	gocv.Rectangle(img, det.Box, clr, boxThickness)

	label := fmt.Sprintf("%s: %.2f", det.Label, det.Confidence)
	textSize := gocv.GetTextSize(label, gocv.FontHersheySimplex, fontScale, fontThickness)

	// Label background sits on top of the box, clamped so it stays on
	// screen for detections near the frame edge.
	top := det.Box.Min.Y - textSize.Y - 8
	if top < 0 {
		top = det.Box.Min.Y
	}
	background := image.Rect(det.Box.Min.X, top, det.Box.Min.X+textSize.X+4, top+textSize.Y+8)
	gocv.Rectangle(img, background, clr, -1)

	textOrigin := image.Pt(background.Min.X+2, background.Max.Y-4)
	gocv.PutText(img, label, textOrigin, gocv.FontHersheySimplex, fontScale, textColor, fontThickness)
}

// DrawOverlay writes the FPS / object count / inference time / stream type
// block into the top-left corner of img.
func DrawOverlay(img *gocv.Mat, info Overlay) {
	lines := []struct {
		text  string
		pt    image.Point
		scale float64
	}{
		{fmt.Sprintf("FPS: %.1f", info.FPS), image.Pt(10, 30), 1.0},
		{fmt.Sprintf("Objects: %d", info.Objects), image.Pt(10, 70), 1.0},
		{fmt.Sprintf("Inference: %.1fms", float64(info.Inference.Microseconds())/1000.0), image.Pt(10, 110), 0.7},
		{fmt.Sprintf("Stream: %s", info.StreamType), image.Pt(10, 150), 0.7},
	}

	for _, line := range lines {
		gocv.PutText(img, line.text, line.pt, gocv.FontHersheySimplex, line.scale, overlayColor, 2)
	}
}
