// Package detect wraps a pretrained YOLO network through OpenCV's DNN
// module. Inference and non-max suppression are delegated entirely to the
// library; this package only decodes the raw output tensors.
package detect

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrModel marks model loading and inference failures. These indicate
// misconfiguration and are not retried.
var ErrModel = errors.New("model error")

// Network input resolution for the YOLO blob.
const inputSize = 416

// Runtime threshold adjustment bounds.
const (
	minConfidence = 0.05
	maxConfidence = 0.95
)

// Detection is a single detected object in a frame.
type Detection struct {
	Box        image.Rectangle
	ClassID    int
	Label      string
	Confidence float32
}

// Result holds the detections for one frame.
type Result struct {
	Detections    []Detection
	InferenceTime time.Duration
	FrameWidth    int
	FrameHeight   int
}

// Detector runs YOLO inference on frames. Thresholds can be adjusted at
// runtime; everything else is fixed after New.
type Detector struct {
	net         gocv.Net
	outputNames []string
	labels      []string

	mu         sync.Mutex
	confidence float32
	nms        float32

	stats *Stats
}

// New loads the network from Darknet weights/config files and prepares the
// output layer list. Missing or unloadable files yield an error wrapping
// ErrModel.
func New(modelPath, configPath, labelsPath string, confidence, nms float64) (*Detector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: model file not found: %s", ErrModel, modelPath)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: config file not found: %s", ErrModel, configPath)
	}

	labels, err := loadLabelsOrDefault(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load network from %s", ErrModel, modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("%w: failed to set preferable backend or target", ErrModel)
	}

	d := &Detector{
		net:         net,
		outputNames: outputLayerNames(&net),
		labels:      labels,
		confidence:  float32(confidence),
		nms:         float32(nms),
		stats:       NewStats(),
	}

	if len(d.outputNames) == 0 {
		net.Close()
		return nil, fmt.Errorf("%w: network has no unconnected output layers", ErrModel)
	}

	return d, nil
}

// Detect runs the network on one BGR frame and returns the surviving
// detections after confidence filtering and non-max suppression.
func (d *Detector) Detect(frame gocv.Mat) (Result, error) {
	if frame.Empty() {
		return Result{}, fmt.Errorf("%w: empty input frame", ErrModel)
	}

	conf, nms := d.Thresholds()
	start := time.Now()

	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	outputs := d.net.ForwardLayers(d.outputNames)

	boxes, scores, classIDs := decodeOutputs(outputs, frame.Cols(), frame.Rows(), conf)
	for i := range outputs {
		outputs[i].Close()
	}

	var detections []Detection
	if len(boxes) > 0 {
		indices := gocv.NMSBoxes(boxes, scores, conf, nms)
		detections = make([]Detection, 0, len(indices))
		for _, idx := range indices {
			detections = append(detections, Detection{
				Box:        boxes[idx],
				ClassID:    classIDs[idx],
				Label:      d.Label(classIDs[idx]),
				Confidence: scores[idx],
			})
		}
	}

	elapsed := time.Since(start)
	d.stats.Record(elapsed, len(detections))

	return Result{
		Detections:    detections,
		InferenceTime: elapsed,
		FrameWidth:    frame.Cols(),
		FrameHeight:   frame.Rows(),
	}, nil
}

// decodeOutputs walks the raw output tensors and collects candidate boxes
// above the confidence threshold, scaled back to frame coordinates.
func decodeOutputs(outputs []gocv.Mat, width, height int, confidence float32) ([]image.Rectangle, []float32, []int) {
	var (
		boxes    []image.Rectangle
		scores   []float32
		classIDs []int
	)

	for _, out := range outputs {
		cols := out.Cols()
		if cols == 0 {
			continue
		}
		rows := out.Total() / cols

		reshaped := out.Reshape(1, rows)
		for r := 0; r < rows; r++ {
			row := make([]float32, cols)
			for c := 0; c < cols; c++ {
				row[c] = reshaped.GetFloatAt(r, c)
			}

			box, classID, score, ok := DecodeRow(row, width, height, confidence)
			if !ok {
				continue
			}
			boxes = append(boxes, box)
			scores = append(scores, score)
			classIDs = append(classIDs, classID)
		}
		reshaped.Close()
	}

	return boxes, scores, classIDs
}

// Label maps a class ID to its human readable name.
func (d *Detector) Label(classID int) string {
	if classID >= 0 && classID < len(d.labels) {
		return d.labels[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

// Labels returns the class name list the detector was loaded with.
func (d *Detector) Labels() []string {
	return d.labels
}

// Thresholds returns the current confidence and NMS thresholds.
func (d *Detector) Thresholds() (confidence, nms float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.confidence, d.nms
}

// Confidence returns the current confidence threshold.
func (d *Detector) Confidence() float32 {
	conf, _ := d.Thresholds()
	return conf
}

// SetConfidence updates the confidence threshold, clamped to a sane range
// so runtime adjustment can never disable filtering entirely.
func (d *Detector) SetConfidence(confidence float32) float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confidence = ClampConfidence(confidence)
	return d.confidence
}

// Stats returns a snapshot of the rolling inference statistics.
func (d *Detector) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// Close releases the underlying network.
func (d *Detector) Close() error {
	return d.net.Close()
}

// outputLayerNames resolves the names of the unconnected output layers,
// which is where the Darknet YOLO head produces its predictions.
func outputLayerNames(net *gocv.Net) []string {
	var names []string
	layers := net.GetLayerNames()
	for _, idx := range net.GetUnconnectedOutLayers() {
		// Layer indices from OpenCV are 1-based.
		if idx-1 >= 0 && idx-1 < len(layers) {
			names = append(names, layers[idx-1])
		}
	}
	return names
}
