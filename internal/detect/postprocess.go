package detect

import "image"

// DecodeRow decodes one YOLO output row: [cx, cy, w, h, objectness,
// class scores...], all normalized to [0,1]. It returns the pixel-space
// box, the winning class and its score, and whether the row passes the
// confidence threshold.
func DecodeRow(row []float32, width, height int, confidence float32) (image.Rectangle, int, float32, bool) {
	if len(row) < 6 {
		return image.Rectangle{}, 0, 0, false
	}

	classID, score := BestClass(row[5:])
	if score <= confidence {
		return image.Rectangle{}, 0, 0, false
	}

	return RectFromCenter(row[0], row[1], row[2], row[3], width, height), classID, score, true
}

// BestClass returns the index and value of the highest class score.
func BestClass(scores []float32) (int, float32) {
	bestID := 0
	var best float32
	for i, s := range scores {
		if s > best {
			best = s
			bestID = i
		}
	}
	return bestID, best
}

// ClampConfidence bounds a confidence threshold to [minConfidence, maxConfidence].
func ClampConfidence(confidence float32) float32 {
	if confidence < minConfidence {
		return minConfidence
	}
	if confidence > maxConfidence {
		return maxConfidence
	}
	return confidence
}

// RectFromCenter converts a normalized center-size box to a pixel rectangle.
func RectFromCenter(cx, cy, w, h float32, frameWidth, frameHeight int) image.Rectangle {
	boxWidth := int(w * float32(frameWidth))
	boxHeight := int(h * float32(frameHeight))
	left := int(cx*float32(frameWidth)) - boxWidth/2
	top := int(cy*float32(frameHeight)) - boxHeight/2
	return image.Rect(left, top, left+boxWidth, top+boxHeight)
}
