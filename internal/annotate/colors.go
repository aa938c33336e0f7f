package annotate

import "image/color"

var (
	textColor    = color.RGBA{R: 255, G: 255, B: 255}
	overlayColor = color.RGBA{R: 255, G: 255, B: 0}
)

// palette holds one color per COCO class. Generated once from a fixed seed
// so each class keeps the same color across runs.
var palette = makePalette(80)

// ClassColor returns the deterministic color assigned to a class ID.
func ClassColor(classID int) color.RGBA {
	idx := classID % len(palette)
	if idx < 0 {
		idx += len(palette)
	}
	return palette[idx]
}

// makePalette generates n colors from a small fixed-seed LCG.
func makePalette(n int) []color.RGBA {
	colors := make([]color.RGBA, n)
	seed := uint32(42)
	next := func() uint8 {
		seed = seed*1664525 + 1013904223
		return uint8(seed >> 24)
	}
	for i := range colors {
		colors[i] = color.RGBA{R: next(), G: next(), B: next(), A: 255}
	}
	return colors
}
