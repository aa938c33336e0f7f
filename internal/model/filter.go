package model

import "time"

// ImageFilter narrows image queries. Zero values mean "no constraint".
type ImageFilter struct {
	Camera string
	Label  string
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}
