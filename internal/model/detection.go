package model

// Detection represents a single detected object tied to a stored image.
type Detection struct {
	ID         int64   `json:"id"`
	ImageID    int64   `json:"image_id"`
	Label      string  `json:"label"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}
