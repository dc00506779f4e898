package layout

import (
	"fmt"
	"image"
	"math"
)

// Format names a flat 4-coordinate box convention used by OCR engines.
type Format string

const (
	// FormatXYXY is (x_min, y_min, x_max, y_max).
	FormatXYXY Format = "xyxy"
	// FormatXXYY is (x_min, x_max, y_min, y_max), the recognizer-side convention.
	FormatXXYY Format = "xxyy"
)

// Point is a polygon vertex in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned rectangle. All engine formats are converted to this
// one representation when tokens are ingested.
type Box struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// NewBox builds a validated box from its corners.
func NewBox(xMin, yMin, xMax, yMax float64) (Box, error) {
	b := Box{XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax}
	if err := b.Validate(); err != nil {
		return Box{}, err
	}
	return b, nil
}

// BoxFromCoords converts four flat coordinates in the given format.
func BoxFromCoords(format Format, coords []float64) (Box, error) {
	if len(coords) != 4 {
		return Box{}, fmt.Errorf("box needs 4 coordinates, got %d: %w", len(coords), ErrInvalidArgument)
	}
	switch format {
	case FormatXYXY:
		return NewBox(coords[0], coords[1], coords[2], coords[3])
	case FormatXXYY:
		return NewBox(coords[0], coords[2], coords[1], coords[3])
	default:
		return Box{}, fmt.Errorf("unsupported box format %q: %w", format, ErrInvalidArgument)
	}
}

// BoxFromPolygon takes the per-axis min/max of a 4-point polygon. Vertex order
// is engine dependent and does not matter.
func BoxFromPolygon(pts []Point) (Box, error) {
	if len(pts) != 4 {
		return Box{}, fmt.Errorf("polygon needs 4 points, got %d: %w", len(pts), ErrInvalidArgument)
	}
	b := Box{XMin: math.Inf(1), YMin: math.Inf(1), XMax: math.Inf(-1), YMax: math.Inf(-1)}
	for _, p := range pts {
		b.XMin = math.Min(b.XMin, p.X)
		b.YMin = math.Min(b.YMin, p.Y)
		b.XMax = math.Max(b.XMax, p.X)
		b.YMax = math.Max(b.YMax, p.Y)
	}
	if err := b.Validate(); err != nil {
		return Box{}, err
	}
	return b, nil
}

// BoxFromRect converts an integer pixel rectangle.
func BoxFromRect(r image.Rectangle) Box {
	r = r.Canon()
	return Box{XMin: float64(r.Min.X), YMin: float64(r.Min.Y), XMax: float64(r.Max.X), YMax: float64(r.Max.Y)}
}

// Validate checks that every coordinate is finite and the corners are ordered.
func (b Box) Validate() error {
	for _, v := range [...]float64{b.XMin, b.YMin, b.XMax, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("box %v has non-numeric coordinate: %w", b, ErrInvalidArgument)
		}
	}
	if b.XMin > b.XMax || b.YMin > b.YMax {
		return fmt.Errorf("box %v has inverted corners: %w", b, ErrInvalidArgument)
	}
	return nil
}

// Center returns the box midpoint.
func (b Box) Center() (x, y float64) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2
}

// Polygon returns the corners clockwise from the top-left.
func (b Box) Polygon() [4]Point {
	return [4]Point{
		{X: b.XMin, Y: b.YMin},
		{X: b.XMax, Y: b.YMin},
		{X: b.XMax, Y: b.YMax},
		{X: b.XMin, Y: b.YMax},
	}
}

// Coords flattens the box in the requested format.
func (b Box) Coords(format Format) ([]float64, error) {
	switch format {
	case FormatXYXY:
		return []float64{b.XMin, b.YMin, b.XMax, b.YMax}, nil
	case FormatXXYY:
		return []float64{b.XMin, b.XMax, b.YMin, b.YMax}, nil
	default:
		return nil, fmt.Errorf("unsupported box format %q: %w", format, ErrInvalidArgument)
	}
}

// Rect rounds the box to integer pixels for drawing.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.XMin)), int(math.Round(b.YMin)),
		int(math.Round(b.XMax)), int(math.Round(b.YMax)),
	)
}

// Union returns the smallest box covering b and o.
func (b Box) Union(o Box) Box {
	return Box{
		XMin: math.Min(b.XMin, o.XMin),
		YMin: math.Min(b.YMin, o.YMin),
		XMax: math.Max(b.XMax, o.XMax),
		YMax: math.Max(b.YMax, o.YMax),
	}
}

// SamePhrase reports whether next continues the phrase ending in prev on
// the same text line: their vertical centres are within half a line height
// and next starts no further than gap line heights right of prev. The line
// height is the taller of the two boxes. A gap of zero or less never joins.
func SamePhrase(prev, next Box, gap float64) bool {
	if gap <= 0 {
		return false
	}
	h := math.Max(math.Max(prev.YMax-prev.YMin, next.YMax-next.YMin), 1)
	_, py := prev.Center()
	_, ny := next.Center()
	if math.Abs(py-ny) >= h/2 {
		return false
	}
	dx := next.XMin - prev.XMax
	return dx >= -h/2 && dx <= gap*h
}
