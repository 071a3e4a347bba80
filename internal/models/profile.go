package models

import (
	"fmt"
)

// ImageShape is the native resolution of a measurement stack
type ImageShape struct {
	// Width is the number of pixel columns
	Width int

	// Height is the number of pixel rows
	Height int
}

// Pixels returns the number of pixels in the shape
func (s ImageShape) Pixels() int {
	return s.Width * s.Height
}

// Downsampled returns the shape after block averaging with the given ROI size.
// Edge blocks that do not fill a whole ROI still produce one pixel.
func (s ImageShape) Downsampled(roiSize int) ImageShape {
	if roiSize <= 1 {
		return s
	}
	return ImageShape{
		Width:  (s.Width + roiSize - 1) / roiSize,
		Height: (s.Height + roiSize - 1) / roiSize,
	}
}

// Stack represents an SLI measurement: one image per rotation angle
type Stack struct {
	// Data holds the intensities in pixel-major order: the samples of pixel
	// (x, y) are Data[(y*Width+x)*Measurements : (y*Width+x+1)*Measurements]
	Data []float64

	// Shape is the spatial size of each image
	Shape ImageShape

	// Measurements is the number of rotation angles
	Measurements int
}

// NewStack allocates an empty stack
func NewStack(shape ImageShape, measurements int) *Stack {
	return &Stack{
		Data:         make([]float64, shape.Pixels()*measurements),
		Shape:        shape,
		Measurements: measurements,
	}
}

// Profile returns the line profile of pixel (x, y). The returned slice aliases
// the stack data.
func (s *Stack) Profile(x, y int) []float64 {
	start := (y*s.Shape.Width + x) * s.Measurements
	return s.Data[start : start+s.Measurements]
}

// ROISet is the ordered collection of line profiles handed to the feature
// generation engine. Profiles are in row-major pixel order of the
// (possibly downsampled) image; that order is what the output assembler uses
// to rebuild 2-D maps.
type ROISet struct {
	// Profiles holds one line profile per pixel
	Profiles [][]float64

	// Shape is the native image resolution before downsampling
	Shape ImageShape

	// ROISize is the downsampling factor used during preparation
	ROISize int
}

// Len returns the number of line profiles
func (r ROISet) Len() int {
	return len(r.Profiles)
}

// ProfileLength returns the shared length of all line profiles, or an error
// when the set is empty or lengths differ.
func (r ROISet) ProfileLength() (int, error) {
	if len(r.Profiles) == 0 {
		return 0, fmt.Errorf("roi set is empty")
	}
	n := len(r.Profiles[0])
	for i, p := range r.Profiles {
		if len(p) != n {
			return 0, fmt.Errorf("profile %d has %d samples, expected %d", i, len(p), n)
		}
	}
	return n, nil
}

// GridShape returns the resolution the profiles were sampled at
func (r ROISet) GridShape() ImageShape {
	return r.Shape.Downsampled(r.ROISize)
}

// FeatureMap is one 2-D parameter map in row-major order
type FeatureMap struct {
	// Name identifies the map, e.g. "direction" or "crossing_direction_2"
	Name string

	// Shape is the resolution of the map
	Shape ImageShape

	// Data holds Shape.Width*Shape.Height values
	Data []float64
}

// At returns the value at column x and row y
func (m *FeatureMap) At(x, y int) float64 {
	return m.Data[y*m.Shape.Width+x]
}

// Range returns the smallest and largest value of the map
func (m *FeatureMap) Range() (lo, hi float64) {
	if len(m.Data) == 0 {
		return 0, 0
	}
	lo, hi = m.Data[0], m.Data[0]
	for _, v := range m.Data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
