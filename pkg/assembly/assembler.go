// Package assembly turns a feature matrix back into 2-D parameter maps.
package assembly

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"slimaps/internal/models"
	"slimaps/pkg/features"
)

// ErrLayout is returned when the matrix does not match the column layout or the
// image shape
var ErrLayout = errors.New("feature matrix does not match layout")

// Assembler extracts maps from the columns of a feature matrix. Rows are pixels
// in row-major order of the ROI grid.
type Assembler struct {
	matrix mat.Matrix
	layout []features.Column

	// shape is the native image resolution, grid the ROI resolution
	shape models.ImageShape
	grid  models.ImageShape
	roi   int
}

// NewAssembler checks that matrix, layout and shape are consistent
func NewAssembler(matrix mat.Matrix, layout []features.Column, shape models.ImageShape, roiSize int) (*Assembler, error) {
	if matrix == nil {
		return nil, fmt.Errorf("%w: no matrix", ErrLayout)
	}
	roiSize = max(1, roiSize)
	grid := shape.Downsampled(roiSize)

	rows, cols := matrix.Dims()
	if rows != grid.Pixels() {
		return nil, fmt.Errorf("%w: %d rows for a %dx%d grid", ErrLayout, rows, grid.Width, grid.Height)
	}
	width := 0
	for _, c := range layout {
		if c.Offset != width {
			return nil, fmt.Errorf("%w: column %s starts at %d, expected %d", ErrLayout, c.Feature, c.Offset, width)
		}
		width += c.Width
	}
	if width != cols {
		return nil, fmt.Errorf("%w: layout has %d columns, matrix %d", ErrLayout, width, cols)
	}

	return &Assembler{
		matrix: matrix,
		layout: layout,
		shape:  shape,
		grid:   grid,
		roi:    roiSize,
	}, nil
}

// MapNames returns the names of the maps in column order. Multi-column
// features get a 1-based suffix.
func (a *Assembler) MapNames() []string {
	names := make([]string, 0)
	for _, c := range a.layout {
		if c.Width == 1 {
			names = append(names, c.Feature.String())
			continue
		}
		for k := 1; k <= c.Width; k++ {
			names = append(names, fmt.Sprintf("%s_%d", c.Feature, k))
		}
	}
	return names
}

// Column extracts matrix column col at ROI resolution
func (a *Assembler) Column(col int) (*models.FeatureMap, error) {
	_, cols := a.matrix.Dims()
	if col < 0 || col >= cols {
		return nil, fmt.Errorf("column %d outside [0, %d)", col, cols)
	}

	m := &models.FeatureMap{
		Name:  a.MapNames()[col],
		Shape: a.grid,
		Data:  make([]float64, a.grid.Pixels()),
	}
	mat.Col(m.Data, col, a.matrix)
	return m, nil
}

// Upsample scales a map at ROI resolution to the native resolution with
// nearest-neighbour interpolation
func (a *Assembler) Upsample(m *models.FeatureMap) *models.FeatureMap {
	if a.roi == 1 {
		return m
	}

	out := &models.FeatureMap{
		Name:  m.Name,
		Shape: a.shape,
		Data:  make([]float64, a.shape.Pixels()),
	}
	for y := 0; y < a.shape.Height; y++ {
		for x := 0; x < a.shape.Width; x++ {
			out.Data[y*a.shape.Width+x] = m.At(x/a.roi, y/a.roi)
		}
	}
	return out
}

// Maps extracts every column. With upsample set the maps have the native
// image resolution, otherwise the ROI resolution.
func (a *Assembler) Maps(upsample bool) ([]models.FeatureMap, error) {
	_, cols := a.matrix.Dims()
	maps := make([]models.FeatureMap, 0, cols)
	for col := 0; col < cols; col++ {
		m, err := a.Column(col)
		if err != nil {
			return nil, err
		}
		if upsample {
			m = a.Upsample(m)
		}
		maps = append(maps, *m)
	}
	return maps, nil
}

// Assemble is a shorthand for NewAssembler followed by Maps
func Assemble(matrix mat.Matrix, layout []features.Column, shape models.ImageShape, roiSize int, upsample bool) ([]models.FeatureMap, error) {
	a, err := NewAssembler(matrix, layout, shape, roiSize)
	if err != nil {
		return nil, err
	}
	return a.Maps(upsample)
}
