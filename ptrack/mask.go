package ptrack

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ProbabilityMask is a per-pixel confidence grid. Rows are image rows (y), columns are image columns (x).
type ProbabilityMask struct {
	grid *mat.Dense
}

// NewProbabilityMask creates all-zero mask
func NewProbabilityMask(width, height int) (*ProbabilityMask, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "mask size must be positive, got %dx%d", width, height)
	}
	return &ProbabilityMask{grid: mat.NewDense(height, width, nil)}, nil
}

// NewUniformMask creates mask filled with ones, i.e. prior which does not prefer any pixel
func NewUniformMask(width, height int) (*ProbabilityMask, error) {
	mask, err := NewProbabilityMask(width, height)
	if err != nil {
		return nil, err
	}
	raw := mask.grid.RawMatrix()
	for i := range raw.Data {
		raw.Data[i] = 1
	}
	return mask, nil
}

// Width returns number of columns
func (mask *ProbabilityMask) Width() int {
	_, c := mask.grid.Dims()
	return c
}

// Height returns number of rows
func (mask *ProbabilityMask) Height() int {
	r, _ := mask.grid.Dims()
	return r
}

// Bounds returns mask extent
func (mask *ProbabilityMask) Bounds() image.Rectangle {
	return image.Rect(0, 0, mask.Width(), mask.Height())
}

// At returns value at pixel (x, y). Out of bounds pixels are zero.
func (mask *ProbabilityMask) At(x, y int) float64 {
	if !(image.Point{X: x, Y: y}).In(mask.Bounds()) {
		return 0
	}
	return mask.grid.At(y, x)
}

// Set sets value at pixel (x, y). Returns false for out of bounds pixel.
func (mask *ProbabilityMask) Set(x, y int, value float64) bool {
	if !(image.Point{X: x, Y: y}).In(mask.Bounds()) {
		return false
	}
	mask.grid.Set(y, x, value)
	return true
}

// MulElem multiplies mask element-wise by other mask of the same size
func (mask *ProbabilityMask) MulElem(other *ProbabilityMask) error {
	if other == nil {
		return errors.Wrap(ErrInvalidArgument, "mask is nil")
	}
	if mask.Width() != other.Width() || mask.Height() != other.Height() {
		return errors.Wrapf(ErrInvalidArgument, "mask size mismatch: %dx%d vs %dx%d", mask.Width(), mask.Height(), other.Width(), other.Height())
	}
	mask.grid.MulElem(mask.grid, other.grid)
	return nil
}

// Sum returns total mass of the mask
func (mask *ProbabilityMask) Sum() float64 {
	return mat.Sum(mask.grid)
}

// maskMoments holds raw spatial moments up to second order. Coordinates are relative to window origin.
type maskMoments struct {
	m00, m10, m01, m20, m11, m02 float64
}

// moments computes spatial moments over window. Window must lie inside mask.
func (mask *ProbabilityMask) moments(window image.Rectangle) maskMoments {
	var m maskMoments
	if window.Empty() {
		return m
	}
	view := mask.grid.Slice(window.Min.Y, window.Max.Y, window.Min.X, window.Max.X)
	rows, cols := view.Dims()
	for y := 0; y < rows; y++ {
		fy := float64(y)
		for x := 0; x < cols; x++ {
			v := view.At(y, x)
			if v <= 0 {
				continue
			}
			fx := float64(x)
			m.m00 += v
			m.m10 += v * fx
			m.m01 += v * fy
			m.m20 += v * fx * fx
			m.m11 += v * fx * fy
			m.m02 += v * fy * fy
		}
	}
	return m
}
