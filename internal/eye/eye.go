// Package eye slices sampled signals into symbol windows and accumulates
// them into occupancy grids for eye diagram rendering.
package eye

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrInvalidWindow = errors.New("window size must be positive")
	ErrInvalidOffset = errors.New("offset must be non-negative")
	ErrEmptySignal   = errors.New("signal is empty")
	ErrInvalidShape  = errors.New("grid shape must have positive height and width")
	ErrInvalidBounds = errors.New("bounds must be finite with max > min")
	ErrNonFinite     = errors.New("signal contains NaN or Inf samples")
)

// boundsPadFraction is the fraction of the signal amplitude added above and
// below the observed extremes when bounds are inferred.
const boundsPadFraction = 0.05

// Bounds is the amplitude range covered by a grid.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Span returns Max - Min.
func (b Bounds) Span() float64 {
	return b.Max - b.Min
}

// Validate reports whether the bounds describe a usable range.
func (b Bounds) Validate() error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("%w: got [%v, %v]", ErrInvalidBounds, b.Min, b.Max)
	}
	if b.Max <= b.Min {
		return fmt.Errorf("%w: got [%v, %v]", ErrInvalidBounds, b.Min, b.Max)
	}
	return nil
}

// Shape is the size of a grid: Height amplitude bins by Width phase bins.
type Shape struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// DefaultShape is used when no shape is requested.
var DefaultShape = Shape{Height: 800, Width: 640}

// MaxBins is the largest grid dimension accepted on either axis.
const MaxBins = 4096

// Validate reports whether both dimensions are in [1, MaxBins].
func (s Shape) Validate() error {
	if s.Height <= 0 || s.Width <= 0 || s.Height > MaxBins || s.Width > MaxBins {
		return fmt.Errorf("%w: got %dx%d, each side must be 1..%d", ErrInvalidShape, s.Height, s.Width, MaxBins)
	}
	return nil
}

// InferBounds returns the signal range padded by 5% of its amplitude on
// each side. A flat signal is padded by 0.5 instead.
func InferBounds(signal []float64) Bounds {
	if len(signal) == 0 {
		return Bounds{Min: -0.5, Max: 0.5}
	}
	lo := floats.Min(signal)
	hi := floats.Max(signal)
	amp := hi - lo
	if amp == 0 {
		return Bounds{Min: lo - 0.5, Max: hi + 0.5}
	}
	return Bounds{
		Min: lo - boundsPadFraction*amp,
		Max: hi + boundsPadFraction*amp,
	}
}

func checkSignal(signal []float64) error {
	if len(signal) == 0 {
		return ErrEmptySignal
	}
	for i, v := range signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: sample %d is %v", ErrNonFinite, i, v)
		}
	}
	return nil
}

func checkWindow(windowSize, offset int) error {
	if windowSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWindow, windowSize)
	}
	if offset < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidOffset, offset)
	}
	return nil
}
