package eye

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat/distuv"
)

// minFuzzSamples is the smallest window a cubic spline can be fitted to.
const minFuzzSamples = 4

// GridOptions controls how GridCount bins a signal.
type GridOptions struct {
	// Offset is the number of leading samples to skip.
	Offset int
	// Shape defaults to DefaultShape when nil.
	Shape *Shape
	// Bounds defaults to InferBounds(signal) when nil.
	Bounds *Bounds
	// Fuzz re-samples each window at randomly jittered phases to break up
	// the aliasing pattern integer line drawing leaves behind.
	Fuzz bool
	// Seed drives the fuzz jitter. Equal seeds give equal grids.
	Seed uint64
}

// Grid holds occupancy counts indexed by phase bin (x) and amplitude bin (y).
type Grid struct {
	Shape      Shape
	Bounds     Bounds
	WindowSize int
	// Windows is the number of windows accumulated.
	Windows int

	counts []int
}

// NewGrid returns an empty grid.
func NewGrid(shape Shape, bounds Bounds, windowSize int) (*Grid, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, windowSize)
	}
	return &Grid{
		Shape:      shape,
		Bounds:     bounds,
		WindowSize: windowSize,
		counts:     make([]int, shape.Width*shape.Height),
	}, nil
}

// GridCount accumulates every full window of signal into a grid. A window
// covers windowSize+1 samples, sharing its last sample with the next one,
// and is drawn as a polyline across the phase axis.
func GridCount(signal []float64, windowSize int, opts GridOptions) (*Grid, error) {
	if err := checkWindow(windowSize, opts.Offset); err != nil {
		return nil, err
	}
	if err := checkSignal(signal); err != nil {
		return nil, err
	}

	shape := DefaultShape
	if opts.Shape != nil {
		shape = *opts.Shape
	}
	bounds := InferBounds(signal)
	if opts.Bounds != nil {
		bounds = *opts.Bounds
	}

	g, err := NewGrid(shape, bounds, windowSize)
	if err != nil {
		return nil, err
	}

	// No full window fits.
	if opts.Offset >= len(signal) || windowSize >= len(signal)-opts.Offset {
		return g, nil
	}

	var jitter *distuv.Beta
	if opts.Fuzz && windowSize+1 >= minFuzzSamples {
		jitter = &distuv.Beta{Alpha: 3, Beta: 3, Src: rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)}
	}

	dt := float64(shape.Width) / float64(windowSize)
	base := make([]float64, windowSize+1)
	for k := range base {
		base[k] = dt * float64(k)
	}
	xs := make([]float64, windowSize+1)
	ys := make([]float64, windowSize+1)
	ix := make([]int, windowSize+1)
	iy := make([]int, windowSize+1)

	for start := opts.Offset; start+windowSize < len(signal); start += windowSize {
		window := signal[start : start+windowSize+1]
		copy(xs, base)
		copy(ys, window)

		if jitter != nil {
			if err := fuzzWindow(base, window, xs, ys, dt, jitter); err != nil {
				return nil, fmt.Errorf("fuzz window at %d: %w", start, err)
			}
			// The spline overflows on extreme samples; count the window as sampled.
			if !allFinite(ys) {
				copy(xs, base)
				copy(ys, window)
			}
		}

		for k := range xs {
			ix[k] = int(math.Floor(xs[k]))
			iy[k] = g.row(ys[k])
		}
		g.addCurve(ix, iy)
		g.Windows++
	}

	return g, nil
}

// fuzzWindow fits a cubic spline through (base, window), jitters the
// interior phases in xs by dt*(Beta(3,3)-0.5) and fills ys with the spline
// evaluated at the jittered phases. The endpoints stay put so windows
// still join.
func fuzzWindow(base, window, xs, ys []float64, dt float64, jitter *distuv.Beta) error {
	var spline interp.NaturalCubic
	if err := spline.Fit(base, window); err != nil {
		return err
	}
	for k := 1; k < len(xs)-1; k++ {
		xs[k] += dt * (jitter.Rand() - 0.5)
	}
	for k := range xs {
		ys[k] = spline.Predict(xs[k])
	}
	return nil
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// row maps an amplitude to its bin index. Out-of-range values map outside
// [0, Height) and are clamped to a few grid heights so line drawing toward
// them stays bounded. NaN maps below the grid.
func (g *Grid) row(y float64) int {
	h := float64(g.Shape.Height)
	r := math.Floor(h * (y - g.Bounds.Min) / g.Bounds.Span())
	lo, hi := -2*h, 3*h
	switch {
	case math.IsNaN(r), r < lo:
		r = lo
	case r > hi:
		r = hi
	}
	return int(r)
}

func (g *Grid) inc(x, y int) {
	if x < 0 || x >= g.Shape.Width || y < 0 || y >= g.Shape.Height {
		return
	}
	g.counts[x*g.Shape.Height+y]++
}

// addCurve draws the polyline through the given points. Shared vertices
// are counted once.
func (g *Grid) addCurve(xs, ys []int) {
	if len(xs) == 0 {
		return
	}
	for k := 0; k+1 < len(xs); k++ {
		g.addSegment(xs[k], ys[k], xs[k+1], ys[k+1])
	}
	last := len(xs) - 1
	g.inc(xs[last], ys[last])
}

// addSegment counts each cell on the Bresenham line from (x0, y0) up to
// but not including (x1, y1).
func (g *Grid) addSegment(x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for x0 != x1 || y0 != y1 {
		g.inc(x0, y0)
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// At returns the count in phase bin x and amplitude bin y.
func (g *Grid) At(x, y int) int {
	if x < 0 || x >= g.Shape.Width || y < 0 || y >= g.Shape.Height {
		return 0
	}
	return g.counts[x*g.Shape.Height+y]
}

// Max returns the largest bin count.
func (g *Grid) Max() int {
	m := 0
	for _, c := range g.counts {
		if c > m {
			m = c
		}
	}
	return m
}

// Total returns the sum of all bin counts.
func (g *Grid) Total() int {
	t := 0
	for _, c := range g.counts {
		t += c
	}
	return t
}

// Image returns the counts as a Height x Width matrix oriented for display:
// row 0 is the highest amplitude bin and empty bins are NaN.
func (g *Grid) Image() [][]float64 {
	h, w := g.Shape.Height, g.Shape.Width
	img := make([][]float64, h)
	for i := range img {
		row := make([]float64, w)
		y := h - 1 - i
		for x := 0; x < w; x++ {
			row[x] = g.Z(x, y)
		}
		img[i] = row
	}
	return img
}

// Dims, Z, X and Y implement gonum.org/v1/plot/plotter.GridXYZ with the
// phase axis in samples and the amplitude axis in signal units.

// Dims returns the number of phase and amplitude bins.
func (g *Grid) Dims() (c, r int) {
	return g.Shape.Width, g.Shape.Height
}

// Z returns the count in the bin, or NaN when it is empty.
func (g *Grid) Z(c, r int) float64 {
	n := g.At(c, r)
	if n == 0 {
		return math.NaN()
	}
	return float64(n)
}

// X returns the phase, in samples, at the centre of column c.
func (g *Grid) X(c int) float64 {
	return (float64(c) + 0.5) * float64(g.WindowSize) / float64(g.Shape.Width)
}

// Y returns the amplitude at the centre of row r.
func (g *Grid) Y(r int) float64 {
	return g.Bounds.Min + (float64(r)+0.5)*g.Bounds.Span()/float64(g.Shape.Height)
}
