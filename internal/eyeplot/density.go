package eyeplot

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/banshee-data/eyediagram/internal/eye"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
)

// paletteSize is the number of discrete colours in heat-map palettes.
const paletteSize = 255

// DensityOptions controls Density.
type DensityOptions struct {
	Offset         int
	ColorBar       bool
	DarkBackground bool
	// BinShape defaults to eye.DefaultShape.
	BinShape *eye.Shape
	// ValueBounds defaults to the signal range padded by 5%.
	ValueBounds *eye.Bounds
	// ColorMap names one of ColorMaps. Empty selects DefaultColorMap.
	ColorMap string
	NoFuzz   bool
	Seed     uint64
}

// DefaultDensityOptions returns options with the colorbar enabled.
func DefaultDensityOptions() DensityOptions {
	return DensityOptions{ColorBar: true}
}

// DefaultColorMap is used when DensityOptions.ColorMap is empty.
const DefaultColorMap = "kindlmann"

var colorMaps = map[string]func() palette.ColorMap{
	"kindlmann":          moreland.Kindlmann,
	"extended-kindlmann": moreland.ExtendedKindlmann,
	"blackbody":          moreland.BlackBody,
	"extended-blackbody": moreland.ExtendedBlackBody,
	"smooth-blue-red": func() palette.ColorMap {
		return moreland.SmoothBlueRed()
	},
}

// ColorMaps lists the accepted colour map names.
func ColorMaps() []string {
	names := make([]string, 0, len(colorMaps))
	for name := range colorMaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewColorMap returns the named colour map scaled to [min, max].
func NewColorMap(name string, min, max float64) (palette.ColorMap, error) {
	if name == "" {
		name = DefaultColorMap
	}
	ctor, ok := colorMaps[name]
	if !ok {
		return nil, fmt.Errorf("unknown color map %q", name)
	}
	cm := ctor()
	cm.SetMin(min)
	cm.SetMax(max)
	return cm, nil
}

// Density draws an eye diagram on fig as a heat map of how often the
// signal passes through each (phase, amplitude) bin. Empty bins are left
// transparent. It returns the grid that was drawn.
func Density(fig *Figure, signal []float64, windowSize int, opts DensityOptions) (*eye.Grid, error) {
	g, err := eye.GridCount(signal, windowSize, eye.GridOptions{
		Offset: opts.Offset,
		Shape:  opts.BinShape,
		Bounds: opts.ValueBounds,
		Fuzz:   !opts.NoFuzz,
		Seed:   opts.Seed,
	})
	if err != nil {
		return nil, err
	}

	maxCount := float64(g.Max())
	if maxCount < 1 {
		maxCount = 1
	}
	cm, err := NewColorMap(opts.ColorMap, 0, maxCount)
	if err != nil {
		return nil, err
	}

	p := fig.Plot
	hm := plotter.NewHeatMap(g, cm.Palette(paletteSize))
	hm.Min = 0
	hm.Max = maxCount
	hm.NaN = color.Transparent
	p.Add(hm)

	grid := plotter.NewGrid()
	if opts.DarkBackground {
		styleDark(p)
		grid.Vertical.Color = color.White
		grid.Horizontal.Color = color.White
	}
	p.Add(grid)
	labelAxes(p)

	if opts.ColorBar {
		fig.ColorBar = newColorBar(cm, opts.DarkBackground)
	} else {
		fig.ColorBar = nil
	}

	return g, nil
}

func newColorBar(cm palette.ColorMap, dark bool) *plot.Plot {
	cb := plot.New()
	cb.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true, Colors: paletteSize})
	cb.HideX()
	cb.Y.Padding = 0
	cb.Y.Label.Text = "Count"
	if dark {
		styleDark(cb)
	}
	return cb
}

func styleDark(p *plot.Plot) {
	p.BackgroundColor = color.Black
	p.Title.TextStyle.Color = color.White
	for _, ax := range []*plot.Axis{&p.X, &p.Y} {
		ax.Color = color.White
		ax.Label.TextStyle.Color = color.White
		ax.Tick.Label.Color = color.White
		ax.Tick.Color = color.White
	}
}
