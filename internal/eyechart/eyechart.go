// Package eyechart renders eye diagrams as interactive HTML pages using
// go-echarts.
package eyechart

import (
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/eyediagram/internal/eye"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// viridis is the colour ramp used for the density visual map.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Page holds page-level settings shared by both chart kinds.
type Page struct {
	Title  string
	Width  string
	Height string
	// AssetsHost overrides where echarts.min.js is loaded from.
	AssetsHost string
}

func (p Page) initOpts(dark bool) opts.Initialization {
	o := opts.Initialization{
		PageTitle:  p.Title,
		Width:      p.Width,
		Height:     p.Height,
		AssetsHost: p.AssetsHost,
	}
	if o.PageTitle == "" {
		o.PageTitle = "Eye Diagram"
	}
	if o.Width == "" {
		o.Width = "900px"
	}
	if o.Height == "" {
		o.Height = "600px"
	}
	if dark {
		o.Theme = "dark"
	}
	return o
}

// LineOptions controls Lines.
type LineOptions struct {
	Page
	Offset int
	// Color is any CSS colour; it defaults to a translucent black.
	Color string
	Dark  bool
}

// Lines writes an HTML page overlaying one line series per window and
// returns the number of series.
func Lines(w io.Writer, signal []float64, windowSize int, o LineOptions) (int, error) {
	segs, err := eye.Segments(signal, windowSize, o.Offset)
	if err != nil {
		return 0, err
	}

	c := o.Color
	if c == "" {
		c = "rgba(0,0,0,0.35)"
		if o.Dark {
			c = "rgba(255,255,255,0.35)"
		}
	}

	longest := 0
	for _, s := range segs {
		longest = max(longest, len(s.Samples))
	}
	xs := make([]string, longest)
	for i := range xs {
		xs[i] = strconv.Itoa(i)
	}

	pageOpts := o.Page.initOpts(o.Dark)
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(pageOpts),
		charts.WithTitleOpts(opts.Title{Title: pageOpts.PageTitle, Subtitle: fmt.Sprintf("window=%d offset=%d traces=%d", windowSize, o.Offset, len(segs))}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Phase (samples)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Amplitude", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(xs)

	for _, s := range segs {
		data := make([]opts.LineData, len(s.Samples))
		for i, v := range s.Samples {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(fmt.Sprintf("w%d", s.Start), data,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: c}),
		)
	}

	if err := line.Render(w); err != nil {
		return 0, fmt.Errorf("failed to render chart: %w", err)
	}
	return len(segs), nil
}

// DensityOptions controls Density.
type DensityOptions struct {
	Page
	Offset      int
	ColorBar    bool
	Dark        bool
	BinShape    *eye.Shape
	ValueBounds *eye.Bounds
	NoFuzz      bool
	Seed        uint64
}

// Density writes an HTML page showing the occupancy grid of signal as
// coloured cells. Empty bins are omitted. It returns the grid.
func Density(w io.Writer, signal []float64, windowSize int, o DensityOptions) (*eye.Grid, error) {
	g, err := eye.GridCount(signal, windowSize, eye.GridOptions{
		Offset: o.Offset,
		Shape:  o.BinShape,
		Bounds: o.ValueBounds,
		Fuzz:   !o.NoFuzz,
		Seed:   o.Seed,
	})
	if err != nil {
		return nil, err
	}

	cols, rows := g.Dims()
	data := make([]opts.ScatterData, 0)
	for x := 0; x < cols; x++ {
		for y := 0; y < rows; y++ {
			if n := g.At(x, y); n > 0 {
				data = append(data, opts.ScatterData{Value: []interface{}{g.X(x), g.Y(y), n}})
			}
		}
	}

	maxCount := g.Max()
	if maxCount == 0 {
		maxCount = 1
	}

	pageOpts := o.Page.initOpts(o.Dark)
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(pageOpts),
		charts.WithTitleOpts(opts.Title{Title: pageOpts.PageTitle, Subtitle: fmt.Sprintf("window=%d bins=%dx%d windows=%d", windowSize, rows, cols, g.Windows)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0.0, Max: float64(windowSize), Name: "Phase (samples)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: g.Bounds.Min, Max: g.Bounds.Max, Name: "Amplitude", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(o.ColorBar),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxCount),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("density", data, charts.WithScatterChartOpts(cellStyle(cols, rows)))

	if err := scatter.Render(w); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return g, nil
}

// cellStyle picks a marker size so that neighbouring bins roughly touch in
// a 900x600 chart.
func cellStyle(cols, rows int) opts.ScatterChart {
	s := 800 / cols
	if v := 500 / rows; v < s {
		s = v
	}
	switch {
	case s >= 8:
		return opts.ScatterChart{SymbolSize: 8}
	case s >= 4:
		return opts.ScatterChart{SymbolSize: 4}
	case s >= 2:
		return opts.ScatterChart{SymbolSize: 2}
	default:
		return opts.ScatterChart{SymbolSize: 1}
	}
}
