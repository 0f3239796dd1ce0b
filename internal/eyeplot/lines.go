package eyeplot

import (
	"fmt"
	"image/color"

	"github.com/banshee-data/eyediagram/internal/eye"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// LineOptions controls Lines.
type LineOptions struct {
	Offset int
	// Color defaults to black, or white with DarkBackground. Use a
	// translucent colour to see overlap.
	Color color.Color
	// Width defaults to half a point.
	Width  vg.Length
	Dashes []vg.Length

	DarkBackground bool
}

// DefaultLineWidth is the trace width used when LineOptions.Width is zero.
var DefaultLineWidth = vg.Points(0.5)

// Lines draws an eye diagram on p by overlaying one line per window of
// windowSize samples, starting at opts.Offset. Each trace runs from x=0 to
// x=len(window)-1. It returns the number of traces drawn.
func Lines(p *plot.Plot, signal []float64, windowSize int, opts LineOptions) (int, error) {
	segs, err := eye.Segments(signal, windowSize, opts.Offset)
	if err != nil {
		return 0, err
	}

	c := opts.Color
	if c == nil {
		c = color.Black
		if opts.DarkBackground {
			c = color.White
		}
	}
	w := opts.Width
	if w == 0 {
		w = DefaultLineWidth
	}

	for _, s := range segs {
		pts := make(plotter.XYs, len(s.Samples))
		for i, v := range s.Samples {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return 0, fmt.Errorf("segment at %d: %w", s.Start, err)
		}
		line.Color = c
		line.Width = w
		line.Dashes = opts.Dashes
		p.Add(line)
	}

	if opts.DarkBackground {
		styleDark(p)
	}
	labelAxes(p)
	return len(segs), nil
}

func labelAxes(p *plot.Plot) {
	if p.X.Label.Text == "" {
		p.X.Label.Text = "Phase (samples)"
	}
	if p.Y.Label.Text == "" {
		p.Y.Label.Text = "Amplitude"
	}
}
