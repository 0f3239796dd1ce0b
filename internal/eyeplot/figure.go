// Package eyeplot renders eye diagrams with gonum/plot.
package eyeplot

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/eyediagram/internal/fsutil"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// colorBarFraction is the share of the figure width given to the colorbar.
const colorBarFraction = 0.12

// Figure is a drawing surface made of a main plot and an optional colorbar
// plot laid out to its right.
type Figure struct {
	Plot     *plot.Plot
	ColorBar *plot.Plot
}

// NewFigure returns a figure with an empty main plot and no colorbar.
func NewFigure() *Figure {
	return &Figure{Plot: plot.New()}
}

// Draw draws the figure onto dc.
func (f *Figure) Draw(dc draw.Canvas) {
	if f.ColorBar == nil {
		f.Plot.Draw(dc)
		return
	}

	split := dc.Min.X + (dc.Max.X-dc.Min.X)*vg.Length(1-colorBarFraction)
	main := draw.Canvas{
		Canvas: dc,
		Rectangle: vg.Rectangle{
			Min: dc.Min,
			Max: vg.Point{X: split, Y: dc.Max.Y},
		},
	}
	bar := draw.Canvas{
		Canvas: dc,
		Rectangle: vg.Rectangle{
			Min: vg.Point{X: split, Y: dc.Min.Y},
			Max: dc.Max,
		},
	}
	f.Plot.Draw(main)
	f.ColorBar.Draw(bar)
}

// WriterTo returns an io.WriterTo that writes the figure in the given
// format (png, svg, pdf, eps, jpg, tif).
func (f *Figure) WriterTo(width, height vg.Length, format string) (io.WriterTo, error) {
	c, err := draw.NewFormattedCanvas(width, height, format)
	if err != nil {
		return nil, err
	}
	f.Draw(draw.New(c))
	return c, nil
}

// Save writes the figure to path on fsys, choosing the format from its
// extension.
func (f *Figure) Save(fsys fsutil.FileSystem, width, height vg.Length, path string) (err error) {
	format := FormatFromPath(path)
	wt, err := f.WriterTo(width, height, format)
	if err != nil {
		return fmt.Errorf("create %s canvas: %w", format, err)
	}

	out, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err = wt.WriteTo(out); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// FormatFromPath returns the lower-cased file extension without the dot.
func FormatFromPath(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
