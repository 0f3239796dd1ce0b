package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/banshee-data/eyediagram/internal/capture"
	"github.com/banshee-data/eyediagram/internal/config"
	"github.com/banshee-data/eyediagram/internal/eye"
	"github.com/banshee-data/eyediagram/internal/eyechart"
	"github.com/banshee-data/eyediagram/internal/eyeplot"
	"github.com/banshee-data/eyediagram/internal/httputil"
	"github.com/banshee-data/eyediagram/internal/security"
)

var contentTypes = map[string]string{
	"png":  "image/png",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"html": "text/html; charset=utf-8",
	"csv":  "text/csv; charset=utf-8",
}

// handleView serves the renderings of a capture: {eye,lines}.{png,svg,pdf,html}
// and samples.csv.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	view := r.PathValue("view")
	ext := path.Ext(view)
	kind, format := strings.TrimSuffix(view, ext), strings.TrimPrefix(ext, ".")
	contentType, ok := contentTypes[format]
	if !ok || (kind != "eye" && kind != "lines" && kind != "samples") || (kind == "samples") != (format == "csv") {
		httputil.NotFound(w, fmt.Sprintf("unknown view %q", view))
		return
	}

	c, ok := s.loadCapture(w, r.PathValue("id"))
	if !ok {
		return
	}
	base := c.Name
	if base == "" {
		base = c.ID
	}
	disposition := fmt.Sprintf("inline; filename=%q", security.SanitizeFilename(base)+"-"+kind+"."+format)

	if kind == "samples" {
		w.Header().Set("Content-Disposition", disposition)
		httputil.WriteRendered(w, contentType, func(out io.Writer) error {
			return capture.WriteText(out, c.Samples)
		})
		return
	}

	stored, err := storedConfig(c)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	query, err := config.ParseRenderValues(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	cfg := s.defaults.Merge(stored).Merge(query)
	if err := cfg.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	window := cfg.GetWindowSize()
	if window <= 0 {
		httputil.BadRequest(w, "window size is required: pass ?window= or store a render config")
		return
	}

	if format == "html" {
		page := eyechart.Page{Title: c.Name}
		w.Header().Set("Content-Disposition", disposition)
		httputil.WriteRendered(w, contentType, func(out io.Writer) error {
			var err error
			if kind == "eye" {
				_, err = eyechart.Density(out, c.Samples, window, cfg.ChartDensityOptions(page))
			} else {
				_, err = eyechart.Lines(out, c.Samples, window, cfg.ChartLineOptions(page))
			}
			return err
		})
		return
	}

	fig := eyeplot.NewFigure()
	if c.Name != "" {
		fig.Plot.Title.Text = c.Name
	}
	if kind == "eye" {
		_, err = eyeplot.Density(fig, c.Samples, window, cfg.DensityOptions())
	} else {
		_, err = eyeplot.Lines(fig.Plot, c.Samples, window, cfg.LineOptions())
	}
	if err != nil {
		if isInputError(err) {
			httputil.BadRequest(w, err.Error())
		} else {
			httputil.InternalServerError(w, err.Error())
		}
		return
	}

	width, height := cfg.GetSize()
	w.Header().Set("Content-Disposition", disposition)
	httputil.WriteRendered(w, contentType, func(out io.Writer) error {
		wt, err := fig.WriterTo(width, height, format)
		if err != nil {
			return err
		}
		_, err = wt.WriteTo(out)
		return err
	})
}

func isInputError(err error) bool {
	for _, target := range []error{
		eye.ErrInvalidWindow, eye.ErrInvalidOffset, eye.ErrEmptySignal,
		eye.ErrInvalidShape, eye.ErrInvalidBounds, eye.ErrNonFinite,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
