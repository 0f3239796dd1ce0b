package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/eyediagram/internal/capture"
	"github.com/banshee-data/eyediagram/internal/config"
	"github.com/banshee-data/eyediagram/internal/db"
	"github.com/banshee-data/eyediagram/internal/httputil"
)

func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listCaptures(w, r)
	case http.MethodPost:
		s.createCapture(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleCaptureByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		c, ok := s.loadCapture(w, id)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		if err := s.store.DeleteCapture(id); err != nil {
			s.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	captures, err := s.store.ListCaptures(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list captures: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, captures)
}

// createCapture stores the request body as a new capture. The body is text
// with one sample per line (or CSV, with ?column= and ?comma=), or raw
// little-endian samples when ?encoding= names a binary encoding.
func (s *Server) createCapture(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)

	var (
		samples []float64
		err     error
	)
	if enc := q.Get("encoding"); enc != "" {
		var raw []byte
		raw, err = io.ReadAll(body)
		if err == nil {
			samples, err = capture.DecodeSamples(raw, capture.Encoding(enc))
		}
		if err == nil && len(samples) == 0 {
			err = capture.ErrNoSamples
		}
	} else {
		opts, oerr := textOptions(q)
		if oerr != nil {
			httputil.BadRequest(w, oerr.Error())
			return
		}
		samples, err = capture.ReadText(body, opts)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		httputil.BadRequest(w, fmt.Sprintf("invalid capture body: %v", err))
		return
	}
	c, err := captureFromQuery(q, samples, "upload")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := s.store.InsertCapture(c); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to store capture: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func textOptions(q url.Values) (capture.TextOptions, error) {
	opts := capture.TextOptions{}
	if c := q.Get("column"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			return opts, errors.New("invalid 'column' parameter")
		}
		opts.Column = n
	}
	if c := q.Get("comma"); c != "" {
		if len([]rune(c)) != 1 {
			return opts, errors.New("'comma' must be a single character")
		}
		opts.Comma = []rune(c)[0]
	}
	return opts, nil
}

// captureFromQuery builds a capture from samples and the metadata
// parameters name, source, sample_rate and window.
func captureFromQuery(q url.Values, samples []float64, defaultSource string) (*db.Capture, error) {
	if err := capture.CheckFinite(samples); err != nil {
		return nil, err
	}

	c := &db.Capture{
		Name:    q.Get("name"),
		Source:  q.Get("source"),
		Samples: samples,
	}
	if c.Source == "" {
		c.Source = defaultSource
	}
	if sr := q.Get("sample_rate"); sr != "" {
		v, err := strconv.ParseFloat(sr, 64)
		if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, errors.New("invalid 'sample_rate' parameter")
		}
		c.SampleRate = v
	}
	if ws := q.Get("window"); ws != "" {
		n, err := strconv.Atoi(ws)
		if err != nil || n < 1 {
			return nil, errors.New("invalid 'window' parameter")
		}
		c.RenderConfig = fmt.Sprintf(`{"window_size":%d}`, n)
	}
	return c, nil
}

// handleRenderConfig reads or replaces the render config stored with a
// capture.
func (s *Server) handleRenderConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		c, ok := s.loadCapture(w, id)
		if !ok {
			return
		}
		cfg, err := storedConfig(c)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if _, err := config.ParseRenderConfig(raw); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.store.SetRenderConfig(id, strings.TrimSpace(string(raw))); err != nil {
			s.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) loadCapture(w http.ResponseWriter, id string) (*db.Capture, bool) {
	c, err := s.store.GetCapture(id)
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}
	return c, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

func storedConfig(c *db.Capture) (*config.RenderConfig, error) {
	if strings.TrimSpace(c.RenderConfig) == "" {
		return config.EmptyRenderConfig(), nil
	}
	cfg, err := config.ParseRenderConfig([]byte(c.RenderConfig))
	if err != nil {
		return nil, fmt.Errorf("capture %s: stored render config: %w", c.ID, err)
	}
	return cfg, nil
}
