package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/eyediagram/internal/capture"
	"github.com/banshee-data/eyediagram/internal/db"
	"github.com/banshee-data/eyediagram/internal/eye"
	"github.com/banshee-data/eyediagram/internal/httputil"
)

// ErrRecorderBusy is returned when a recording is already in progress.
var ErrRecorderBusy = errors.New("a recording is already in progress")

// SerialOpener opens the recording device. It is injected so tests and
// alternative runtime modes can supply their own port.
type SerialOpener func(path string, opts capture.PortOptions) (capture.SerialPorter, error)

// SerialSource describes the device a Recorder reads from.
type SerialSource struct {
	PortPath string              `json:"port_path"`
	Options  capture.PortOptions `json:"options"`
}

// Recorder records samples from a serial device into the capture store,
// one recording at a time.
type Recorder struct {
	mu     sync.Mutex
	source SerialSource
	open   SerialOpener
	store  CaptureStore
}

// NewRecorder returns a recorder for source. The port options are
// normalized here so a bad configuration fails at startup.
func NewRecorder(store CaptureStore, source SerialSource, open SerialOpener) (*Recorder, error) {
	opts, err := source.Options.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid serial configuration: %w", err)
	}
	source.Options = opts
	return &Recorder{source: source, open: open, store: store}, nil
}

// Source returns the configured device.
func (rec *Recorder) Source() SerialSource {
	return rec.source
}

// Record opens the device, reads until limit samples arrive or timeout
// elapses, and stores the result. Hitting the timeout with some samples
// read is not an error.
func (rec *Recorder) Record(ctx context.Context, name string, limit int, timeout time.Duration) (*db.Capture, error) {
	if !rec.mu.TryLock() {
		return nil, ErrRecorderBusy
	}
	defer rec.mu.Unlock()

	port, err := rec.open(rec.source.PortPath, rec.source.Options)
	if err != nil {
		return nil, err
	}
	defer port.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	samples, err := capture.RecordSerial(ctx, port, limit)
	if err != nil && !(errors.Is(err, context.DeadlineExceeded) && len(samples) > 0) {
		return nil, err
	}
	if err := capture.CheckFinite(samples); err != nil {
		return nil, err
	}

	c := &db.Capture{
		Name:    name,
		Source:  "serial:" + rec.source.PortPath,
		Samples: samples,
	}
	if err := rec.store.InsertCapture(c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRecorder enables the /api/record endpoint.
func (s *Server) SetRecorder(rec *Recorder) {
	s.recorder = rec
}

// handleRecord reports the recording source on GET and records a new
// capture on POST (?limit=, ?timeout=, ?name=).
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		httputil.NotFound(w, "recording is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSON(w, http.StatusOK, s.recorder.Source())
	case http.MethodPost:
		q := r.URL.Query()
		limit := 0
		if l := q.Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 1 {
				httputil.BadRequest(w, "invalid 'limit' parameter")
				return
			}
			limit = n
		}
		timeout := 10 * time.Second
		if t := q.Get("timeout"); t != "" {
			d, err := time.ParseDuration(t)
			if err != nil || d <= 0 {
				httputil.BadRequest(w, "invalid 'timeout' parameter")
				return
			}
			timeout = d
		}

		c, err := s.recorder.Record(r.Context(), q.Get("name"), limit, timeout)
		switch {
		case errors.Is(err, ErrRecorderBusy):
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, capture.ErrNoSamples), errors.Is(err, context.DeadlineExceeded):
			httputil.WriteJSONError(w, http.StatusGatewayTimeout, "no samples received")
		case errors.Is(err, eye.ErrNonFinite):
			httputil.WriteJSONError(w, http.StatusBadGateway, fmt.Sprintf("device sent an invalid sample: %v", err))
		case err != nil:
			httputil.InternalServerError(w, fmt.Sprintf("recording failed: %v", err))
		default:
			httputil.WriteJSON(w, http.StatusCreated, c)
		}
	default:
		httputil.MethodNotAllowed(w)
	}
}
