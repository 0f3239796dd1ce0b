// Package api serves stored captures and renders their eye diagrams over
// HTTP.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/eyediagram/internal/config"
	"github.com/banshee-data/eyediagram/internal/db"
	"github.com/banshee-data/eyediagram/internal/eyeplot"
	"github.com/banshee-data/eyediagram/internal/httputil"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultMaxUploadBytes bounds the body of a capture upload.
const DefaultMaxUploadBytes = 64 << 20

// CaptureStore is the subset of *db.DB the server uses.
type CaptureStore interface {
	InsertCapture(c *db.Capture) error
	GetCapture(id string) (*db.Capture, error)
	ListCaptures(limit int) ([]db.Capture, error)
	DeleteCapture(id string) error
	SetRenderConfig(id, cfg string) error
}

type Server struct {
	store    CaptureStore
	defaults *config.RenderConfig
	recorder *Recorder
	dataDir  string

	// MaxUploadBytes limits POST /api/captures bodies.
	MaxUploadBytes int64
}

// NewServer returns a server backed by store. defaults supplies render
// settings not given by a capture's stored config or the request; nil
// means config.DefaultRenderConfig().
func NewServer(store CaptureStore, defaults *config.RenderConfig) *Server {
	if defaults == nil {
		defaults = config.DefaultRenderConfig()
	}
	return &Server{
		store:          store,
		defaults:       defaults,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/record", s.handleRecord)
	mux.HandleFunc("/api/captures", s.handleCaptures)
	mux.HandleFunc("/api/captures/import", s.handleImport)
	mux.HandleFunc("/api/captures/{id}", s.handleCaptureByID)
	mux.HandleFunc("/api/captures/{id}/render_config", s.handleRenderConfig)
	mux.HandleFunc("/api/captures/{id}/{view}", s.handleView)
	return mux
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"defaults":   s.defaults,
		"color_maps": eyeplot.ColorMaps(),
	})
}
