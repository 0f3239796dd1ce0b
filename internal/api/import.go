package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/eyediagram/internal/capture"
	"github.com/banshee-data/eyediagram/internal/httputil"
	"github.com/banshee-data/eyediagram/internal/security"
)

// SetDataDir enables POST /api/captures/import for files under dir.
func (s *Server) SetDataDir(dir string) {
	s.dataDir = dir
}

// handleImport stores a file from the data directory as a new capture.
// ?file= names it relative to the directory. Files ending in .pcap or
// .pcapng are read as packet captures (?port=, ?encoding=, ?scale=); any
// other file as text (?column=, ?comma=).
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.dataDir == "" {
		httputil.NotFound(w, "no data directory configured")
		return
	}
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	name := q.Get("file")
	path, err := security.ResolveWithin(s.dataDir, name)
	if err != nil {
		if errors.Is(err, security.ErrOutsideDirectory) {
			httputil.WriteJSONError(w, http.StatusForbidden, err.Error())
		} else {
			httputil.BadRequest(w, err.Error())
		}
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.NotFound(w, fmt.Sprintf("file %q not found", name))
		} else {
			httputil.InternalServerError(w, err.Error())
		}
		return
	}
	defer f.Close()

	var samples []float64
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng":
		opts := capture.PCAPOptions{Encoding: capture.Encoding(q.Get("encoding"))}
		if p := q.Get("port"); p != "" {
			if opts.Port, err = strconv.Atoi(p); err != nil || opts.Port < 0 || opts.Port > 65535 {
				httputil.BadRequest(w, "invalid 'port' parameter")
				return
			}
		}
		if sc := q.Get("scale"); sc != "" {
			if opts.Scale, err = strconv.ParseFloat(sc, 64); err != nil {
				httputil.BadRequest(w, "invalid 'scale' parameter")
				return
			}
		}
		samples, err = capture.ReadPCAP(f, opts)
	default:
		opts, oerr := textOptions(q)
		if oerr != nil {
			httputil.BadRequest(w, oerr.Error())
			return
		}
		samples, err = capture.ReadText(f, opts)
	}
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid capture file %q: %v", name, err))
		return
	}

	if q.Get("name") == "" {
		q.Set("name", filepath.Base(path))
	}
	c, err := captureFromQuery(q, samples, "file:"+filepath.ToSlash(filepath.Clean(name)))
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
