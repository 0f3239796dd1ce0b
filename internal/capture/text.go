// Package capture loads sampled signals from text files, serial devices
// and packet captures.
package capture

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/eyediagram/internal/eye"
	"github.com/banshee-data/eyediagram/internal/fsutil"
)

// ErrNoSamples is returned when a source yields no numeric samples.
var ErrNoSamples = errors.New("no samples found")

// TextOptions controls ReadText.
type TextOptions struct {
	// Column is the zero-based CSV field holding the sample value.
	Column int
	// Comma is the field separator; it defaults to ','.
	Comma rune
}

// ReadText parses one sample per record. Records are CSV lines; blank
// lines and lines starting with '#' are ignored. A first record whose
// selected field is not numeric is treated as a header.
func ReadText(r io.Reader, opts TextOptions) ([]float64, error) {
	if opts.Column < 0 {
		return nil, fmt.Errorf("column must be non-negative, got %d", opts.Column)
	}

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	var samples []float64
	for record := 0; ; record++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", record+1, err)
		}
		if opts.Column >= len(fields) {
			return nil, fmt.Errorf("record %d has %d fields, want column %d", record+1, len(fields), opts.Column)
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(fields[opts.Column]), 64)
		if err != nil {
			if record == 0 {
				continue
			}
			line, _ := cr.FieldPos(opts.Column)
			return nil, fmt.Errorf("line %d: invalid sample %q: %w", line, fields[opts.Column], err)
		}
		samples = append(samples, v)
	}

	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	return samples, nil
}

// CheckFinite returns an error wrapping eye.ErrNonFinite for the first NaN
// or Inf in samples.
func CheckFinite(samples []float64) error {
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: sample %d is %v", eye.ErrNonFinite, i, v)
		}
	}
	return nil
}

// LoadFile reads samples from a text or CSV file on fsys.
func LoadFile(fsys fsutil.FileSystem, path string, opts TextOptions) ([]float64, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signal file: %w", err)
	}
	defer f.Close()

	samples, err := ReadText(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// WriteText writes one sample per line in a form ReadText accepts, using
// the shortest representation that round-trips.
func WriteText(w io.Writer, samples []float64) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)
	for _, v := range samples {
		buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
