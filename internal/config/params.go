package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/eyediagram/internal/eye"
)

// ParseRenderValues reads render settings from URL query parameters or
// command-line flags with the same names:
//
//	window, offset   ints
//	bins             HxW, e.g. 400x320
//	bounds           min,max
//	colorbar, dark   booleans
//	fuzz             boolean
//	cmap             colour map name
//	seed             uint64
//	size             WxH in inches, e.g. 8x6
//
// Only parameters that are present are set on the result.
func ParseRenderValues(q url.Values) (*RenderConfig, error) {
	cfg := EmptyRenderConfig()

	intParam := func(name string, dst **int) error {
		v := q.Get(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid '%s' parameter %q", name, v)
		}
		*dst = &n
		return nil
	}
	boolParam := func(name string, dst **bool) error {
		v := q.Get(name)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid '%s' parameter %q", name, v)
		}
		*dst = &b
		return nil
	}

	for _, p := range []struct {
		name string
		dst  **int
	}{{"window", &cfg.WindowSize}, {"offset", &cfg.Offset}} {
		if err := intParam(p.name, p.dst); err != nil {
			return nil, err
		}
	}
	for _, p := range []struct {
		name string
		dst  **bool
	}{{"colorbar", &cfg.ColorBar}, {"dark", &cfg.DarkBackground}, {"fuzz", &cfg.Fuzz}} {
		if err := boolParam(p.name, p.dst); err != nil {
			return nil, err
		}
	}

	if v := q.Get("bins"); v != "" {
		h, wd, err := parsePair(v, "x")
		if err != nil {
			return nil, fmt.Errorf("invalid 'bins' parameter %q: want HxW", v)
		}
		if h < 1 || wd < 1 || h > eye.MaxBins || wd > eye.MaxBins {
			return nil, fmt.Errorf("invalid 'bins' parameter %q: each side must be 1..%d", v, eye.MaxBins)
		}
		hi, wi := int(h), int(wd)
		if float64(hi) != h || float64(wi) != wd {
			return nil, fmt.Errorf("invalid 'bins' parameter %q: want integers", v)
		}
		cfg.BinHeight, cfg.BinWidth = &hi, &wi
	}
	if v := q.Get("bounds"); v != "" {
		lo, hi, err := parsePair(v, ",")
		if err != nil {
			return nil, fmt.Errorf("invalid 'bounds' parameter %q: want min,max", v)
		}
		cfg.ValueMin, cfg.ValueMax = &lo, &hi
	}
	if v := q.Get("size"); v != "" {
		wd, h, err := parsePair(v, "x")
		if err != nil {
			return nil, fmt.Errorf("invalid 'size' parameter %q: want WxH inches", v)
		}
		cfg.WidthInches, cfg.HeightInches = &wd, &h
	}
	if v := q.Get("cmap"); v != "" {
		cfg.ColorMap = &v
	}
	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid 'seed' parameter %q", v)
		}
		cfg.Seed = &seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parsePair(v, sep string) (float64, float64, error) {
	a, b, ok := strings.Cut(v, sep)
	if !ok {
		return 0, 0, fmt.Errorf("missing %q", sep)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
