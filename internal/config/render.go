package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/banshee-data/eyediagram/internal/eye"
	"github.com/banshee-data/eyediagram/internal/eyechart"
	"github.com/banshee-data/eyediagram/internal/eyeplot"
	"gonum.org/v1/plot/vg"
)

const (
	// DefaultLineWidth is the trace width in points.
	DefaultLineWidth = 0.5
	// DefaultWidthInches and DefaultHeightInches size rendered figures.
	DefaultWidthInches  = 8.0
	DefaultHeightInches = 6.0
	// MaxFigureInches bounds either side of a rendered figure.
	MaxFigureInches = 64.0

	maxFileSize = 1 * 1024 * 1024 // 1MB
)

// RenderConfig holds the settings used to draw an eye diagram. Every field
// is optional; the Get* methods supply defaults for unset fields, so the
// same JSON document works as a full config file or as a partial override.
type RenderConfig struct {
	WindowSize *int `json:"window_size,omitempty"`
	Offset     *int `json:"offset,omitempty"`

	// Density grid
	BinHeight *int     `json:"bin_height,omitempty"`
	BinWidth  *int     `json:"bin_width,omitempty"`
	ValueMin  *float64 `json:"value_min,omitempty"`
	ValueMax  *float64 `json:"value_max,omitempty"`
	Fuzz      *bool    `json:"fuzz,omitempty"`
	Seed      *uint64  `json:"seed,omitempty"`

	// Appearance
	ColorBar       *bool    `json:"colorbar,omitempty"`
	DarkBackground *bool    `json:"dark_background,omitempty"`
	ColorMap       *string  `json:"color_map,omitempty"`
	LineWidth      *float64 `json:"line_width,omitempty"` // points
	WidthInches    *float64 `json:"width_inches,omitempty"`
	HeightInches   *float64 `json:"height_inches,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyRenderConfig returns a RenderConfig with all fields set to nil.
func EmptyRenderConfig() *RenderConfig {
	return &RenderConfig{}
}

// DefaultRenderConfig returns a RenderConfig with every field other than
// the window size and value bounds populated with its default.
func DefaultRenderConfig() *RenderConfig {
	return &RenderConfig{
		Offset:         ptrInt(0),
		BinHeight:      ptrInt(eye.DefaultShape.Height),
		BinWidth:       ptrInt(eye.DefaultShape.Width),
		Fuzz:           ptrBool(true),
		Seed:           ptrUint64(0),
		ColorBar:       ptrBool(true),
		DarkBackground: ptrBool(false),
		ColorMap:       ptrString(eyeplot.DefaultColorMap),
		LineWidth:      ptrFloat64(DefaultLineWidth),
		WidthInches:    ptrFloat64(DefaultWidthInches),
		HeightInches:   ptrFloat64(DefaultHeightInches),
	}
}

// LoadRenderConfig loads a RenderConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadRenderConfig(path string) (*RenderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseRenderConfig(data)
}

// ParseRenderConfig decodes and validates a JSON render config.
func ParseRenderConfig(data []byte) (*RenderConfig, error) {
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("config too large: %d bytes (max %d)", len(data), maxFileSize)
	}
	cfg := EmptyRenderConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *RenderConfig) Validate() error {
	if c.WindowSize != nil && *c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", *c.WindowSize)
	}
	if c.Offset != nil && *c.Offset < 0 {
		return fmt.Errorf("offset must be non-negative, got %d", *c.Offset)
	}
	if c.BinHeight != nil && (*c.BinHeight <= 0 || *c.BinHeight > eye.MaxBins) {
		return fmt.Errorf("bin_height must be 1..%d, got %d", eye.MaxBins, *c.BinHeight)
	}
	if c.BinWidth != nil && (*c.BinWidth <= 0 || *c.BinWidth > eye.MaxBins) {
		return fmt.Errorf("bin_width must be 1..%d, got %d", eye.MaxBins, *c.BinWidth)
	}

	if (c.ValueMin == nil) != (c.ValueMax == nil) {
		return fmt.Errorf("value_min and value_max must be set together")
	}
	if c.ValueMin != nil {
		if err := (eye.Bounds{Min: *c.ValueMin, Max: *c.ValueMax}).Validate(); err != nil {
			return err
		}
	}

	if c.ColorMap != nil && *c.ColorMap != "" && !slices.Contains(eyeplot.ColorMaps(), *c.ColorMap) {
		return fmt.Errorf("unknown color_map %q (valid: %v)", *c.ColorMap, eyeplot.ColorMaps())
	}

	for name, v := range map[string]*float64{
		"line_width":    c.LineWidth,
		"width_inches":  c.WidthInches,
		"height_inches": c.HeightInches,
	} {
		if v != nil && (*v <= 0 || math.IsInf(*v, 0) || math.IsNaN(*v)) {
			return fmt.Errorf("%s must be a positive number, got %v", name, *v)
		}
	}
	for name, v := range map[string]*float64{
		"width_inches":  c.WidthInches,
		"height_inches": c.HeightInches,
	} {
		if v != nil && *v > MaxFigureInches {
			return fmt.Errorf("%s must be at most %v, got %v", name, MaxFigureInches, *v)
		}
	}

	return nil
}

// Merge returns a copy of c with every field that is set in o replacing the
// corresponding field of c.
func (c *RenderConfig) Merge(o *RenderConfig) *RenderConfig {
	out := *c
	if o == nil {
		return &out
	}
	if o.WindowSize != nil {
		out.WindowSize = o.WindowSize
	}
	if o.Offset != nil {
		out.Offset = o.Offset
	}
	if o.BinHeight != nil {
		out.BinHeight = o.BinHeight
	}
	if o.BinWidth != nil {
		out.BinWidth = o.BinWidth
	}
	if o.ValueMin != nil || o.ValueMax != nil {
		out.ValueMin, out.ValueMax = o.ValueMin, o.ValueMax
	}
	if o.Fuzz != nil {
		out.Fuzz = o.Fuzz
	}
	if o.Seed != nil {
		out.Seed = o.Seed
	}
	if o.ColorBar != nil {
		out.ColorBar = o.ColorBar
	}
	if o.DarkBackground != nil {
		out.DarkBackground = o.DarkBackground
	}
	if o.ColorMap != nil {
		out.ColorMap = o.ColorMap
	}
	if o.LineWidth != nil {
		out.LineWidth = o.LineWidth
	}
	if o.WidthInches != nil {
		out.WidthInches = o.WidthInches
	}
	if o.HeightInches != nil {
		out.HeightInches = o.HeightInches
	}
	return &out
}

// GetWindowSize returns the window size, or 0 when it is unset. There is no
// default: the samples-per-symbol of a signal cannot be guessed.
func (c *RenderConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 0
	}
	return *c.WindowSize
}

// GetOffset returns the offset or 0.
func (c *RenderConfig) GetOffset() int {
	if c.Offset == nil {
		return 0
	}
	return *c.Offset
}

// GetBinShape returns the density grid shape, defaulting each side
// independently to eye.DefaultShape.
func (c *RenderConfig) GetBinShape() eye.Shape {
	s := eye.DefaultShape
	if c.BinHeight != nil {
		s.Height = *c.BinHeight
	}
	if c.BinWidth != nil {
		s.Width = *c.BinWidth
	}
	return s
}

// GetValueBounds returns the configured amplitude range, or nil when the
// range should be inferred from the signal.
func (c *RenderConfig) GetValueBounds() *eye.Bounds {
	if c.ValueMin == nil || c.ValueMax == nil {
		return nil
	}
	return &eye.Bounds{Min: *c.ValueMin, Max: *c.ValueMax}
}

// GetFuzz returns whether windows are jittered before counting.
func (c *RenderConfig) GetFuzz() bool {
	if c.Fuzz == nil {
		return true // default
	}
	return *c.Fuzz
}

// GetSeed returns the jitter seed or 0.
func (c *RenderConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetColorBar returns whether a colorbar is drawn.
func (c *RenderConfig) GetColorBar() bool {
	if c.ColorBar == nil {
		return true // default
	}
	return *c.ColorBar
}

// GetDarkBackground returns whether the figure uses a black background.
func (c *RenderConfig) GetDarkBackground() bool {
	if c.DarkBackground == nil {
		return false
	}
	return *c.DarkBackground
}

// GetColorMap returns the colour map name.
func (c *RenderConfig) GetColorMap() string {
	if c.ColorMap == nil || *c.ColorMap == "" {
		return eyeplot.DefaultColorMap
	}
	return *c.ColorMap
}

// GetLineWidth returns the trace width.
func (c *RenderConfig) GetLineWidth() vg.Length {
	if c.LineWidth == nil {
		return vg.Points(DefaultLineWidth)
	}
	return vg.Points(*c.LineWidth)
}

// GetSize returns the figure size.
func (c *RenderConfig) GetSize() (width, height vg.Length) {
	w, h := DefaultWidthInches, DefaultHeightInches
	if c.WidthInches != nil {
		w = *c.WidthInches
	}
	if c.HeightInches != nil {
		h = *c.HeightInches
	}
	return vg.Length(w) * vg.Inch, vg.Length(h) * vg.Inch
}

// DensityOptions converts the config into eyeplot density options.
func (c *RenderConfig) DensityOptions() eyeplot.DensityOptions {
	shape := c.GetBinShape()
	return eyeplot.DensityOptions{
		Offset:         c.GetOffset(),
		ColorBar:       c.GetColorBar(),
		DarkBackground: c.GetDarkBackground(),
		BinShape:       &shape,
		ValueBounds:    c.GetValueBounds(),
		ColorMap:       c.GetColorMap(),
		NoFuzz:         !c.GetFuzz(),
		Seed:           c.GetSeed(),
	}
}

// LineOptions converts the config into eyeplot line options.
func (c *RenderConfig) LineOptions() eyeplot.LineOptions {
	return eyeplot.LineOptions{
		Offset:         c.GetOffset(),
		Width:          c.GetLineWidth(),
		DarkBackground: c.GetDarkBackground(),
	}
}

// ChartDensityOptions converts the config into HTML chart options.
func (c *RenderConfig) ChartDensityOptions(page eyechart.Page) eyechart.DensityOptions {
	shape := c.GetBinShape()
	return eyechart.DensityOptions{
		Page:        page,
		Offset:      c.GetOffset(),
		ColorBar:    c.GetColorBar(),
		Dark:        c.GetDarkBackground(),
		BinShape:    &shape,
		ValueBounds: c.GetValueBounds(),
		NoFuzz:      !c.GetFuzz(),
		Seed:        c.GetSeed(),
	}
}

// ChartLineOptions converts the config into HTML chart options.
func (c *RenderConfig) ChartLineOptions(page eyechart.Page) eyechart.LineOptions {
	return eyechart.LineOptions{
		Page:   page,
		Offset: c.GetOffset(),
		Dark:   c.GetDarkBackground(),
	}
}
