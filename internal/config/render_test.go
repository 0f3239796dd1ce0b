package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/eyediagram/internal/eye"
	"github.com/banshee-data/eyediagram/internal/eyechart"
	"github.com/banshee-data/eyediagram/internal/eyeplot"
	"gonum.org/v1/plot/vg"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultRenderConfig(t *testing.T) {
	cfg := DefaultRenderConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	empty := EmptyRenderConfig()

	// Getters on an empty config must agree with the populated defaults.
	if cfg.GetBinShape() != empty.GetBinShape() {
		t.Errorf("GetBinShape: %v vs %v", cfg.GetBinShape(), empty.GetBinShape())
	}
	if cfg.GetFuzz() != empty.GetFuzz() || !cfg.GetFuzz() {
		t.Errorf("GetFuzz() should default to true")
	}
	if cfg.GetColorBar() != empty.GetColorBar() || !cfg.GetColorBar() {
		t.Errorf("GetColorBar() should default to true")
	}
	if cfg.GetColorMap() != eyeplot.DefaultColorMap || empty.GetColorMap() != eyeplot.DefaultColorMap {
		t.Errorf("GetColorMap() = %q", cfg.GetColorMap())
	}
	if cfg.GetLineWidth() != empty.GetLineWidth() {
		t.Errorf("GetLineWidth: %v vs %v", cfg.GetLineWidth(), empty.GetLineWidth())
	}
	w, h := empty.GetSize()
	if w != 8*vg.Inch || h != 6*vg.Inch {
		t.Errorf("GetSize() = %v x %v", w, h)
	}
	if empty.GetWindowSize() != 0 {
		t.Errorf("GetWindowSize() = %d, want 0 when unset", empty.GetWindowSize())
	}
	if empty.GetValueBounds() != nil {
		t.Errorf("GetValueBounds() should be nil when unset")
	}
}

func TestLoadRenderConfig(t *testing.T) {
	path := writeConfig(t, "render.json", `{
  "window_size": 64,
  "offset": 16,
  "bin_height": 200,
  "value_min": -1.5,
  "value_max": 1.5,
  "fuzz": false,
  "colorbar": false,
  "dark_background": true,
  "color_map": "blackbody",
  "seed": 7,
  "width_inches": 4
}`)

	cfg, err := LoadRenderConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetWindowSize() != 64 {
		t.Errorf("GetWindowSize() = %d, want 64", cfg.GetWindowSize())
	}
	if got := cfg.GetBinShape(); got != (eye.Shape{Height: 200, Width: eye.DefaultShape.Width}) {
		t.Errorf("GetBinShape() = %v", got)
	}
	if got := cfg.GetValueBounds(); got == nil || *got != (eye.Bounds{Min: -1.5, Max: 1.5}) {
		t.Errorf("GetValueBounds() = %v", got)
	}
	w, h := cfg.GetSize()
	if w != 4*vg.Inch || h != 6*vg.Inch {
		t.Errorf("GetSize() = %v x %v", w, h)
	}

	d := cfg.DensityOptions()
	if d.Offset != 16 || d.ColorBar || !d.DarkBackground || !d.NoFuzz || d.Seed != 7 || d.ColorMap != "blackbody" {
		t.Errorf("DensityOptions() = %+v", d)
	}
	if d.BinShape == nil || d.BinShape.Height != 200 {
		t.Errorf("DensityOptions().BinShape = %v", d.BinShape)
	}

	l := cfg.LineOptions()
	if l.Offset != 16 || !l.DarkBackground || l.Width != vg.Points(DefaultLineWidth) {
		t.Errorf("LineOptions() = %+v", l)
	}

	cd := cfg.ChartDensityOptions(eyechart.Page{Title: "t"})
	if cd.Title != "t" || cd.ColorBar || !cd.Dark || !cd.NoFuzz || cd.Seed != 7 {
		t.Errorf("ChartDensityOptions() = %+v", cd)
	}
	cl := cfg.ChartLineOptions(eyechart.Page{})
	if cl.Offset != 16 || !cl.Dark {
		t.Errorf("ChartLineOptions() = %+v", cl)
	}
}

func TestLoadRenderConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "render.yaml", `{}`, ".json extension"},
		{"syntax", "render.json", `{"window_size": }`, "parse"},
		{"window", "render.json", `{"window_size": 0}`, "window_size"},
		{"offset", "render.json", `{"offset": -1}`, "offset"},
		{"bins", "render.json", `{"bin_width": 0}`, "bin_width"},
		{"too many bins", "render.json", `{"bin_height": 60000}`, "bin_height"},
		{"figure too large", "render.json", `{"width_inches": 5000}`, "width_inches"},
		{"half bounds", "render.json", `{"value_min": 0}`, "set together"},
		{"reversed bounds", "render.json", `{"value_min": 1, "value_max": -1}`, "bounds"},
		{"color map", "render.json", `{"color_map": "rainbow"}`, "color_map"},
		{"line width", "render.json", `{"line_width": -2}`, "line_width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRenderConfig(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadRenderConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoadRenderConfig_TooLarge(t *testing.T) {
	body := `{"color_map": "` + strings.Repeat("x", maxFileSize) + `"}`
	_, err := LoadRenderConfig(writeConfig(t, "big.json", body))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	base, err := ParseRenderConfig([]byte(`{"window_size": 32, "value_min": -1, "value_max": 1, "dark_background": true}`))
	if err != nil {
		t.Fatalf("ParseRenderConfig: %v", err)
	}
	override := &RenderConfig{WindowSize: ptrInt(48), Fuzz: ptrBool(false)}

	got := base.Merge(override)
	if got.GetWindowSize() != 48 {
		t.Errorf("window size = %d, want 48", got.GetWindowSize())
	}
	if got.GetFuzz() {
		t.Error("fuzz should be overridden to false")
	}
	if !got.GetDarkBackground() {
		t.Error("dark_background should be kept from base")
	}
	if got.GetValueBounds() == nil {
		t.Error("bounds should be kept from base")
	}
	if base.GetWindowSize() != 32 {
		t.Error("Merge must not modify the receiver")
	}

	if got := base.Merge(nil); got.GetWindowSize() != 32 {
		t.Errorf("Merge(nil) window size = %d", got.GetWindowSize())
	}
}
