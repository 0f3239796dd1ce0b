package main

import (
	"bytes"
	"context"
	"flag"
	"image"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/eyediagram/internal/config"
	"github.com/banshee-data/eyediagram/internal/db"
	"github.com/banshee-data/eyediagram/internal/eye"
	"github.com/banshee-data/eyediagram/internal/fsutil"
	"github.com/banshee-data/eyediagram/internal/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("eyediagram", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// nrzText is an alternating bit pattern at 16 samples per bit.
func nrzText() string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		level := "-1"
		if i%3 != 0 {
			level = "1"
		}
		for j := 0; j < 16; j++ {
			b.WriteString(level + "\n")
		}
	}
	return b.String()
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(newFlagSet(), []string{"-input", "sig.txt"})
	require.NoError(t, err)

	assert.Equal(t, "sig.txt", cfg.Input)
	assert.Equal(t, "eye.png", cfg.Output)
	assert.Equal(t, "density", cfg.Mode)
	require.NotNil(t, cfg.Render)
	// Render flags left at their defaults are not recorded, so they cannot
	// override a stored or file config.
	assert.Nil(t, cfg.Render.WindowSize)
	assert.Nil(t, cfg.Render.ColorBar)
	assert.Nil(t, cfg.Render.Fuzz)
}

func TestParseFlags_RenderFlags(t *testing.T) {
	cfg, err := parseFlags(newFlagSet(), []string{
		"-input", "sig.txt",
		"-window", "32", "-offset", "4",
		"-bins", "100x80", "-bounds", "-2,2",
		"-colorbar=false", "-fuzz=false", "-dark",
		"-cmap", "blackbody", "-seed", "7", "-size", "4x3",
	})
	require.NoError(t, err)

	rc := cfg.Render
	assert.Equal(t, 32, rc.GetWindowSize())
	assert.Equal(t, 4, rc.GetOffset())
	assert.Equal(t, 100, rc.GetBinShape().Height)
	assert.Equal(t, 80, rc.GetBinShape().Width)
	require.NotNil(t, rc.GetValueBounds())
	assert.Equal(t, 2.0, rc.GetValueBounds().Max)
	assert.False(t, rc.GetColorBar())
	assert.False(t, rc.GetFuzz())
	assert.True(t, rc.GetDarkBackground())
	assert.Equal(t, "blackbody", rc.GetColorMap())
	assert.Equal(t, uint64(7), rc.GetSeed())
}

func TestParseFlags_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"-bins", "100"},
		{"-bounds", "3"},
		{"-window", "x"},
		{"-nope"},
	} {
		_, err := parseFlags(newFlagSet(), args)
		assert.Error(t, err, args)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"input", Config{Input: "a.txt", Mode: "density", Output: "eye.png"}, false},
		{"capture", Config{CaptureID: "x", DBPath: "c.db", Mode: "lines", Output: "eye.svg"}, false},
		{"no source", Config{Mode: "density", Output: "eye.png"}, true},
		{"two sources", Config{Input: "a.txt", URL: "http://x", Mode: "density", Output: "eye.png"}, true},
		{"capture without db", Config{CaptureID: "x", Mode: "density", Output: "eye.png"}, true},
		{"bad mode", Config{Input: "a.txt", Mode: "heat", Output: "eye.png"}, true},
		{"long comma", Config{Input: "a.txt", Mode: "density", Comma: ";;", Output: "eye.png"}, true},
		{"no output", Config{Input: "a.txt", Mode: "density", Output: " , "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadSignal_File(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("scope.csv", []byte("t,v\n0,0.5\n1,-0.5\n2,0.25\n"))

	sig, err := loadSignal(context.Background(), Config{Input: "scope.csv", Column: 1}, fsys, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.5, 0.25}, sig.samples)
	assert.Nil(t, sig.stored)

	_, err = loadSignal(context.Background(), Config{Input: "missing.txt"}, fsys, nil, nil)
	assert.Error(t, err)
}

func TestLoadSignal_Stdin(t *testing.T) {
	sig, err := loadSignal(context.Background(), Config{Input: "-"}, nil, nil, strings.NewReader("1\n2\n3\n"))
	require.NoError(t, err)
	assert.Equal(t, "stdin", sig.name)
	assert.Len(t, sig.samples, 3)
}

func TestLoadSignal_URL(t *testing.T) {
	client := httputil.NewMockHTTPClient().AddResponse(200, "1\n-1\n1\n-1\n")
	cfg := Config{URL: "http://scope.local/api/captures/abc/samples.csv", Timeout: time.Second}

	sig, err := loadSignal(context.Background(), cfg, nil, client, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1, 1, -1}, sig.samples)
	assert.Equal(t, 1, client.RequestCount())

	client = httputil.NewMockHTTPClient().AddResponse(404, `{"error":"not found"}`)
	_, err = loadSignal(context.Background(), cfg, nil, client, nil)
	assert.Error(t, err)
}

func TestLoadSignal_Capture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.db")
	store, err := db.NewDB(path)
	require.NoError(t, err)
	c := &db.Capture{Name: "link0", Samples: []float64{1, -1, 1, -1}, RenderConfig: `{"window_size":2,"dark_background":true}`}
	require.NoError(t, store.InsertCapture(c))
	require.NoError(t, store.Close())

	sig, err := loadSignal(context.Background(), Config{DBPath: path, CaptureID: c.ID}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "link0", sig.name)
	require.NotNil(t, sig.stored)
	assert.Equal(t, 2, sig.stored.GetWindowSize())

	_, err = loadSignal(context.Background(), Config{DBPath: path, CaptureID: "missing"}, nil, nil, nil)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestResolveRender_Layers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "render.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"window_size":48,"offset":3}`), 0o644))

	cfg, err := parseFlags(newFlagSet(), []string{"-capture", "x", "-db", "c.db", "-config", file, "-offset", "5"})
	require.NoError(t, err)

	stored, err := parseFlags(newFlagSet(), []string{"-window", "16", "-dark"})
	require.NoError(t, err)

	rc, err := resolveRender(cfg, &signal{stored: stored.Render})
	require.NoError(t, err)
	assert.Equal(t, 48, rc.GetWindowSize(), "config file overrides stored")
	assert.Equal(t, 5, rc.GetOffset(), "flag overrides config file")
	assert.True(t, rc.GetDarkBackground(), "stored value survives")

	noWindow, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	_, err = resolveRender(noWindow, &signal{})
	assert.Error(t, err)
}

func TestRender_PNG(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("nrz.txt", []byte(nrzText()))

	cfg, err := parseFlags(newFlagSet(), []string{"-input", "nrz.txt", "-window", "32", "-size", "4x3", "-o", "out/eye.png"})
	require.NoError(t, err)
	sig, err := loadSignal(context.Background(), cfg, fsys, nil, nil)
	require.NoError(t, err)
	rc, err := resolveRender(cfg, sig)
	require.NoError(t, err)

	summary, err := render(cfg, rc, sig, fsys, cfg.Output)
	require.NoError(t, err)
	assert.Contains(t, summary, "windows")

	data, err := fsys.ReadFile("out/eye.png")
	require.NoError(t, err)
	img, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 384, img.Width)
	assert.Equal(t, 288, img.Height)
}

func TestRender_LinesSVGAndHTML(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	sig := &signal{name: "nrz"}
	for _, line := range strings.Fields(nrzText()) {
		if line == "1" {
			sig.samples = append(sig.samples, 1)
		} else {
			sig.samples = append(sig.samples, -1)
		}
	}

	for _, out := range []string{"eye.svg", "eye.html"} {
		cfg, err := parseFlags(newFlagSet(), []string{"-input", "x", "-mode", "lines", "-window", "32", "-o", out})
		require.NoError(t, err)
		rc, err := resolveRender(cfg, sig)
		require.NoError(t, err)

		summary, err := render(cfg, rc, sig, fsys, cfg.Output)
		require.NoError(t, err, out)
		assert.Contains(t, summary, "traces")

		data, err := fsys.ReadFile(out)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}

	html, err := fsys.ReadFile("eye.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
}

func TestRender_UnknownFormat(t *testing.T) {
	cfg := Config{Output: "eye.bmp", Mode: "density"}
	rc, err := resolveRender(Config{Render: mustRender(t, "-window", "16")}, &signal{})
	require.NoError(t, err)
	_, err = render(cfg, rc, &signal{samples: []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}}, fsutil.NewMemoryFileSystem(), cfg.Output)
	assert.Error(t, err)
}

func TestRender_FailedHTMLLeavesNoFile(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("kept.html", []byte("previous"))
	rc, err := resolveRender(Config{Render: mustRender(t, "-window", "4")}, &signal{})
	require.NoError(t, err)
	sig := &signal{samples: []float64{0, 1, math.NaN(), 1, 0, 1, 0, 1, 0}}

	cfg := Config{Mode: "density"}
	_, err = render(cfg, rc, sig, fsys, "new.html")
	assert.ErrorIs(t, err, eye.ErrNonFinite)
	_, err = render(cfg, rc, sig, fsys, "kept.html")
	assert.ErrorIs(t, err, eye.ErrNonFinite)

	data, err := fsys.ReadFile("kept.html")
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	assert.False(t, fsutil.Exists(fsys, "new.html"))
}

func TestRenderAll(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("nrz.txt", []byte(nrzText()))

	cfg, err := parseFlags(newFlagSet(), []string{"-input", "nrz.txt", "-window", "32", "-size", "4x3", "-o", "eye.png, eye.svg,eye.html"})
	require.NoError(t, err)
	assert.Equal(t, []string{"eye.png", "eye.svg", "eye.html"}, cfg.outputs())

	sig, err := loadSignal(context.Background(), cfg, fsys, nil, nil)
	require.NoError(t, err)
	rc, err := resolveRender(cfg, sig)
	require.NoError(t, err)

	summaries, err := renderAll(cfg, rc, sig, fsys)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	for i, name := range cfg.outputs() {
		assert.Contains(t, summaries[i], "windows", name)
		assert.True(t, fsutil.Exists(fsys, name), name)
	}

	cfg.Output = "eye.png,eye.bmp"
	_, err = renderAll(cfg, rc, sig, fsys)
	assert.ErrorContains(t, err, "eye.bmp")
}

func mustRender(t *testing.T, args ...string) *config.RenderConfig {
	t.Helper()
	cfg, err := parseFlags(newFlagSet(), args)
	require.NoError(t, err)
	return cfg.Render
}
