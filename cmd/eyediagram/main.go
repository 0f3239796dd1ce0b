// Command eyediagram renders the eye diagram of a sampled signal to an
// image (png, svg, pdf) or an interactive HTML page.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/banshee-data/eyediagram/internal/capture"
	"github.com/banshee-data/eyediagram/internal/config"
	"github.com/banshee-data/eyediagram/internal/db"
	"github.com/banshee-data/eyediagram/internal/eyechart"
	"github.com/banshee-data/eyediagram/internal/eyeplot"
	"github.com/banshee-data/eyediagram/internal/fsutil"
	"github.com/banshee-data/eyediagram/internal/httputil"
	"github.com/banshee-data/eyediagram/internal/version"
	"golang.org/x/sync/errgroup"
)

// maxFetchBytes bounds a capture downloaded with -url.
const maxFetchBytes = 64 << 20

// renderFlags are the flags that map one-to-one onto render parameters.
var renderFlags = []string{"window", "offset", "bins", "bounds", "colorbar", "dark", "fuzz", "cmap", "seed", "size"}

// Config holds the command-line configuration.
type Config struct {
	// Sources; exactly one of Input, URL, or CaptureID is used.
	Input     string
	URL       string
	DBPath    string
	CaptureID string
	Column    int
	Comma     string

	Output     string
	Mode       string // density or lines
	ConfigFile string
	Title      string
	Timeout    time.Duration

	// Render holds the render flags that were given explicitly.
	Render *config.RenderConfig

	ShowVersion bool
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{}

	fs.StringVar(&cfg.Input, "input", "", "Signal file with one sample per line, or CSV (use - for stdin)")
	fs.StringVar(&cfg.URL, "url", "", "Fetch samples from a URL, e.g. http://host:8080/api/captures/<id>/samples.csv")
	fs.StringVar(&cfg.DBPath, "db", "", "SQLite database holding stored captures")
	fs.StringVar(&cfg.CaptureID, "capture", "", "Capture ID to render from -db")
	fs.IntVar(&cfg.Column, "column", 0, "CSV column holding the samples")
	fs.StringVar(&cfg.Comma, "comma", "", "CSV field separator (default ,)")
	fs.StringVar(&cfg.Output, "o", "eye.png", "Output files, comma separated; each extension selects png, svg, pdf or html")
	fs.StringVar(&cfg.Mode, "mode", "density", "Diagram kind: density or lines")
	fs.StringVar(&cfg.ConfigFile, "config", "", "Render config JSON file")
	fs.StringVar(&cfg.Title, "title", "", "Plot title")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Timeout for -url requests")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	fs.Int("window", 0, "Samples per window, usually two symbol periods (required unless stored)")
	fs.Int("offset", 0, "Samples to skip before the first window")
	fs.String("bins", "", "Density grid size as HxW, e.g. 400x320")
	fs.String("bounds", "", "Amplitude range as min,max (default inferred from the signal)")
	fs.Bool("colorbar", true, "Draw a colorbar next to density plots")
	fs.Bool("dark", false, "Use a black background")
	fs.Bool("fuzz", true, "Jitter windows before counting so sparse signals read as a density")
	fs.String("cmap", "", fmt.Sprintf("Colour map for density plots (%s)", strings.Join(eyeplot.ColorMaps(), ", ")))
	fs.Uint64("seed", 0, "Seed for the jitter")
	fs.String("size", "", "Figure size in inches as WxH (default 8x6)")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s [options]\n\n", fs.Name())
		fmt.Fprintf(out, "Renders the eye diagram of a sampled signal.\n\n")
		fmt.Fprintf(out, "Render settings are layered: built-in defaults, then the config stored\n")
		fmt.Fprintf(out, "with a -capture, then -config, then any render flag given explicitly.\n\n")
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  %s -input nrz.txt -window 64 -o eye.png\n", fs.Name())
		fmt.Fprintf(out, "  %s -input scope.csv -column 1 -window 200 -mode lines -o eye.svg\n", fs.Name())
		fmt.Fprintf(out, "  %s -db captures.db -capture <id> -o eye.html\n", fs.Name())
		fmt.Fprintf(out, "  %s -input nrz.txt -window 64 -o eye.png,eye.pdf,eye.html\n", fs.Name())
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	values := url.Values{}
	fs.Visit(func(f *flag.Flag) {
		for _, name := range renderFlags {
			if f.Name == name {
				values.Set(name, f.Value.String())
			}
		}
	})
	render, err := config.ParseRenderValues(values)
	if err != nil {
		return cfg, err
	}
	cfg.Render = render
	return cfg, nil
}

func (c Config) validate() error {
	sources := 0
	for _, s := range []string{c.Input, c.URL, c.CaptureID} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of -input, -url or -capture is required")
	}
	if c.CaptureID != "" && c.DBPath == "" {
		return errors.New("-capture requires -db")
	}
	if c.Mode != "density" && c.Mode != "lines" {
		return fmt.Errorf("unknown -mode %q (want density or lines)", c.Mode)
	}
	if len([]rune(c.Comma)) > 1 {
		return errors.New("-comma must be a single character")
	}
	if len(c.outputs()) == 0 {
		return errors.New("-o is required")
	}
	return nil
}

// outputs splits -o into its file names.
func (c Config) outputs() []string {
	var out []string
	for _, name := range strings.Split(c.Output, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (c Config) textOptions() capture.TextOptions {
	opts := capture.TextOptions{Column: c.Column}
	if c.Comma != "" {
		opts.Comma = []rune(c.Comma)[0]
	}
	return opts
}

// signal is a loaded capture plus the render config stored with it, if any.
type signal struct {
	name    string
	samples []float64
	stored  *config.RenderConfig
}

func loadSignal(ctx context.Context, cfg Config, fsys fsutil.FileSystem, client httputil.HTTPClient, stdin io.Reader) (*signal, error) {
	switch {
	case cfg.Input == "-":
		samples, err := capture.ReadText(stdin, cfg.textOptions())
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return &signal{name: "stdin", samples: samples}, nil

	case cfg.Input != "":
		samples, err := capture.LoadFile(fsys, cfg.Input, cfg.textOptions())
		if err != nil {
			return nil, err
		}
		return &signal{name: cfg.Input, samples: samples}, nil

	case cfg.URL != "":
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		body, err := httputil.Fetch(ctx, client, cfg.URL, maxFetchBytes)
		if err != nil {
			return nil, err
		}
		samples, err := capture.ReadText(bytes.NewReader(body), cfg.textOptions())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.URL, err)
		}
		return &signal{name: cfg.URL, samples: samples}, nil

	default:
		store, err := db.NewDB(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		c, err := store.GetCapture(cfg.CaptureID)
		if err != nil {
			return nil, err
		}
		sig := &signal{name: c.Name, samples: c.Samples}
		if sig.name == "" {
			sig.name = c.ID
		}
		if strings.TrimSpace(c.RenderConfig) != "" {
			if sig.stored, err = config.ParseRenderConfig([]byte(c.RenderConfig)); err != nil {
				return nil, fmt.Errorf("capture %s: %w", c.ID, err)
			}
		}
		return sig, nil
	}
}

// resolveRender layers the render settings for sig.
func resolveRender(cfg Config, sig *signal) (*config.RenderConfig, error) {
	rc := config.DefaultRenderConfig().Merge(sig.stored)
	if cfg.ConfigFile != "" {
		file, err := config.LoadRenderConfig(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		rc = rc.Merge(file)
	}
	rc = rc.Merge(cfg.Render)
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if rc.GetWindowSize() <= 0 {
		return nil, errors.New("a window size is required: pass -window")
	}
	return rc, nil
}

// renderAll renders sig to every output concurrently and returns the
// summaries in output order.
func renderAll(cfg Config, rc *config.RenderConfig, sig *signal, fsys fsutil.FileSystem) ([]string, error) {
	outputs := cfg.outputs()
	summaries := make([]string, len(outputs))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, output := range outputs {
		g.Go(func() error {
			summary, err := render(cfg, rc, sig, fsys, output)
			if err != nil {
				return fmt.Errorf("%s: %w", output, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// render draws sig and writes the result to output on fsys. It returns a
// one-line summary for the log.
func render(cfg Config, rc *config.RenderConfig, sig *signal, fsys fsutil.FileSystem, output string) (string, error) {
	title := cfg.Title
	if title == "" {
		title = sig.name
	}
	window := rc.GetWindowSize()

	if eyeplot.FormatFromPath(output) == "html" {
		var buf bytes.Buffer
		page := eyechart.Page{Title: title}
		var summary string
		if cfg.Mode == "lines" {
			n, err := eyechart.Lines(&buf, sig.samples, window, rc.ChartLineOptions(page))
			if err != nil {
				return "", err
			}
			summary = fmt.Sprintf("%d traces", n)
		} else {
			g, err := eyechart.Density(&buf, sig.samples, window, rc.ChartDensityOptions(page))
			if err != nil {
				return "", err
			}
			summary = fmt.Sprintf("%d windows, peak bin %d", g.Windows, g.Max())
		}
		return summary, writeFile(fsys, output, buf.Bytes())
	}

	fig := eyeplot.NewFigure()
	fig.Plot.Title.Text = title
	var summary string
	if cfg.Mode == "lines" {
		n, err := eyeplot.Lines(fig.Plot, sig.samples, window, rc.LineOptions())
		if err != nil {
			return "", err
		}
		summary = fmt.Sprintf("%d traces", n)
	} else {
		g, err := eyeplot.Density(fig, sig.samples, window, rc.DensityOptions())
		if err != nil {
			return "", err
		}
		summary = fmt.Sprintf("%d windows, peak bin %d", g.Windows, g.Max())
	}

	width, height := rc.GetSize()
	if err := fig.Save(fsys, width, height, output); err != nil {
		return "", err
	}
	return summary, nil
}

// writeFile creates name on fsys and writes data to it.
func writeFile(fsys fsutil.FileSystem, name string, data []byte) error {
	out, err := fsys.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	_, err = out.Write(data)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.ShowVersion {
		fmt.Println(version.String("eyediagram"))
		return
	}
	if err := cfg.validate(); err != nil {
		flag.CommandLine.Usage()
		log.Fatalf("%v", err)
	}

	fsys := fsutil.OSFileSystem{}
	sig, err := loadSignal(context.Background(), cfg, fsys, nil, os.Stdin)
	if err != nil {
		log.Fatalf("Failed to load signal: %v", err)
	}
	rc, err := resolveRender(cfg, sig)
	if err != nil {
		log.Fatalf("Invalid render settings: %v", err)
	}

	summaries, err := renderAll(cfg, rc, sig, fsys)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	for i, output := range cfg.outputs() {
		log.Printf("Wrote %s (%d samples, window %d, %s)", output, len(sig.samples), rc.GetWindowSize(), summaries[i])
	}
}
