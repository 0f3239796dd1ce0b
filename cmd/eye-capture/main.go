// Command eye-capture records a sampled signal from a serial device, a
// packet capture or a text file and stores it in the capture database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/eyediagram/internal/capture"
	"github.com/banshee-data/eyediagram/internal/config"
	"github.com/banshee-data/eyediagram/internal/db"
	"github.com/banshee-data/eyediagram/internal/fsutil"
	"github.com/banshee-data/eyediagram/internal/version"
)

// Config holds the command-line configuration.
type Config struct {
	// Sources; exactly one is used.
	SerialPath string
	PCAPPath   string
	InputPath  string

	Serial   capture.PortOptions
	Limit    int
	Duration time.Duration

	PCAP capture.PCAPOptions

	DBPath       string
	OutputPath   string
	Name         string
	SampleRate   float64
	Window       int
	RenderConfig string

	ShowVersion bool
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{}
	var encoding string

	fs.StringVar(&cfg.SerialPath, "serial", "", "Serial device to record from, e.g. /dev/ttyUSB0")
	fs.IntVar(&cfg.Serial.BaudRate, "baud", 115200, "Serial baud rate")
	fs.IntVar(&cfg.Serial.DataBits, "data-bits", 8, "Serial data bits")
	fs.IntVar(&cfg.Serial.StopBits, "stop-bits", 1, "Serial stop bits (1 or 2)")
	fs.StringVar(&cfg.Serial.Parity, "parity", "N", "Serial parity: N, E or O")
	fs.IntVar(&cfg.Limit, "limit", 100000, "Stop after this many samples (0 for no limit)")
	fs.DurationVar(&cfg.Duration, "duration", 0, "Stop recording after this long (0 waits for -limit or Ctrl-C)")

	fs.StringVar(&cfg.PCAPPath, "pcap", "", "pcap or pcapng file of UDP sample datagrams")
	fs.IntVar(&cfg.PCAP.Port, "port", 0, "UDP port carrying samples (0 accepts all)")
	fs.StringVar(&encoding, "encoding", string(capture.EncodingS16LE), "Sample encoding in the datagrams: s16le, f32le or f64le")
	fs.Float64Var(&cfg.PCAP.Scale, "scale", 1, "Multiply decoded samples by this factor")

	fs.StringVar(&cfg.InputPath, "input", "", "Text or CSV file with one sample per line")

	fs.StringVar(&cfg.DBPath, "db", "captures.db", "SQLite database to store the capture in (empty to skip)")
	fs.StringVar(&cfg.OutputPath, "o", "", "Also write the samples as text to this file")
	fs.StringVar(&cfg.Name, "name", "", "Capture name")
	fs.Float64Var(&cfg.SampleRate, "sample-rate", 0, "Sample rate in Hz, for reference")
	fs.IntVar(&cfg.Window, "window", 0, "Window size stored as the capture's default")
	fs.StringVar(&cfg.RenderConfig, "render-config", "", "Render config JSON file stored with the capture")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s [options]\n\n", fs.Name())
		fmt.Fprintf(out, "Records a sampled signal and stores it for eye diagram rendering.\n\n")
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  %s -serial /dev/ttyUSB0 -duration 10s -name link0 -window 64\n", fs.Name())
		fmt.Fprintf(out, "  %s -pcap scope.pcapng -port 5005 -encoding f32le\n", fs.Name())
		fmt.Fprintf(out, "  %s -input export.txt -db \"\" -o samples.txt\n", fs.Name())
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.PCAP.Encoding = capture.Encoding(encoding)
	return cfg, nil
}

func (c Config) validate() error {
	sources := 0
	for _, s := range []string{c.SerialPath, c.PCAPPath, c.InputPath} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of -serial, -pcap or -input is required")
	}
	if c.DBPath == "" && c.OutputPath == "" {
		return errors.New("nothing to do: both -db and -o are empty")
	}
	if c.Window < 0 {
		return fmt.Errorf("invalid -window %d", c.Window)
	}
	if c.SampleRate < 0 {
		return fmt.Errorf("invalid -sample-rate %v", c.SampleRate)
	}
	if c.SerialPath != "" {
		if _, err := c.Serial.Normalize(); err != nil {
			return err
		}
	}
	if c.PCAPPath != "" {
		if _, err := c.PCAP.Encoding.Width(); err != nil {
			return err
		}
	}
	return nil
}

// serialOpener opens a serial device; tests substitute a fake.
type serialOpener func(path string, opts capture.PortOptions) (capture.SerialPorter, error)

func openSerial(path string, opts capture.PortOptions) (capture.SerialPorter, error) {
	return capture.OpenSerial(path, opts)
}

// record reads samples from the configured source and returns them with a
// description of where they came from.
func record(ctx context.Context, cfg Config, fsys fsutil.FileSystem, open serialOpener) ([]float64, string, error) {
	switch {
	case cfg.SerialPath != "":
		port, err := open(cfg.SerialPath, cfg.Serial)
		if err != nil {
			return nil, "", err
		}
		defer port.Close()

		if cfg.Duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
			defer cancel()
		}
		log.Printf("Recording from %s (limit %d)", cfg.SerialPath, cfg.Limit)
		samples, err := capture.RecordSerial(ctx, port, cfg.Limit)
		if err != nil && !(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, "", err
		}
		if len(samples) == 0 {
			return nil, "", capture.ErrNoSamples
		}
		return samples, "serial:" + cfg.SerialPath, nil

	case cfg.PCAPPath != "":
		f, err := fsys.Open(cfg.PCAPPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open capture file: %w", err)
		}
		defer f.Close()
		samples, err := capture.ReadPCAP(f, cfg.PCAP)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", cfg.PCAPPath, err)
		}
		return samples, "pcap:" + cfg.PCAPPath, nil

	default:
		samples, err := capture.LoadFile(fsys, cfg.InputPath, capture.TextOptions{})
		if err != nil {
			return nil, "", err
		}
		return samples, "file:" + cfg.InputPath, nil
	}
}

// renderConfig builds the JSON document stored as the capture's default
// render settings, or "" when none were given.
func renderConfig(cfg Config) (string, error) {
	rc := config.EmptyRenderConfig()
	if cfg.RenderConfig != "" {
		file, err := config.LoadRenderConfig(cfg.RenderConfig)
		if err != nil {
			return "", err
		}
		rc = file
	}
	if cfg.Window > 0 {
		rc = rc.Merge(&config.RenderConfig{WindowSize: &cfg.Window})
	}
	if *rc == (config.RenderConfig{}) {
		return "", nil
	}
	data, err := json.Marshal(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// save writes samples to the text output and the database as configured.
// It returns the stored capture, or nil when -db is empty.
func save(cfg Config, fsys fsutil.FileSystem, samples []float64, source string) (*db.Capture, error) {
	if err := capture.CheckFinite(samples); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	if cfg.OutputPath != "" {
		out, err := fsys.Create(cfg.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		err = capture.WriteText(out, samples)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", cfg.OutputPath, err)
		}
	}

	if cfg.DBPath == "" {
		return nil, nil
	}

	rc, err := renderConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	c := &db.Capture{
		Name:         cfg.Name,
		Source:       source,
		SampleRate:   cfg.SampleRate,
		RenderConfig: rc,
		Samples:      samples,
	}
	if err := store.InsertCapture(c); err != nil {
		return nil, err
	}
	return c, nil
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.ShowVersion {
		fmt.Println(version.String("eye-capture"))
		return
	}
	if err := cfg.validate(); err != nil {
		flag.CommandLine.Usage()
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fsys := fsutil.OSFileSystem{}
	samples, source, err := record(ctx, cfg, fsys, openSerial)
	if err != nil {
		log.Fatalf("Failed to record: %v", err)
	}
	log.Printf("Read %d samples from %s", len(samples), source)

	c, err := save(cfg, fsys, samples, source)
	if err != nil {
		log.Fatalf("Failed to save capture: %v", err)
	}
	if cfg.OutputPath != "" {
		log.Printf("Wrote %s", cfg.OutputPath)
	}
	if c != nil {
		log.Printf("Stored capture %s in %s", c.ID, cfg.DBPath)
	}
}
