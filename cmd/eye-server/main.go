// Command eye-server stores captures in SQLite and serves their eye
// diagrams over HTTP, with an optional serial recorder and a small browser
// UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/eyediagram/internal/api"
	"github.com/banshee-data/eyediagram/internal/capture"
	"github.com/banshee-data/eyediagram/internal/config"
	"github.com/banshee-data/eyediagram/internal/db"
	"github.com/banshee-data/eyediagram/internal/version"
)

// Config holds the command-line configuration.
type Config struct {
	Listen     string
	DBPath     string
	ConfigFile string
	DataDir    string
	StaticDir  string
	MaxUpload  int64

	SerialPath string
	Serial     capture.PortOptions

	// Command holds the positional arguments, e.g. ["migrate", "up"].
	Command []string

	ShowVersion bool
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{}

	fs.StringVar(&cfg.Listen, "listen", ":8080", "Listen address")
	fs.StringVar(&cfg.DBPath, "db", "captures.db", "SQLite database path")
	fs.StringVar(&cfg.ConfigFile, "config", "", "Render config JSON file with server-wide defaults")
	fs.StringVar(&cfg.DataDir, "data-dir", "", "Directory whose files may be imported with POST /api/captures/import")
	fs.StringVar(&cfg.StaticDir, "static-dir", "", "Serve the UI from this directory instead of the embedded copy")
	fs.Int64Var(&cfg.MaxUpload, "max-upload", api.DefaultMaxUploadBytes, "Largest accepted capture upload in bytes")
	fs.StringVar(&cfg.SerialPath, "serial", "", "Serial device for POST /api/record, e.g. /dev/ttyUSB0")
	fs.IntVar(&cfg.Serial.BaudRate, "baud", 115200, "Serial baud rate")
	fs.IntVar(&cfg.Serial.DataBits, "data-bits", 8, "Serial data bits")
	fs.IntVar(&cfg.Serial.StopBits, "stop-bits", 1, "Serial stop bits (1 or 2)")
	fs.StringVar(&cfg.Serial.Parity, "parity", "N", "Serial parity: N, E or O")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s [options]\n\n", fs.Name())
		fmt.Fprintf(out, "Serves stored captures and their eye diagrams.\n\n")
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  %s -db captures.db -listen :8080\n", fs.Name())
		fmt.Fprintf(out, "  %s -serial /dev/ttyUSB0 -baud 921600 -data-dir ./scope\n", fs.Name())
		fmt.Fprintf(out, "  %s -db captures.db migrate status\n", fs.Name())
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.MaxUpload <= 0 {
		return cfg, errors.New("-max-upload must be positive")
	}
	cfg.Command = fs.Args()
	if len(cfg.Command) > 0 && cfg.Command[0] != "migrate" {
		return cfg, fmt.Errorf("unknown command %q", cfg.Command[0])
	}
	return cfg, nil
}

func openSerial(path string, opts capture.PortOptions) (capture.SerialPorter, error) {
	return capture.OpenSerial(path, opts)
}

// newHandler wires the API, admin routes and UI for store.
func newHandler(cfg Config, store *db.DB, open api.SerialOpener) (http.Handler, error) {
	defaults := config.DefaultRenderConfig()
	if cfg.ConfigFile != "" {
		file, err := config.LoadRenderConfig(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		defaults = defaults.Merge(file)
	}

	server := api.NewServer(store, defaults)
	server.MaxUploadBytes = cfg.MaxUpload

	if cfg.SerialPath != "" {
		rec, err := api.NewRecorder(store, api.SerialSource{PortPath: cfg.SerialPath, Options: cfg.Serial}, open)
		if err != nil {
			return nil, err
		}
		server.SetRecorder(rec)
		log.Printf("Recording enabled on %s", cfg.SerialPath)
	}

	if cfg.DataDir != "" {
		info, err := os.Stat(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("data directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("data directory %s is not a directory", cfg.DataDir)
		}
		server.SetDataDir(cfg.DataDir)
	}

	mux := server.ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	mux.Handle("/", api.StaticHandler(cfg.StaticDir))

	return api.LoggingMiddleware(mux), nil
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.ShowVersion {
		fmt.Println(version.String("eye-server"))
		return
	}
	if len(cfg.Command) > 0 {
		if err := db.RunMigrateCommand(cfg.Command[1:], cfg.DBPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	log.Print(version.String("eye-server"))

	store, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	h, err := newHandler(cfg, store, openSerial)
	if err != nil {
		log.Fatalf("Failed to configure server: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    cfg.Listen,
			Handler: h,
		}

		go func() {
			log.Printf("Listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
