// Command tofcamd runs the ToF depth camera acquisition driver as a
// standalone daemon: it opens the sensor, serves the latest frame and a
// /debug/tofcam/ admin surface over HTTP, and optionally logs auto-range
// and step-change telemetry to SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/etaoin/tofcam/internal/config"
	"github.com/etaoin/tofcam/internal/debugapi"
	"github.com/etaoin/tofcam/internal/driver"
	"github.com/etaoin/tofcam/internal/monitoring"
	"github.com/etaoin/tofcam/internal/singleton"
	"github.com/etaoin/tofcam/internal/telemetry"
	"github.com/etaoin/tofcam/internal/transport"
)

// buildVersion, buildGitSHA, and buildTime are set at build time with
// -ldflags "-X main.buildVersion=... -X main.buildGitSHA=... -X
// main.buildTime=...". They stay "dev"/"unknown" for a plain go build.
var (
	buildVersion = "dev"
	buildGitSHA  = "unknown"
	buildTime    = "unknown"
)

var (
	showVersion   = flag.Bool("version", false, "print the version and exit")
	portPath      = flag.String("port", "/dev/ttyUSB0", "serial device path for the sensor")
	listen        = flag.String("listen", ":8080", "listen address for the debug HTTP surface")
	configPath    = flag.String("config", "", "path to a tuning config .json file (optional)")
	dbPath        = flag.String("db", "tofcam_events.db", "SQLite path for telemetry, used when telemetry is enabled")
	migrationsDir = flag.String("migrations", "migrations", "directory holding the telemetry schema migrations")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("tofcamd %s (%s, built %s)\n", buildVersion, buildGitSHA, buildTime)
		fmt.Printf("  port=%s listen=%s config=%s\n", *portPath, *listen, *configPath)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("tofcamd: load config: %v", err)
	}

	params := driver.DefaultParams()
	params.AutoRange.Sat = cfg.GetSat(params.AutoRange.Sat)
	params.AutoRange.Pct = cfg.GetPct(params.AutoRange.Pct)
	params.AutoRange.IHi = cfg.GetIHi(params.AutoRange.IHi)
	params.AutoRange.CX0, params.AutoRange.CY0, params.AutoRange.CW, params.AutoRange.CH = cfg.GetROI(
		[4]int{params.AutoRange.CX0, params.AutoRange.CY0, params.AutoRange.CW, params.AutoRange.CH})
	params.Temporal.F0 = cfg.GetF0(params.Temporal.F0)
	params.Temporal.NV = cfg.GetNV(params.Temporal.NV)
	params.VarLimit = cfg.GetVLim(params.VarLimit)

	recorder, closeRecorder, err := openRecorder(cfg)
	if err != nil {
		log.Fatalf("tofcamd: open telemetry: %v", err)
	}
	defer closeRecorder()

	if err := singleton.Acquire(transport.OpenSerial, params, recorder); err != nil {
		log.Fatalf("tofcamd: acquire driver: %v", err)
	}
	defer singleton.Release()

	if err := singleton.Start(*portPath); err != nil {
		log.Fatalf("tofcamd: start acquisition: %v", err)
	}

	d, _ := singleton.Default.Driver()
	monitoring.Logf("tofcamd: acquisition started on %s, session %s", *portPath, d.SessionID())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runHTTPServer(ctx, d)
	}()

	<-ctx.Done()
	monitoring.Logf("tofcamd: signal received, stopping acquisition")
	if err := singleton.Stop(); err != nil {
		monitoring.Logf("tofcamd: stop acquisition: %v", err)
	}

	wg.Wait()
	monitoring.Logf("tofcamd: graceful shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Empty(), nil
	}
	return config.Load(path)
}

func openRecorder(cfg *config.Config) (telemetry.Recorder, func(), error) {
	if !cfg.TelemetryEnabled() {
		return telemetry.NopRecorder{}, func() {}, nil
	}

	dbFile := cfg.TelemetryDBPath()
	if dbFile == "" {
		dbFile = *dbPath
	}
	rec, err := telemetry.OpenSQLite(dbFile, *migrationsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite telemetry store %s: %w", dbFile, err)
	}
	monitoring.Logf("tofcamd: telemetry enabled, writing to %s", dbFile)
	return rec, func() {
		if err := rec.Close(); err != nil {
			monitoring.Logf("tofcamd: close telemetry store: %v", err)
		}
	}, nil
}

func runHTTPServer(ctx context.Context, d *driver.Driver) {
	mux := http.NewServeMux()
	debugapi.AttachAdminRoutes(mux, d)

	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		frame := singleton.Latest(false)
		if frame == nil {
			http.Error(w, "no frame ready", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(frame)
	})

	server := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("tofcamd: HTTP server error: %v", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("tofcamd: shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("tofcamd: HTTP server shutdown error: %v", err)
		server.Close()
	}
}
