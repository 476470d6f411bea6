package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/groundstation"
	"github.com/banshee-data/groundstation/internal/api"
	"github.com/banshee-data/groundstation/internal/config"
	"github.com/banshee-data/groundstation/internal/db"
	"github.com/banshee-data/groundstation/internal/metrics"
	"github.com/banshee-data/groundstation/internal/pipeline"
	"github.com/banshee-data/groundstation/internal/timeutil"
	"github.com/banshee-data/groundstation/internal/transport"
	"github.com/banshee-data/groundstation/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to YAML configuration file")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	dbPath      = flag.String("db", "", "Profile database path (overrides config)")
	devMode     = flag.Bool("dev", false, "Run in dev mode: start the synthetic stream and serve ./static from disk")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// applyFlags overlays command-line values onto the loaded configuration.
func applyFlags(cfg *config.Config) {
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *devMode {
		cfg.Synthetic.Autostart = true
	}
}

// startupConnector builds the connector for the configured transport, or nil
// when the station should wait for an operator.
func startupConnector(cfg *config.Config, central transport.Central) (transport.Connector, error) {
	if cfg.Transport.Kind == "" {
		return nil, nil
	}
	kind, err := transport.ParseKind(cfg.Transport.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case transport.KindSerial:
		sc := cfg.Transport.Serial.Transport()
		opts, err := sc.Options.Normalize()
		if err != nil {
			return nil, err
		}
		sc.Options = opts
		return transport.NewSerialConnector(sc, transport.HardwarePorts), nil
	case transport.KindWireless:
		return transport.NewWirelessConnector(cfg.Transport.Wireless.Transport(), central), nil
	case transport.KindSocket:
		return transport.NewSocketConnector(cfg.Transport.Socket.Transport()), nil
	}
	return nil, fmt.Errorf("unsupported transport kind %q", kind)
}

func printPorts() error {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		if err := printPorts(); err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	log.Printf("starting %s", version.String())

	var m *metrics.Metrics
	if cfg.MetricsEnabled() {
		m = metrics.New()
	}

	clock := timeutil.RealClock{}
	pipe := pipeline.New(pipeline.Config{
		Clock:             clock,
		AuditCapacity:     cfg.Audit.Capacity,
		AuditMaxText:      cfg.Audit.MaxText,
		SyntheticInterval: cfg.Synthetic.Interval,
		Metrics:           m,
	})
	sinks := api.AttachSinks(pipe, cfg.Charts.MaxPoints, clock)

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open profile database: %v", err)
	}
	defer store.Close()

	central := transport.NewBluetoothCentral(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := startupConnector(cfg, central)
	if err != nil {
		log.Fatalf("invalid startup transport: %v", err)
	}
	if c != nil {
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if _, err := pipe.Connect(connectCtx, c); err != nil {
			log.Printf("startup connect failed, waiting for operator: %v", err)
		}
		cancel()
	}
	if cfg.Synthetic.Autostart {
		if _, err := pipe.StartStream(); err != nil {
			log.Printf("failed to start synthetic stream: %v", err)
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(pipe, sinks, api.Options{
			DB:       store,
			Metrics:  m,
			Central:  central,
			Wireless: cfg.Transport.Wireless.Transport(),
			Socket:   cfg.Transport.Socket.Transport(),
			Clock:    clock,
		}).ServeMux()

		pipe.AttachAdminRoutes(mux)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		// serve the dashboard from disk in dev mode so edits show without a
		// rebuild
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticHandler = groundstation.StaticHandler()
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
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
	if err := pipe.Close(); err != nil {
		log.Printf("pipeline close error: %v", err)
	}
	log.Printf("graceful shutdown complete")
}
