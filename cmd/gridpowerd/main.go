// gridpowerd is the gridpower ingest and query daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/server"
	"github.com/xtxerr/gridpower/internal/source"
	"github.com/xtxerr/gridpower/internal/storage"
	"github.com/xtxerr/gridpower/internal/storage/config"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("gridpowerd")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gridpowerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// CLI flags
	cfgPath := flag.String("config", "gridpower.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	listen := flag.String("listen", "", "listen address (overrides config and env)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	// CLI overrides
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Logging.Format == "json")

	log.Info("starting", "version", Version, "listen", cfg.Server.Listen)

	// =========================================================================
	// Storage
	// =========================================================================

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := storage.New(cfg, reg)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	if err := svc.Start(); err != nil {
		return fmt.Errorf("start storage: %w", err)
	}
	defer svc.Stop()

	// =========================================================================
	// Transports
	// =========================================================================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	srv := server.New(cfg.Server, svc, svc.Metrics().Handler())
	g.Go(func() error {
		return srv.Run(ctx)
	})

	for _, src := range sources(cfg, svc) {
		src := src
		g.Go(func() error {
			if err := src.Run(ctx); err != nil {
				return fmt.Errorf("%s source: %w", src.Name(), err)
			}
			return nil
		})
	}

	err = g.Wait()

	st := svc.Stats()
	log.Info("stopped",
		"sessions", st.Ingestion.SessionsStarted,
		"rows_accepted", st.Ingestion.RowsAccepted,
		"rows_rejected", st.Ingestion.RowsRejected)

	return err
}

// loadConfig reads path, falling back to defaults plus environment when the
// file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg = config.DefaultConfig()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func sources(cfg *config.Config, svc *storage.Service) []source.Source {
	var out []source.Source
	if cfg.MQTT.Enabled {
		out = append(out, source.NewMQTT(cfg.MQTT, svc))
	}
	if cfg.Kafka.Enabled {
		out = append(out, source.NewKafka(cfg.Kafka, svc))
	}
	return out
}
