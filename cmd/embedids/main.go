package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/embedids/internal/config"
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/events"
	"codeberg.org/mutker/embedids/internal/ids"
	"codeberg.org/mutker/embedids/internal/logger"
	"codeberg.org/mutker/embedids/internal/monitor"
	"codeberg.org/mutker/embedids/internal/observability"
	"codeberg.org/mutker/embedids/internal/pid"
	"codeberg.org/mutker/embedids/internal/source"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Set at build time with -ldflags "-X main.commit=..."
var commit = "unknown"

func main() {
	rootCmd := &cobra.Command{
		Use:   "embedids",
		Short: "Embedded intrusion and anomaly detection daemon",
		Long: `embedids samples host and GPU telemetry into fixed-size histories
and runs threshold, trend and custom detectors over every metric.

Commands:
  run       Start the monitoring daemon
  validate  Check a configuration file and print the metric registry
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "embedids %s (commit: %s)\n", ids.Version, commit)
		},
	}
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file and print the metric registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			registry, err := monitor.Build(cfg.Metrics)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, entry := range registry.Metrics[:registry.NumActiveMetrics] {
				m := entry.Metric
				fmt.Fprintf(out, "%-24s %-10s history=%-4d enabled=%-5t algorithms=%d\n",
					m.Name, m.Kind, m.Store.Cap(), m.Enabled, entry.NumAlgorithms)
			}
			fmt.Fprintf(out, "%d metrics OK\n", registry.NumActiveMetrics)

			return nil
		},
	}
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the monitoring daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
				return err
			}
			logger.Debug().Msg("Config loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()

	if err := pid.Write(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	registry, err := monitor.Build(cfg.Metrics)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	recorder, err := events.New(events.Config{
		Enabled:      cfg.Events.Enabled,
		DBPath:       cfg.Events.DBPath,
		BatchSize:    cfg.Events.BatchSize,
		BatchTimeout: time.Duration(cfg.Events.BatchTimeout) * time.Second,
		MaxBuffered:  cfg.Events.MaxBuffered,
	}, logger.With("events"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	opts := []monitor.Option{
		monitor.WithRecorder(recorder),
		monitor.WithInterval(time.Duration(cfg.Interval) * time.Second),
	}

	var metrics *observability.Metrics
	if cfg.Prometheus.Enabled {
		metrics = observability.New()
		opts = append(opts, monitor.WithMetrics(metrics))
	}

	sources := openSources(cfg.Sources)
	svc, err := monitor.New(registry, sources, opts...)
	if err != nil {
		for _, src := range sources {
			src.Close()
		}
		recorder.Close()
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("Shutdown incomplete")
		}
		logger.Info().Msg("Exiting...")
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})

	if metrics != nil {
		serveMetrics(gctx, g, cfg.Prometheus.Listen, metrics)
	}

	return g.Wait()
}

func openSources(cfg config.SourcesConfig) []source.Source {
	var sources []source.Source

	if cfg.Host {
		sources = append(sources, source.NewHost(cfg.DiskPath))
	}

	if cfg.GPU {
		gpu, err := source.NewGPU(0)
		if err != nil {
			logger.Warn().Err(err).Msg("GPU source unavailable, continuing without it")
		} else {
			logger.Info().Str("device", gpu.DeviceName()).Msg("GPU source ready")
			sources = append(sources, gpu)
		}
	}

	return sources
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, metrics *observability.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("listen", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New().Wrap(errors.ErrUnavailable, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
