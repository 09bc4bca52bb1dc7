// Command server runs the shopkeeper station.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/TomCreeper/Shopkeepers/internal/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Run the shopkeeper station",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.Debug)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, logger, cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "./configs/server.yaml", "server config file")
	f.String("addr", ":8080", "http listen address")
	f.Bool("debug", false, "debug logging")
	f.String("data", "./data", "runtime data directory")
	f.String("settings", "", "path to settings.yaml (defaults when empty)")
	f.Bool("disable-index", false, "disable the sqlite station index")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func run(ctx context.Context, logger *zap.Logger, cfg serverConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	station, err := app.New(logger, reg, cfg.Station)
	if err != nil {
		return err
	}
	rep := station.LoadReport
	logger.Info("station ready",
		zap.Int("shopkeepers", rep.Loaded),
		zap.Int("failed", len(rep.Failures)),
		zap.Strings("worlds", station.Worlds.Names()))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if cfg.AdminHTTP {
		station.Routes(mux)
	} else {
		mux.HandleFunc("GET /v1/feed", station.Feed.Handler())
		logger.Info("admin endpoints disabled")
	}
	if cfg.Debug {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return station.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Websocket connections are hijacked and not closed by Shutdown.
		station.Feed.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if err := station.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	logger.Info("station stopped")
	return runErr
}
