package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/shiftwatch/internal/api"
	"github.com/fentz26/shiftwatch/internal/audit"
	"github.com/fentz26/shiftwatch/internal/clock"
	"github.com/fentz26/shiftwatch/internal/config"
	"github.com/fentz26/shiftwatch/internal/logging"
	"github.com/fentz26/shiftwatch/internal/store"
	"github.com/fentz26/shiftwatch/internal/sweeper"
)

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the shiftwatch daemon",
	Long:  `Starts the shiftwatch daemon which serves the HTTP API and runs the unclosed-shift sweeper.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}

	log := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	log.Info().Str("config", configPath).Msg("starting shiftwatch daemon")

	// An inconsistent catalog is fatal; softer problems are only logged.
	codec, warnings, err := cfg.Codec()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn().Msg(w)
	}

	// Initialize store
	s, err := store.New(cfg.DB)
	if err != nil {
		return err
	}

	// Initialize components
	rec := audit.NewRecorder(s, logging.Component(log, "audit"))
	clk := clock.System{}

	service := api.NewService(s, codec, clk, rec, logging.Component(log, "service"))
	server := api.NewServer(service, cfg.Listen, api.RateLimit{
		PerSecond: cfg.RateLimit.PerSecond,
		Burst:     cfg.RateLimit.Burst,
	}, logging.Component(log, "http"))

	var sw *sweeper.Sweeper
	if cfg.Sweeper.Enabled {
		sw, err = sweeper.New(s, rec, clk, logging.Component(log, "sweeper"), cfg.Sweeper.Spec)
		if err != nil {
			s.Close()
			return err
		}
		sw.Start()
		server.SetSweeper(sw)
	}

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			if sw != nil {
				sw.Stop()
			}
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if sw != nil {
		sw.Stop()
	}

	log.Info().Msg("closing database connection")
	if err := s.Close(); err != nil {
		log.Error().Err(err).Msg("database close error")
	}

	log.Info().Msg("shutdown complete")
	return nil
}
