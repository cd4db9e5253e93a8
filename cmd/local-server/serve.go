package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"local_server"
	"local_server/internal/config"
	"local_server/internal/logging"
)

// Serve flags
var (
	serveAddr     string
	serveNetwork  string
	serveLogLevel string
	serveStatic   []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server in the foreground",
	Long: `Start the server in the foreground.

Built-in routes:
  GET  /health        liveness probe
  GET  /api/v1/info   server version and registered routes
  POST /api/v1/echo   echoes the request body

Static directories are mounted with --static prefix=dir or the [[static]]
config table. SIGINT or SIGTERM shuts the server down gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveNetwork, "network", "", "Listen network: tcp, tcp4, tcp6 or unix (overrides config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	serveCmd.Flags().StringArrayVar(&serveStatic, "static", nil, "Mount a static directory as prefix=dir (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags layers CLI flags over the loaded config.
// Precedence: CLI flag > env var > config file > default.
func applyServeFlags(cfg *config.Config) error {
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if serveNetwork != "" {
		cfg.Network = serveNetwork
	}
	if serveLogLevel != "" {
		cfg.Log.Level = serveLogLevel
	}
	for _, s := range serveStatic {
		m, err := config.ParseStaticMount(s)
		if err != nil {
			return err
		}
		cfg.Static = append(cfg.Static, m)
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cfg); err != nil {
		return err
	}

	logger := logging.NewLogger(os.Stderr, logging.LevelFromString(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(logger)

	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("local-server listening", "network", srv.Network, "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, local_server.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "served", srv.Served())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newServer(cfg *config.Config, logger *slog.Logger) (*local_server.Server, error) {
	timeouts, err := cfg.Timeouts()
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return &local_server.Server{
		Network:           cfg.Network,
		Addr:              cfg.Addr,
		Conductor:         local_server.NewConductor(registry, local_server.WithLogger(logger)),
		ReadHeaderTimeout: timeouts.ReadHeader,
		ReadTimeout:       timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		Logger:            logger,
	}, nil
}
