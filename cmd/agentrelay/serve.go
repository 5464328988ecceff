package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	addr      string
	logLevel  string
	logFormat string
	provider  string
	model     string
}

var serveFlags serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP bridge",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveFlags.logFormat, "log-format", "", "Log format: json, text, console")
	serveCmd.Flags().StringVar(&serveFlags.provider, "provider", "", "Engine provider: anthropic, openai")
	serveCmd.Flags().StringVar(&serveFlags.model, "model", "", "Model name (provider default if empty)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	bridge, err := agentrelay.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, bridge, logger)
}

// loadConfig applies command-line flags on top of the loaded configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if serveFlags.addr != "" {
		cfg.Addr = serveFlags.addr
	}
	if serveFlags.logLevel != "" {
		cfg.Log.Level = serveFlags.logLevel
	}
	if serveFlags.logFormat != "" {
		cfg.Log.Format = serveFlags.logFormat
	}
	if serveFlags.provider != "" {
		cfg.Provider = serveFlags.provider
	}
	if serveFlags.model != "" {
		cfg.Model = serveFlags.model
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LogConfig) (*logging.RelayLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    os.Stderr,
		AddSource: cfg.AddSource,
		Component: "agentrelay",
	}), nil
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight
// responses and cancels the remaining runs.
func serve(ctx context.Context, cfg config.Config, bridge *agentrelay.Bridge, logger logging.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           bridge,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("agentrelay.started",
			"addr", cfg.Addr,
			"provider", cfg.Provider,
			"model", cfg.Model,
			"artifact_dir", cfg.ArtifactDir,
			"credential_env", cfg.CredentialEnv(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("agentrelay.shutting_down")

		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		// Runs end first so their streams terminate and Shutdown can drain them.
		runErr := bridge.Shutdown(shutdownCtx)
		srvErr := srv.Shutdown(shutdownCtx)
		return errors.Join(runErr, srvErr)
	})

	return g.Wait()
}
