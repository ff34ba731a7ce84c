package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/marmos91/proactor/internal/logger"
	"github.com/marmos91/proactor/internal/telemetry"
	"github.com/marmos91/proactor/pkg/config"
	"github.com/marmos91/proactor/pkg/metrics"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the chat and file servers",
	Long: `Start the proactord servers in the foreground.

Every accepted connection is registered with one shared dispatcher and
served by its own worker. SIGINT or SIGTERM stops accepting, waits up to
shutdown_timeout for open connections, then waits for running workers.

Examples:
  # Start with the default config (or defaults if none exists)
  proactord start

  # Start with a custom config file
  proactord start --config /etc/proactor/config.yaml

  # Override settings from the environment
  PROACTOR_LOGGING_LEVEL=DEBUG PROACTOR_FILES_ROOT=/srv/files proactord start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "proactord",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "proactord",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	// The registry must exist before the stack is built so that every
	// component picks up its collectors.
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, metrics.InitRegistry())
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	s, err := newStack(cfg)
	if err != nil {
		return err
	}

	if path := configPath(); path != "" {
		if err := config.Watch(path, func(c *config.Config) {
			logger.SetLevel(c.Logging.Level)
		}); err != nil {
			logger.Warn("Config hot reload unavailable", "error", err)
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.",
		"chat", cfg.Chat.Enabled, "files", cfg.Files.Enabled,
		"max_workers", cfg.Dispatcher.MaxWorkers)

	err = s.run(ctx)
	if err != nil {
		logger.Error("Server stopped with errors", "error", err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// configPath is the file to watch for changes, or "" when running on
// defaults alone.
func configPath() string {
	if f := GetConfigFile(); f != "" {
		return f
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}
