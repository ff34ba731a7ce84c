package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/proactor/internal/bytesize"
)

// Default ports.
const (
	DefaultChatPort    = 8080
	DefaultFilesPort   = 8081
	DefaultMetricsPort = 9090
)

// DefaultChunkSize is the raw payload size of one base64 chunk. A multiple
// of 3 keeps every encoded chunk free of padding.
const DefaultChunkSize = 1023

// ApplyDefaults fills zero-valued fields with defaults. Explicit values are
// preserved; booleans are left alone since false is a valid choice.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyChatDefaults(&cfg.Chat)
	applyFilesDefaults(&cfg.Files)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

func applyChatDefaults(cfg *ChatConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultChatPort
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = bytesize.KiB
	}
}

func applyFilesDefaults(cfg *FilesConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultFilesPort
	}
	if cfg.Root == "" {
		cfg.Root = defaultFilesRoot()
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 64 * bytesize.MiB
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
}

// defaultFilesRoot is ~/proactor, or ./proactor-files without a home directory.
func defaultFilesRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "proactor-files"
	}
	return filepath.Join(home, "proactor")
}

// GetDefaultConfig returns a Config with both servers enabled and every
// default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Chat:  ChatConfig{ListenerConfig: ListenerConfig{Enabled: true}},
		Files: FilesConfig{ListenerConfig: ListenerConfig{Enabled: true}},
	}
	ApplyDefaults(cfg)
	return cfg
}
