package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/proactor/internal/logger"
	"github.com/spf13/viper"
)

// Watch reloads the configuration file whenever it changes on disk and
// hands each valid result to onChange. Invalid edits are logged and
// skipped. Only settings that can change at runtime (such as the log
// level) should be acted upon by the callback.
func Watch(configPath string, onChange func(*Config)) error {
	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file for watching: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(configPath)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", "path", e.Name, "error", err)
			return
		}
		logger.Info("Configuration reloaded", "path", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
