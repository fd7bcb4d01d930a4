// Package config loads runtime configuration from defaults, an
// optional tiendita.yaml and TIENDITA_* environment variables, in
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string

	// HubURL is the WebSocket endpoint of the sync hub.
	HubURL string

	// HubAddr is the listen address when running the hub.
	HubAddr string

	// Root is the tenant namespace on the shared tree.
	Root string

	// SweepInterval paces the periodic full upload sweep.
	SweepInterval time.Duration

	// NotifyDebounce coalesces change notifications.
	NotifyDebounce time.Duration

	// LogFile, when set, routes logs to a rotating file instead of
	// stderr.
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load resolves configuration. A missing config file is fine; a
// malformed one is not.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("hub_url", "ws://localhost:8537/ws")
	v.SetDefault("hub_addr", ":8537")
	v.SetDefault("root", "graciadivina")
	v.SetDefault("sweep_interval", "10s")
	v.SetDefault("notify_debounce", "1s")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)

	v.SetConfigName("tiendita")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "tiendita"))
	}

	v.SetEnvPrefix("TIENDITA")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DBPath:         v.GetString("db_path"),
		HubURL:         v.GetString("hub_url"),
		HubAddr:        v.GetString("hub_addr"),
		Root:           v.GetString("root"),
		SweepInterval:  v.GetDuration("sweep_interval"),
		NotifyDebounce: v.GetDuration("notify_debounce"),
		LogFile:        v.GetString("log_file"),
		LogMaxSizeMB:   v.GetInt("log_max_size_mb"),
		LogMaxBackups:  v.GetInt("log_max_backups"),
		LogMaxAgeDays:  v.GetInt("log_max_age_days"),
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep_interval must be positive (got %s)", cfg.SweepInterval)
	}
	if cfg.NotifyDebounce <= 0 {
		return nil, fmt.Errorf("notify_debounce must be positive (got %s)", cfg.NotifyDebounce)
	}
	return cfg, nil
}

// LogWriter returns the destination for log output: a rotating file
// when LogFile is configured, stderr otherwise.
func (c *Config) LogWriter() io.Writer {
	if c.LogFile == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAgeDays,
		Compress:   true,
	}
}

// NewLogger returns a logger with the given bracket prefix, writing to
// the configured sink.
func (c *Config) NewLogger(prefix string) *log.Logger {
	return log.New(c.LogWriter(), prefix, log.LstdFlags)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tiendita.db"
	}
	return filepath.Join(home, ".local", "share", "tiendita", "tiendita.db")
}
