// Package config loads finbr settings from config.yaml, FINBR_* environment
// variables, an optional .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v6"
	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const EnvPrefix = "FINBR"

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	CompanyID string          `mapstructure:"company_id"`
	Server    ServerConfig    `mapstructure:"server"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Hierarchy HierarchyConfig `mapstructure:"hierarchy"`
	Classify  ClassifyConfig  `mapstructure:"classify"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Secrets   Secrets         `mapstructure:"secrets"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MaxUploadBytes caps multipart uploads.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// ArchiveConfig enables the GCS archive when Bucket is set.
type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

type HierarchyConfig struct {
	// TTL of the cached hierarchy snapshot; zero disables caching.
	TTL time.Duration `mapstructure:"ttl"`
}

type ClassifyConfig struct {
	LargeBatchThreshold int  `mapstructure:"large_batch_threshold"`
	ProgressEvery       int  `mapstructure:"progress_every"`
	StopOnError         bool `mapstructure:"stop_on_error"`
}

type WatchConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// Secrets come from the environment first; values in the config file only
// fill what the environment leaves empty.
type Secrets struct {
	DatabaseURL       string `mapstructure:"database_url" env:"DATABASE_URL"`
	YNABToken         string `mapstructure:"ynab_token" env:"YNAB_ACCESS_TOKEN"`
	GoogleCredentials string `mapstructure:"google_credentials" env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

func defaults() map[string]any {
	return map[string]any{
		"log_level":                      "info",
		"company_id":                     "",
		"server.addr":                    "0.0.0.0:3000",
		"server.allowed_origins":         []string{"*"},
		"server.max_upload_bytes":        int64(10 << 20),
		"archive.bucket":                 "",
		"archive.prefix":                 "raw",
		"hierarchy.ttl":                  5 * time.Minute,
		"classify.large_batch_threshold": 500,
		"classify.progress_every":        100,
		"classify.stop_on_error":         false,
		"watch.schedule":                 "@every 1h",
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"company":   "company_id",
	"addr":      "server.addr",
	"bucket":    "archive.bucket",
	"schedule":  "watch.schedule",
}

// Build reads the config file (cfgFile, or ./config.yaml when present), then
// FINBR_* variables, then the flags that were set.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	secrets, err := readSecrets(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	cfg.Secrets = *secrets

	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	return &cfg, nil
}

func readSecrets(fromFile Secrets) (*Secrets, error) {
	envSecrets := Secrets{}
	if err := env.Parse(&envSecrets); err != nil {
		return nil, fmt.Errorf("failed to parse env secrets: %w", err)
	}
	if err := mergo.Merge(&envSecrets, fromFile); err != nil {
		return nil, fmt.Errorf("failed to merge secrets: %w", err)
	}
	return &envSecrets, nil
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger(prefix string) *log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    level == log.DebugLevel,
		ReportTimestamp: true,
		Prefix:          prefix,
		Level:           level,
	})
}
