package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Alerts   AlertsConfig   `yaml:"alerts" mapstructure:"alerts"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Inbox    InboxConfig    `yaml:"inbox" mapstructure:"inbox"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RegistryConfig configures the remote panel registry.
type RegistryConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Secret      string `yaml:"secret" mapstructure:"secret"`
	CacheSecs   int    `yaml:"cache_secs" mapstructure:"cache_secs"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CacheTTL returns the panel snapshot freshness window.
func (r RegistryConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheSecs) * time.Second
}

// AlertsConfig configures the fire-and-forget alert endpoint.
type AlertsConfig struct {
	URL        string  `yaml:"url" mapstructure:"url"`
	Secret     string  `yaml:"secret" mapstructure:"secret"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
}

// PipelineConfig configures the conversation pipeline.
type PipelineConfig struct {
	// RestartSecs is the pause between batch scans.
	RestartSecs int `yaml:"restart_secs" mapstructure:"restart_secs"`
	// DatePolicy is "any" (accept any parseable message date) or
	// "today" (restrict to the current civil day).
	DatePolicy string `yaml:"date_policy" mapstructure:"date_policy"`
	// WriteRetries bounds annotation write attempts per conversation.
	WriteRetries int `yaml:"write_retries" mapstructure:"write_retries"`
	// Timezone is the fixed civil calendar used for code dates.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// RestartInterval returns the batch restart pause.
func (p PipelineConfig) RestartInterval() time.Duration {
	return time.Duration(p.RestartSecs) * time.Second
}

// InboxConfig configures the inbox source.
type InboxConfig struct {
	SnapshotPath string `yaml:"snapshot_path" mapstructure:"snapshot_path"`
}

// ServerConfig configures the control-surface HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DatePolicy values accepted by PipelineConfig.
const (
	DatePolicyAny   = "any"
	DatePolicyToday = "today"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AUTOTAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "autotag.db")
	v.SetDefault("registry.base_url", "https://accountant-services.co.uk")
	v.SetDefault("registry.cache_secs", 300)
	v.SetDefault("registry.timeout_secs", 10)
	v.SetDefault("alerts.rate_per_sec", 1)
	v.SetDefault("alerts.burst", 3)
	v.SetDefault("pipeline.restart_secs", 30)
	v.SetDefault("pipeline.date_policy", DatePolicyAny)
	v.SetDefault("pipeline.write_retries", 3)
	v.SetDefault("pipeline.timezone", "America/Argentina/Buenos_Aires")
	v.SetDefault("inbox.snapshot_path", "inbox.yaml")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Pipeline.DatePolicy != DatePolicyAny && cfg.Pipeline.DatePolicy != DatePolicyToday {
		return nil, eris.Errorf("config: unknown pipeline.date_policy %q", cfg.Pipeline.DatePolicy)
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
