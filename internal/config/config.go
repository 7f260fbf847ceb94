// Package config loads jobplan settings from config.yaml and JOBPLAN_*
// environment variables.
package config

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Parse  ParseConfig  `yaml:"parse" mapstructure:"parse"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite". For sqlite DatabaseURL is a file
	// path.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// FetchConfig configures remote file retrieval.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ParseConfig configures the plan file parser.
type ParseConfig struct {
	// AliasesPath optionally points at a YAML file of header aliases.
	AliasesPath string `yaml:"aliases_path" mapstructure:"aliases_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("JOBPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "jobplan/1.0")
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("parse.aliases_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings a command needs. Mode "serve" also checks
// the server section; any other mode checks only the store.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 || (c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns) {
		problems = append(problems, "store.min_conns must be between 0 and store.max_conns")
	}
	if c.Fetch.MaxRetries < 0 {
		problems = append(problems, "fetch.max_retries must not be negative")
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid (%s): %s", mode, strings.Join(problems, "; "))
	}
	return nil
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
