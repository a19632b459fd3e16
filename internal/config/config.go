package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the top-level application configuration.
type Config struct {
	CRM       CRMConfig       `yaml:"crm" mapstructure:"crm"`
	RateLimit RateLimitConfig `yaml:"ratelimit" mapstructure:"ratelimit"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CRMConfig configures the GoHighLevel client and gateway.
type CRMConfig struct {
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	LocationID        string  `yaml:"location_id" mapstructure:"location_id"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	APIVersion        string  `yaml:"api_version" mapstructure:"api_version"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	DuplicateStrategy string  `yaml:"duplicate_strategy" mapstructure:"duplicate_strategy"`
	ContactSource     string  `yaml:"contact_source" mapstructure:"contact_source"`
	OpportunitySource string  `yaml:"opportunity_source" mapstructure:"opportunity_source"`
	PipelinesFile     string  `yaml:"pipelines_file" mapstructure:"pipelines_file"`
}

// Timeout returns the per-call CRM timeout.
func (c CRMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RateLimitConfig configures the per-client submission limiter.
type RateLimitConfig struct {
	Backend           string `yaml:"backend" mapstructure:"backend"`
	MaxRequests       int    `yaml:"max_requests" mapstructure:"max_requests"`
	WindowSecs        int    `yaml:"window_secs" mapstructure:"window_secs"`
	SweepIntervalSecs int    `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
	MaxKeys           int    `yaml:"max_keys" mapstructure:"max_keys"`
	RedisURL          string `yaml:"redis_url" mapstructure:"redis_url"`
}

// Window returns the sliding window length.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

// SweepInterval returns the memory backend sweep period.
func (c RateLimitConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// StoreConfig selects the submission ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Postgres pool bounds; 0 keeps the store defaults.
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port       int    `yaml:"port" mapstructure:"port"`
	TrustProxy bool   `yaml:"trust_proxy" mapstructure:"trust_proxy"`
	ScriptPath string `yaml:"script_path" mapstructure:"script_path"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MissingSecrets lists the CRM credentials that are not set, by config key.
func (c *Config) MissingSecrets() []string {
	var missing []string
	if c.CRM.APIKey == "" {
		missing = append(missing, "crm.api_key")
	}
	if c.CRM.LocationID == "" {
		missing = append(missing, "crm.location_id")
	}
	return missing
}

// Validate checks the settings that cannot be defaulted and reports every
// problem at once. Missing CRM secrets are not an error here: the server
// starts and reports them per request.
func (c *Config) Validate() error {
	var problems []string

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisURL == "" {
			problems = append(problems, "ratelimit.redis_url is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown ratelimit.backend %q", c.RateLimit.Backend))
	}
	if c.RateLimit.MaxRequests <= 0 {
		problems = append(problems, "ratelimit.max_requests must be > 0")
	}
	if c.RateLimit.WindowSecs <= 0 {
		problems = append(problems, "ratelimit.window_secs must be > 0")
	}

	switch c.Store.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, fmt.Sprintf("store.database_url is required for the %s driver", c.Store.Driver))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 {
		problems = append(problems, "store.max_conns and store.min_conns must be >= 0")
	} else if c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns {
		problems = append(problems, "store.min_conns must not exceed store.max_conns")
	}

	if c.CRM.TimeoutSecs <= 0 {
		problems = append(problems, "crm.timeout_secs must be > 0")
	}
	if c.CRM.RequestsPerSecond < 0 {
		problems = append(problems, "crm.requests_per_second must be >= 0")
	}
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads config.yaml (optional) and LEADHOOK_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The deployment's established variable names.
	if err := v.BindEnv("crm.api_key", "LEADHOOK_CRM_API_KEY", "GOHIGHLEVEL_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind crm.api_key")
	}
	if err := v.BindEnv("crm.location_id", "LEADHOOK_CRM_LOCATION_ID", "GOHIGHLEVEL_LOCATION_ID"); err != nil {
		return nil, eris.Wrap(err, "config: bind crm.location_id")
	}

	v.SetDefault("crm.api_key", "")
	v.SetDefault("crm.location_id", "")
	v.SetDefault("crm.base_url", "https://services.leadconnectorhq.com")
	v.SetDefault("crm.api_version", "2021-07-28")
	v.SetDefault("crm.timeout_secs", 30)
	v.SetDefault("crm.requests_per_second", 0)
	v.SetDefault("crm.duplicate_strategy", "meta")
	v.SetDefault("crm.contact_source", "Website - jetcargo.us")
	v.SetDefault("crm.opportunity_source", "Website Form")
	v.SetDefault("crm.pipelines_file", "")
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.max_requests", 5)
	v.SetDefault("ratelimit.window_secs", 3600)
	v.SetDefault("ratelimit.sweep_interval_secs", 300)
	v.SetDefault("ratelimit.max_keys", 100000)
	v.SetDefault("ratelimit.redis_url", "")
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.script_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger replaces the global zap logger according to cfg.
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
