package config

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Form       FormConfig       `yaml:"form" mapstructure:"form"`
	Weather    WeatherConfig    `yaml:"weather" mapstructure:"weather"`
	Toodledo   ToodledoConfig   `yaml:"toodledo" mapstructure:"toodledo"`
	Directory  DirectoryConfig  `yaml:"directory" mapstructure:"directory"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the fact store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FormConfig configures report generation.
type FormConfig struct {
	Type             string `yaml:"type" mapstructure:"type"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	ConcurrentFetch  bool   `yaml:"concurrent_fetch" mapstructure:"concurrent_fetch"`
	Template         string `yaml:"template" mapstructure:"template"`
}

// WeatherConfig holds forecast API settings. The key normally comes from the
// secrets file.
type WeatherConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ToodledoConfig holds Toodledo application and account credentials.
// Username is the account login; Email is accepted as an alias for it.
type ToodledoConfig struct {
	ID        string  `yaml:"id" mapstructure:"id"`
	Token     string  `yaml:"token" mapstructure:"token"`
	Username  string  `yaml:"username" mapstructure:"username"`
	Email     string  `yaml:"email" mapstructure:"email"`
	Password  string  `yaml:"password" mapstructure:"password"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Login returns the account login sent to account/lookup.php.
func (t ToodledoConfig) Login() string {
	if t.Username != "" {
		return t.Username
	}
	return t.Email
}

// DirectoryConfig points at the identity directory file. Empty Path means
// the built-in static identity.
type DirectoryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	Zip  string `yaml:"zip" mapstructure:"zip"`
	User string `yaml:"user" mapstructure:"user"`
}

// ResilienceConfig configures retries and circuit breakers around sources.
type ResilienceConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the report server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DAILYFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dailyform.db")
	v.SetDefault("form.type", "DailyForm")
	v.SetDefault("form.fetch_timeout_secs", 10)
	v.SetDefault("form.concurrent_fetch", false)
	v.SetDefault("weather.base_url", "http://api.wunderground.com")
	v.SetDefault("weather.rate_limit", 1.0)
	v.SetDefault("toodledo.base_url", "http://api.toodledo.com/2")
	v.SetDefault("toodledo.rate_limit", 2.0)
	v.SetDefault("directory.zip", "07307")
	v.SetDefault("directory.user", "Andy")
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 5000)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 60)
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

	return &cfg, nil
}

// Secrets is the local secrets file, kept apart from config.yaml.
//
//	[weather]
//	api_key = "..."
type Secrets struct {
	Weather struct {
		APIKey string `toml:"api_key"`
	} `toml:"weather"`
}

// LoadSecrets reads a TOML secrets file. A missing file yields empty secrets.
func LoadSecrets(path string) (*Secrets, error) {
	var s Secrets
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "config: read secrets %s", path)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "config: parse secrets %s", path)
	}
	return &s, nil
}

// ApplySecrets fills credentials the config left empty.
func (c *Config) ApplySecrets(s *Secrets) {
	if s == nil {
		return
	}
	if c.Weather.Key == "" {
		c.Weather.Key = s.Weather.APIKey
	}
}

// Validate checks the settings a command needs. mode is "run" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string
	if c.Form.FetchTimeoutSecs < 0 {
		errs = append(errs, "form.fetch_timeout_secs must be >= 0")
	}
	if c.Form.Type == "" {
		errs = append(errs, "form.type is required")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}

	switch mode {
	case "run":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
