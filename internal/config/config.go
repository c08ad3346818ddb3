// Package config loads settings from config.yaml, the environment and .env,
// and sets up the global logger.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment override, e.g.
// WEATHER_LOG_LEVEL for log.level.
const EnvPrefix = "WEATHER"

// Config holds the full application configuration.
type Config struct {
	DataDir string        `yaml:"data_dir" mapstructure:"data_dir"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Locate  LocateConfig  `yaml:"locate" mapstructure:"locate"`
	Refresh RefreshConfig `yaml:"refresh" mapstructure:"refresh"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Coastal CoastalConfig `yaml:"coastal" mapstructure:"coastal"`
}

// LogConfig configures the zap logger. File is used only by the TUI, which
// cannot share the terminal with log output.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// HTTPConfig applies to every upstream request.
type HTTPConfig struct {
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RetryConfig configures exponential backoff for transient upstream failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// BreakerConfig configures the per-host circuit breakers.
type BreakerConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GeocodeConfig configures the Nominatim fallback.
type GeocodeConfig struct {
	NominatimURL  string  `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// LocateConfig selects how "current location" is found. Provider "ip" asks
// IPURL; "static" uses the fixed coordinates.
type LocateConfig struct {
	Provider string  `yaml:"provider" mapstructure:"provider"`
	IPURL    string  `yaml:"ip_url" mapstructure:"ip_url"`
	Lat      float64 `yaml:"lat" mapstructure:"lat"`
	Lon      float64 `yaml:"lon" mapstructure:"lon"`
	City     string  `yaml:"city" mapstructure:"city"`
	State    string  `yaml:"state" mapstructure:"state"`
}

// RefreshConfig configures the auto-refresh timer.
type RefreshConfig struct {
	AutoInterval time.Duration `yaml:"auto_interval" mapstructure:"auto_interval"`
	AutoEnabled  bool          `yaml:"auto_enabled" mapstructure:"auto_enabled"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// CoastalConfig bounds how far away a tide station or marine zone may be
// and still be shown.
type CoastalConfig struct {
	MaxStationMiles float64 `yaml:"max_station_miles" mapstructure:"max_station_miles"`
	MaxZoneMiles    float64 `yaml:"max_zone_miles" mapstructure:"max_zone_miles"`
}

// LocateProvider values.
const (
	LocateIP     = "ip"
	LocateStatic = "static"
)

// ErrInvalid is returned for settings that load but cannot be used.
var ErrInvalid = eris.New("config: invalid")

// Load reads .env (if present), then config.yaml from the working directory
// or $HOME/.config/weather-terminal, then WEATHER_* environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "weather-terminal"))
	}

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data_dir", "data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("http.user_agent", "weather-terminal/1.0 (github.com/ngmaloney/weather-terminal)")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", 500*time.Millisecond)
	v.SetDefault("retry.max_backoff", 10*time.Second)
	v.SetDefault("breaker.timeout", 2*time.Minute)
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.rate_per_second", 1.0)
	v.SetDefault("locate.provider", LocateIP)
	v.SetDefault("locate.ip_url", "http://ip-api.com/json/?fields=status,message,lat,lon,city,region")
	v.SetDefault("locate.lat", 0.0)
	v.SetDefault("locate.lon", 0.0)
	v.SetDefault("locate.city", "")
	v.SetDefault("locate.state", "")
	v.SetDefault("refresh.auto_interval", 5*time.Minute)
	v.SetDefault("refresh.auto_enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("coastal.max_station_miles", 30.0)
	v.SetDefault("coastal.max_zone_miles", 25.0)

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

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Locate.Provider {
	case LocateIP, LocateStatic:
	default:
		return eris.Wrapf(ErrInvalid, "config: locate.provider %q (want %q or %q)", c.Locate.Provider, LocateIP, LocateStatic)
	}
	if c.Refresh.AutoInterval <= 0 {
		return eris.Wrapf(ErrInvalid, "config: refresh.auto_interval %s", c.Refresh.AutoInterval)
	}
	return nil
}

// LogFile is where the TUI writes its log: log.file, or a file in the data
// directory.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "weather-terminal.log")
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

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return eris.Wrapf(err, "config: create log directory for %s", cfg.File)
		}
		zapCfg.OutputPaths = []string{cfg.File}
		zapCfg.ErrorOutputPaths = []string{cfg.File}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
