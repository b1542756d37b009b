package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tejusbharadwaj/gatewaydash/internal/scheduler"
)

// EnvPrefix prefixes environment overrides, e.g. DASH_GATEWAY_URL.
const EnvPrefix = "DASH"

// Config holds all configuration for our application
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Polling  PollingConfig  `mapstructure:"polling" yaml:"polling"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig configures the operator HTTP surface and the gRPC health port.
type ServerConfig struct {
	Host           string  `mapstructure:"host" yaml:"host"`
	Port           int     `mapstructure:"port" yaml:"port"`
	GRPCPort       int     `mapstructure:"grpc_port" yaml:"grpc_port"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// GatewayConfig locates the remote REST service.
type GatewayConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// PollingConfig holds cron specs of the polled views.
type PollingConfig struct {
	Sensors string `mapstructure:"sensors" yaml:"sensors"`
	Latest  string `mapstructure:"latest" yaml:"latest"`
}

type CacheConfig struct {
	RecordingsSize int `mapstructure:"recordings_size" yaml:"recordings_size"`
}

type DatabaseConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	Host              string `mapstructure:"host" yaml:"host"`
	Port              int    `mapstructure:"port" yaml:"port"`
	Name              string `mapstructure:"name" yaml:"name"`
	User              string `mapstructure:"user" yaml:"user"`
	Password          string `mapstructure:"password" yaml:"password"`
	SSLMode           string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	Timescale         bool   `mapstructure:"timescale" yaml:"timescale"`
	MaxConnections    int    `mapstructure:"max_connections" yaml:"max_connections"`
	ConnectionTimeout int    `mapstructure:"connection_timeout" yaml:"connection_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from file and environment variables.
//
// ${VAR} references inside the file are expanded first; then any key can be
// overridden with a DASH_ prefixed variable (DASH_GATEWAY_URL overrides
// gateway.url). An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))

		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Gateway.URL == "" {
		errs = append(errs, errors.New("gateway.url is required"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout must be positive"))
	}
	if _, err := scheduler.ParseInterval(c.Polling.Sensors); err != nil {
		errs = append(errs, fmt.Errorf("polling.sensors: %w", err))
	}
	if _, err := scheduler.ParseInterval(c.Polling.Latest); err != nil {
		errs = append(errs, fmt.Errorf("polling.latest: %w", err))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port out of range: %d", c.Server.GRPCPort))
	}
	if c.Cache.RecordingsSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.recordings_size must be positive: %d", c.Cache.RecordingsSize))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("logging.format must be json or text: %q", c.Logging.Format))
	}
	if c.Database.Enabled && c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required when the archive is enabled"))
	}

	return errors.Join(errs...)
}

// DSN builds a lib/pq connection string from the database section.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
		d.ConnectionTimeout,
	)
}

// Dump renders the effective configuration as YAML with the password masked.
func (c *Config) Dump() ([]byte, error) {
	masked := *c
	if masked.Database.Password != "" {
		masked.Database.Password = "********"
	}
	return yaml.Marshal(&masked)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.grpc_port", 50053)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)

	v.SetDefault("gateway.url", "http://localhost:8080")
	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("gateway.rate_limit", 0.0)
	v.SetDefault("gateway.rate_limit_burst", 10)

	v.SetDefault("polling.sensors", "@every 10s")
	v.SetDefault("polling.latest", "@every 2s")

	v.SetDefault("cache.recordings_size", 128)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "gatewaydash")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.timescale", false)
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.connection_timeout", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
