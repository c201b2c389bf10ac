package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/handoff/internal/database"
)

// Config represents the runtime configuration for the handoff relay.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Postgres        DBAuthConfig  `mapstructure:"postgres"`
	MySQL           DBAuthConfig  `mapstructure:"mysql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// AuthConfig captures authentication settings for admission tokens.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
	Leeway time.Duration `mapstructure:"leeway"`
}

// RelayConfig tunes the relay core, its websocket transport and the maintenance jobs.
type RelayConfig struct {
	EchoToSender    bool          `mapstructure:"echo_to_sender"`
	CloseOnResolve  bool          `mapstructure:"close_on_resolve"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	TypingTTL       time.Duration `mapstructure:"typing_ttl"`
	SweepSchedule   string        `mapstructure:"sweep_schedule"`
	TypingSchedule  string        `mapstructure:"typing_schedule"`
	AdmissionRate   RateSettings  `mapstructure:"admission_rate"`
}

// RateSettings bounds requests per client and path within a window. Zero requests disables it.
type RateSettings struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// MonitoringConfig enables metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("HANDOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if _, err := database.NormalizeDriver(c.Database.Driver); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(strings.TrimSpace(c.Server.LogFormat)) {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: unsupported server.log_format %q", c.Server.LogFormat)
	}
	if c.Relay.SendBuffer < 0 {
		return errors.New("config: relay.send_buffer must not be negative")
	}
	if c.Relay.WriteWait > 0 && c.Relay.PongWait > 0 && c.Relay.PongWait <= c.Relay.WriteWait {
		return errors.New("config: relay.pong_wait must exceed relay.write_wait")
	}
	if c.Relay.TypingTTL < 0 {
		return errors.New("config: relay.typing_ttl must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/handoff.sqlite")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")

	v.SetDefault("auth.jwt.issuer", "handoff")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.jwt.leeway", "30s")

	v.SetDefault("relay.echo_to_sender", true)
	v.SetDefault("relay.close_on_resolve", true)
	v.SetDefault("relay.send_buffer", 64)
	v.SetDefault("relay.max_message_bytes", 64*1024)
	v.SetDefault("relay.write_wait", "10s")
	v.SetDefault("relay.pong_wait", "60s")
	v.SetDefault("relay.allowed_origins", []string{})
	v.SetDefault("relay.typing_ttl", "10s")
	v.SetDefault("relay.sweep_schedule", "@every 30s")
	v.SetDefault("relay.typing_schedule", "@every 5s")
	v.SetDefault("relay.admission_rate.requests", 30)
	v.SetDefault("relay.admission_rate.window", "1m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
