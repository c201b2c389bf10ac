package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/handoff/internal/auth"
	"github.com/charlesng35/handoff/internal/database"
	"github.com/charlesng35/handoff/internal/realtime"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, map[string]string{"sslmode": "require"}, cfg.Database.Postgres.Options)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.False(t, cfg.Relay.EchoToSender)
	require.False(t, cfg.Relay.CloseOnResolve)
	require.Equal(t, 16, cfg.Relay.SendBuffer)
	require.EqualValues(t, 8192, cfg.Relay.MaxMessageBytes)
	require.Equal(t, 30*time.Second, cfg.Relay.PongWait)
	require.Equal(t, []string{"app.example.com", "support.example.com"}, cfg.Relay.AllowedOrigins)
	require.Equal(t, 7*time.Second, cfg.Relay.TypingTTL)
	require.Equal(t, "@every 1m", cfg.Relay.SweepSchedule)
	require.Equal(t, "@every 5s", cfg.Relay.TypingSchedule)
	require.Equal(t, 10, cfg.Relay.AdmissionRate.Requests)
	require.Equal(t, 30*time.Second, cfg.Relay.AdmissionRate.Window)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.True(t, cfg.Relay.EchoToSender)
	require.True(t, cfg.Relay.CloseOnResolve)
	require.Equal(t, 64, cfg.Relay.SendBuffer)
	require.Equal(t, 10*time.Second, cfg.Relay.TypingTTL)
	require.Empty(t, cfg.Auth.JWT.Secret)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("HANDOFF_SERVER_PORT", "7070")
	t.Setenv("HANDOFF_RELAY_SEND_BUFFER", "8")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 8, cfg.Relay.SendBuffer)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8000},
			Database: DatabaseConfig{Driver: "sqlite"},
			Relay:    RelayConfig{WriteWait: 10 * time.Second, PongWait: time.Minute},
		}
	}

	cases := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"valid":           {mutate: func(*Config) {}},
		"unknown driver":  {mutate: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: "unsupported database driver"},
		"port range":      {mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		"negative buffer": {mutate: func(c *Config) { c.Relay.SendBuffer = -1 }, wantErr: "send_buffer"},
		"pong below write": {
			mutate:  func(c *Config) { c.Relay.PongWait = time.Second },
			wantErr: "pong_wait",
		},
		"log format":          {mutate: func(c *Config) { c.Server.LogFormat = "logfmt" }, wantErr: "log_format"},
		"negative typing ttl": {mutate: func(c *Config) { c.Relay.TypingTTL = -time.Second }, wantErr: "typing_ttl"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "secret", Issuer: "issuer", TTL: 30 * time.Minute, Leeway: 5 * time.Second}}
	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
		Leeway:         5 * time.Second,
	}, cfg.JWTServiceConfig())

	var empty AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, empty.JWTServiceConfig().AccessTokenTTL)
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "mysql",
		MySQL: DBAuthConfig{
			Host:     "mysql.internal",
			Port:     3306,
			Database: "handoff",
			Username: "relay",
			Password: "pw",
		},
		Postgres:     DBAuthConfig{Host: "ignored"},
		MaxOpenConns: 12,
	}

	require.Equal(t, database.Config{
		Driver:       "mysql",
		Host:         "mysql.internal",
		Port:         3306,
		Name:         "handoff",
		User:         "relay",
		Password:     "pw",
		MaxOpenConns: 12,
	}, cfg.ConnectionConfig())

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/x.sqlite", Postgres: DBAuthConfig{Host: "ignored"}}
	require.Equal(t, database.Config{Driver: "sqlite", Path: "./data/x.sqlite"}, sqlite.ConnectionConfig())
}

func TestRelayConfigAdapters(t *testing.T) {
	cfg := RelayConfig{
		EchoToSender:    true,
		SendBuffer:      4,
		MaxMessageBytes: 1024,
		WriteWait:       time.Second,
		PongWait:        5 * time.Second,
	}

	require.Equal(t, realtime.Options{
		WriteWait:       time.Second,
		PongWait:        5 * time.Second,
		MaxMessageBytes: 1024,
		SendBuffer:      4,
	}, cfg.ConnOptions())
	require.Len(t, cfg.RouterOptions(), 2)
}
