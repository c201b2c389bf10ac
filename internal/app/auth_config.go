package app

import (
	"github.com/charlesng35/handoff/internal/auth"
	"github.com/charlesng35/handoff/internal/database"
	"github.com/charlesng35/handoff/internal/realtime"
	"github.com/charlesng35/handoff/internal/relay"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
		Leeway:         c.JWT.Leeway,
	}
}

// ConnectionConfig converts DatabaseConfig into database.Open parameters, picking the host
// settings block that matches the driver.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	driver, _ := database.NormalizeDriver(c.Driver)
	var host DBAuthConfig
	switch driver {
	case database.DriverPostgres:
		host = c.Postgres
	case database.DriverMySQL:
		host = c.MySQL
	default:
		return cfg
	}

	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password
	cfg.Options = host.Options
	return cfg
}

// ConnOptions converts RelayConfig into websocket connection options.
func (c RelayConfig) ConnOptions() realtime.Options {
	return realtime.Options{
		WriteWait:       c.WriteWait,
		PongWait:        c.PongWait,
		MaxMessageBytes: c.MaxMessageBytes,
		SendBuffer:      c.SendBuffer,
	}
}

// RouterOptions converts RelayConfig into relay router options.
func (c RelayConfig) RouterOptions() []relay.RouterOption {
	return []relay.RouterOption{
		relay.WithEchoToSender(c.EchoToSender),
		relay.WithCloseOnResolve(c.CloseOnResolve),
	}
}
