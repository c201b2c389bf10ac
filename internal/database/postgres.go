package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig())
}

// buildPostgresDSN renders a postgres:// URL so credentials with spaces or quotes survive.
// The result, or an explicit DSN override, is checked with the pgx parser before use.
func buildPostgresDSN(cfg Config) (string, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if cfg.User == "" || cfg.Name == "" {
			return "", errors.New("postgres configuration requires user and database name")
		}

		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == 0 {
			port = 5432
		}

		query := url.Values{}
		for key, value := range cfg.Options {
			query.Set(key, value)
		}
		if query.Get("sslmode") == "" {
			query.Set("sslmode", "disable")
		}

		u := url.URL{
			Scheme:   "postgres",
			User:     url.User(cfg.User),
			Host:     net.JoinHostPort(host, strconv.Itoa(port)),
			Path:     "/" + cfg.Name,
			RawQuery: query.Encode(),
		}
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		}
		dsn = u.String()
	}

	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return dsn, nil
}
