package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers. "postgresql" is accepted as an alias of postgres.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config contains database connection options.
type Config struct {
	Driver string
	Path   string // SQLite file; empty or ":memory:" selects a shared in-memory database
	DSN    string // overrides every other connection field

	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type opener func(Config) (*gorm.DB, error)

var openers = map[string]opener{
	DriverSQLite:   openSQLite,
	DriverPostgres: openPostgres,
	DriverMySQL:    openMySQL,
}

// NormalizeDriver maps a configured driver name to one of the Driver constants. Empty means
// sqlite.
func NormalizeDriver(name string) (string, error) {
	switch driver := strings.ToLower(strings.TrimSpace(name)); driver {
	case "":
		return DriverSQLite, nil
	case "postgresql":
		return DriverPostgres, nil
	default:
		if _, ok := openers[driver]; ok {
			return driver, nil
		}
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// Open connects with the configured driver and applies the pool limits.
func Open(cfg Config) (*gorm.DB, error) {
	driver, err := NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := openers[driver](cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Ping verifies the connection is usable.
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool. A nil handle is a no-op.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormConfig is shared by every driver. Vendor errors are translated so duplicate keys surface
// as gorm.ErrDuplicatedKey.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}
