package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/handoff/internal/app"
	"github.com/charlesng35/handoff/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Server:   app.ServerConfig{Port: 8000},
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "handoff.sqlite")},
		Auth: app.AuthConfig{JWT: app.JWTSettings{
			Secret: "bootstrap-test-secret",
			Issuer: "test",
			TTL:    time.Minute,
		}},
		Relay: app.RelayConfig{
			EchoToSender:   true,
			CloseOnResolve: true,
			SweepSchedule:  "@every 1m",
			TypingSchedule: "@every 1m",
			TypingTTL:      5 * time.Second,
		},
	}
}

func TestBootstrapRuntime(t *testing.T) {
	stack, err := bootstrapRuntime(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.Manager)

	require.True(t, stack.DB.Migrator().HasTable(&models.Conversation{}))
	require.True(t, stack.DB.Migrator().HasTable(&models.TicketEvent{}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stack.Shutdown(ctx, zap.NewNop())

	sqlDB, err := stack.DB.DB()
	require.NoError(t, err)
	require.Error(t, sqlDB.Ping())
}

func TestBootstrapRuntimeRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Relay.SweepSchedule = "sometimes"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "start maintenance jobs")
}

func TestLoadApplicationConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600))

	cfg, err := loadApplicationConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)

	cfg, err = loadApplicationConfig(dir)
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)

	_, err = loadApplicationConfig(filepath.Join(dir, "missing"))
	require.ErrorContains(t, err, "does not exist")
}

func TestMigrateOnly(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, migrate(context.Background(), cfg, zap.NewNop()))

	_, err := os.Stat(cfg.Database.Path)
	require.NoError(t, err)

	cfg.Database.Driver = "oracle"
	require.Error(t, migrate(context.Background(), cfg, zap.NewNop()))
}
