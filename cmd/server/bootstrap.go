package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/api"
	"github.com/charlesng35/handoff/internal/app"
	"github.com/charlesng35/handoff/internal/app/maintenance"
	iauth "github.com/charlesng35/handoff/internal/auth"
	"github.com/charlesng35/handoff/internal/database"
	"github.com/charlesng35/handoff/internal/middleware"
	"github.com/charlesng35/handoff/internal/relay"
	"github.com/charlesng35/handoff/internal/services"
	"github.com/charlesng35/handoff/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Manager *relay.Manager
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, the relay core, maintenance jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	store, err := services.NewConversationStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise conversation store: %w", err)
	}
	access, err := services.NewAccessService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise access service: %w", err)
	}

	stack.Manager = relay.NewManager(relay.NewRegistry(), relay.NewPresence(), relay.WithAuthorizer(access))
	relayRouter, err := relay.NewRouter(stack.Manager, store, cfg.Relay.RouterOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise relay router: %w", err)
	}

	rateStore := middleware.NewMemoryRateStore()
	stack.Cleaner = maintenance.NewCleaner(stack.Manager,
		maintenance.WithSweepSchedule(cfg.Relay.SweepSchedule),
		maintenance.WithTypingSchedule(cfg.Relay.TypingSchedule),
		maintenance.WithTypingTTL(cfg.Relay.TypingTTL),
		maintenance.WithPruner("admission_rate", rateStore),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		JWT:       jwtSvc,
		Config:    cfg,
		Manager:   stack.Manager,
		Relay:     relayRouter,
		Store:     store,
		Access:    access,
		RateStore: rateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown closes every relay session with a going-away status, stops background jobs and
// releases the database.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Manager != nil {
		s.Manager.Shutdown()
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Ping(ctx, db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	driver, _ := database.NormalizeDriver(dbCfg.Driver)
	log.Info("database connected", zap.String("driver", driver))

	return db, nil
}
