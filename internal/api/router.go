package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/app"
	iauth "github.com/charlesng35/handoff/internal/auth"
	"github.com/charlesng35/handoff/internal/handlers"
	"github.com/charlesng35/handoff/internal/middleware"
	"github.com/charlesng35/handoff/internal/realtime"
	"github.com/charlesng35/handoff/internal/relay"
	"github.com/charlesng35/handoff/internal/services"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Config    *app.Config
	Manager   *relay.Manager
	Relay     *relay.Router
	Store     *services.ConversationStore
	Access    *services.AccessService
	RateStore middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.Manager == nil || d.Relay == nil:
		return fmt.Errorf("relay manager and router must be provided")
	case d.Store == nil || d.Access == nil:
		return fmt.Errorf("conversation store and access service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers the relay routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, deps.DB, deps.Manager.Registry())

	requireAuth := middleware.Auth(deps.JWT)

	relayHandler, err := handlers.NewRelayHandler(
		deps.Manager,
		deps.Relay,
		realtime.NewUpgrader(cfg.Relay.AllowedOrigins),
		cfg.Relay.ConnOptions(),
	)
	if err != nil {
		return nil, err
	}
	admissionLimit := middleware.RateLimit(deps.RateStore, cfg.Relay.AdmissionRate.Requests, cfg.Relay.AdmissionRate.Window)
	registerRelaySocket(r, relayHandler, admissionLimit, requireAuth)

	api := r.Group("/api")
	api.Use(requireAuth)

	registerRelayRoutes(api, relayHandler)

	conversationHandler, err := handlers.NewConversationHandler(deps.Store, deps.Access)
	if err != nil {
		return nil, err
	}
	registerConversationRoutes(api, conversationHandler)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
