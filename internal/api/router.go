package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/bloggers/internal/app"
	iauth "github.com/charlesng35/bloggers/internal/auth"
	"github.com/charlesng35/bloggers/internal/directory"
	"github.com/charlesng35/bloggers/internal/handlers"
	"github.com/charlesng35/bloggers/internal/middleware"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Registrar     handlers.Registrar
	Authenticator handlers.Authenticator
	JWT           *iauth.JWTService
	Users         directory.Directory
	RateStore     middleware.RateStore
	HealthChecks  []handlers.HealthCheck
}

func (d Dependencies) validate() error {
	switch {
	case d.Registrar == nil:
		return errors.New("registration service must be provided")
	case d.Authenticator == nil:
		return errors.New("authenticator must be provided")
	case d.JWT == nil:
		return errors.New("jwt service must be provided")
	case d.Users == nil:
		return errors.New("user directory must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies, cfg *app.Config) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	registerHealthRoutes(r, deps.HealthChecks)

	authHandler := handlers.NewAuthHandler(deps.Registrar, deps.Authenticator, deps.JWT, deps.Users)

	api := r.Group("/api")
	registerAuthRoutes(api, authRouteDeps{
		Handler:     authHandler,
		RequireAuth: middleware.Auth(deps.JWT),
		Limit:       middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window),
	})

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
