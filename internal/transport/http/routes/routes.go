package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/infra/config"
	"github.com/arklim/admin-iam/internal/transport/http/handlers"
	"github.com/arklim/admin-iam/internal/transport/http/middleware"
	"github.com/arklim/admin-iam/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth           handlers.Authenticator
	Users          *usecase.UserService
	Roles          *usecase.RoleService
	Permissions    *usecase.PermissionService
	APIPermissions *usecase.APIPermissionService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Services    ServiceSet
	Tokens      middleware.TokenVerifier
	Resolver    middleware.GrantResolver
	Decider     middleware.Decider
	GitHub      handlers.ExternalProvider
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with middleware and the route table.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName(cfg)))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	health := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", health.Status)
	r.GET("/readyz", health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authOpts := []handlers.AuthHandlerOption{handlers.WithSecureCookies(cfg.App.Env == "production")}
	if deps.GitHub != nil {
		authOpts = append(authOpts, handlers.WithGitHub(deps.GitHub))
	}
	if deps.Services.Users != nil {
		authOpts = append(authOpts, handlers.WithPasswordChanger(deps.Services.Users))
	}

	set := &handlerSet{
		health:         health,
		auth:           handlers.NewAuthHandler(deps.Services.Auth, authOpts...),
		roles:          handlers.NewRoleHandler(deps.Services.Roles),
		permissions:    handlers.NewPermissionHandler(deps.Services.Permissions),
		apiPermissions: handlers.NewAPIPermissionHandler(deps.Services.APIPermissions, GuardedRoutes),
		users:          handlers.NewUserHandler(deps.Services.Users),
	}

	api := r.Group(apiPrefix)
	limiter := loginLimiter(deps)
	for _, route := range table(set) {
		chain := make([]gin.HandlerFunc, 0, 4)
		if route.RateLimited && limiter != nil {
			chain = append(chain, limiter)
		}
		if route.Access >= Authenticated {
			chain = append(chain, middleware.RequireAuth(deps.Tokens))
		}
		if route.Access == Guarded {
			chain = append(chain, middleware.RequirePermission(deps.Resolver, deps.Decider, route.Required...))
		}
		api.Handle(route.Method, route.Path, append(chain, route.Handler)...)
	}

	handlers.RegisterDocs(r)

	return r
}

func serviceName(cfg *config.AppConfig) string {
	if cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}
	if cfg.App.Name != "" {
		return cfg.App.Name
	}
	return "admin-iam"
}

func loginLimiter(deps Dependencies) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})
}
