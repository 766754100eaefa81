package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/config"
	"github.com/arklim/admin-iam/internal/infra/database"
	kafkainfra "github.com/arklim/admin-iam/internal/infra/kafka"
	"github.com/arklim/admin-iam/internal/infra/logger"
	"github.com/arklim/admin-iam/internal/infra/oauth"
	redisinfra "github.com/arklim/admin-iam/internal/infra/redis"
	"github.com/arklim/admin-iam/internal/infra/security"
	"github.com/arklim/admin-iam/internal/infra/telemetry"
	postgresrepo "github.com/arklim/admin-iam/internal/repository/postgres"
	redisrepo "github.com/arklim/admin-iam/internal/repository/redis"
	"github.com/arklim/admin-iam/internal/transport/http/handlers"
	"github.com/arklim/admin-iam/internal/transport/http/middleware"
	"github.com/arklim/admin-iam/internal/transport/http/routes"
	"github.com/arklim/admin-iam/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.Tracing
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracing(ctx, cfg.Telemetry, cfg.App.Env, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool, postgresrepo.RetryPolicy{
		Attempts: cfg.Postgres.RetryAttempts,
		Initial:  cfg.Postgres.RetryInitial,
	})

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	kv := redisrepo.NewKeyValueStore(redisClient.Client())

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitKeyPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	authMetrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	var (
		eventPublisher port.EventPublisher
		producer       *kafkainfra.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, authMetrics, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	signer, err := security.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		return nil, fmt.Errorf("init jwt manager: %w", err)
	}
	tokens := usecase.NewTokenService(signer, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)

	hasher, err := security.NewPasswordHasher(port.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}
	passwordPolicy := security.NewPasswordPolicy()

	cache := usecase.NewPermissionCache(kv, cfg.Redis.PermissionKeyPrefix, authMetrics)
	resolver := usecase.NewPermissionResolver(repos.Roles, cache, log)
	decider := usecase.NewAccessDecider(authMetrics)

	verifier, err := usecase.NewCredentialVerifier(repos.Users, repos.Roles, hasher, eventPublisher, log, usecase.CredentialVerifierConfig{
		HashConcurrency: cfg.Security.HashConcurrency,
		DefaultRole:     cfg.OAuth.DefaultRole,
	})
	if err != nil {
		return nil, fmt.Errorf("init credential verifier: %w", err)
	}
	guard := usecase.NewRefreshGuard(tokens, kv, repos.Users, eventPublisher, authMetrics, log, cfg.Redis.LedgerKeyPrefix)

	authService := usecase.NewAuthService(verifier, tokens, guard, resolver, repos.Users, authMetrics, log)
	userService := usecase.NewUserService(repos.Users, repos.Roles, hasher, passwordPolicy, verifier, eventPublisher, log)
	roleService := usecase.NewRoleService(repos.Roles, repos.Permissions, repos.APIPermissions, cache, eventPublisher, log)
	permissionService := usecase.NewPermissionService(repos.Permissions, repos.Roles, cache, eventPublisher, log)
	apiPermissionService := usecase.NewAPIPermissionService(repos.APIPermissions, repos.Roles, cache, eventPublisher, log)

	var github handlers.ExternalProvider
	provider, err := oauth.NewGitHubProvider(cfg.OAuth)
	switch {
	case err == nil:
		github = provider
	case errors.Is(err, oauth.ErrNotConfigured):
		log.Info("github oauth not configured, external login disabled")
	default:
		return nil, fmt.Errorf("init github oauth: %w", err)
	}

	if cfg.RBAC.Seed {
		seeder := usecase.NewSeeder(repos.Roles, repos.Permissions, cache, log)
		if err := seeder.Seed(ctx, usecase.SeedConfig{
			AdminRole:   cfg.RBAC.AdminRole,
			DefaultRole: cfg.OAuth.DefaultRole,
			Permissions: routes.RequiredPermissions(),
		}); err != nil {
			return nil, fmt.Errorf("seed rbac: %w", err)
		}
	}

	if cfg.RBAC.SyncRoutesOnStart {
		res, err := apiPermissionService.SyncRoutes(ctx, routes.GuardedRoutes())
		if err != nil {
			return nil, fmt.Errorf("sync api permissions: %w", err)
		}
		log.Info("api permissions synced", zap.Int("created", res.Created), zap.Int("existing", res.Existing))
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Tokens:      tokens,
		Resolver:    resolver,
		Decider:     decider,
		GitHub:      github,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:           authService,
			Users:          userService,
			Roles:          roleService,
			Permissions:    permissionService,
			APIPermissions: apiPermissionService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		tracer:   tracer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("kafka producer close failed", zap.Error(err))
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting admin IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
