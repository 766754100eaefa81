package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arklim/admin-iam/internal/infra/security"
)

// ErrInvalidConfig marks configuration that must stop the process at startup.
var ErrInvalidConfig = errors.New("invalid configuration")

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Security  SecuritySettings  `mapstructure:"security"`
	OAuth     OAuthSettings     `mapstructure:"oauth"`
	RBAC      RBACSettings      `mapstructure:"rbac"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryInitial      time.Duration `mapstructure:"retry_initial"`
}

// RedisSettings configures the Redis connection and key namespaces.
type RedisSettings struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	DB                  int    `mapstructure:"db"`
	Password            string `mapstructure:"password"`
	TLSEnabled          bool   `mapstructure:"tls_enabled"`
	MaxRetries          int    `mapstructure:"max_retries"`
	PermissionKeyPrefix string `mapstructure:"permission_key_prefix"`
	LedgerKeyPrefix     string `mapstructure:"ledger_key_prefix"`
	RateLimitKeyPrefix  string `mapstructure:"rate_limit_key_prefix"`
}

// KafkaSettings configures the security event producer. Without brokers events are only logged.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// RateLimitSettings configures the login sliding window.
type RateLimitSettings struct {
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// JWTSettings holds the signing secret and token lifetimes. The raw TTL
// strings accept a "d" suffix ("7d") on top of time.ParseDuration syntax.
type JWTSettings struct {
	Secret             string        `mapstructure:"secret"`
	Issuer             string        `mapstructure:"issuer"`
	AccessTokenTTLRaw  string        `mapstructure:"access_token_ttl"`
	RefreshTokenTTLRaw string        `mapstructure:"refresh_token_ttl"`
	AccessTokenTTL     time.Duration `mapstructure:"-"`
	RefreshTokenTTL    time.Duration `mapstructure:"-"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// SecuritySettings bounds CPU-heavy password hashing.
type SecuritySettings struct {
	HashConcurrency int64 `mapstructure:"hash_concurrency"`
}

// OAuthSettings configures third-party login.
type OAuthSettings struct {
	DefaultRole        string `mapstructure:"default_role"`
	GitHubClientID     string `mapstructure:"github_client_id"`
	GitHubClientSecret string `mapstructure:"github_client_secret"`
	GitHubRedirectURL  string `mapstructure:"github_redirect_url"`
}

// RBACSettings toggles startup maintenance of the role catalogue.
type RBACSettings struct {
	Seed              bool   `mapstructure:"seed"`
	SyncRoutesOnStart bool   `mapstructure:"sync_routes_on_start"`
	AdminRole         string `mapstructure:"admin_role"`
}

// Load reads configuration from defaults and IAM_* environment variables and validates it.
func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IAM")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.retry_attempts",
		"postgres.retry_initial",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.max_retries",
		"redis.permission_key_prefix",
		"redis.ledger_key_prefix",
		"redis.rate_limit_key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.secret",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"security.hash_concurrency",
		"oauth.default_role",
		"oauth.github_client_id",
		"oauth.github_client_secret",
		"oauth.github_redirect_url",
		"rbac.seed",
		"rbac.sync_routes_on_start",
		"rbac.admin_role",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that cannot be defaulted and resolves the token lifetimes.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("%w: jwt.secret (IAM_JWT_SECRET) is required", ErrInvalidConfig)
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("%w: jwt.secret must be at least 32 bytes", ErrInvalidConfig)
	}

	access, err := ParseDurationLiteral(c.JWT.AccessTokenTTLRaw)
	if err != nil {
		return fmt.Errorf("%w: jwt.access_token_ttl: %v", ErrInvalidConfig, err)
	}
	refresh, err := ParseDurationLiteral(c.JWT.RefreshTokenTTLRaw)
	if err != nil {
		return fmt.Errorf("%w: jwt.refresh_token_ttl: %v", ErrInvalidConfig, err)
	}
	if access <= 0 || refresh <= 0 {
		return fmt.Errorf("%w: token lifetimes must be positive", ErrInvalidConfig)
	}
	if access >= refresh {
		return fmt.Errorf("%w: access token ttl must be shorter than refresh token ttl", ErrInvalidConfig)
	}
	c.JWT.AccessTokenTTL = access
	c.JWT.RefreshTokenTTL = refresh

	if strings.TrimSpace(c.OAuth.DefaultRole) == "" {
		return fmt.Errorf("%w: oauth.default_role is required", ErrInvalidConfig)
	}
	if c.Security.HashConcurrency <= 0 {
		return fmt.Errorf("%w: security.hash_concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}

// ParseDurationLiteral parses values such as "30m", "1h30m" or "7d".
func ParseDurationLiteral(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", raw, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(raw)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "admin-iam")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "iam")
	v.SetDefault("postgres.password", "iam_password")
	v.SetDefault("postgres.database", "iam")
	v.SetDefault("postgres.schema", "iam")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.retry_attempts", 3)
	v.SetDefault("postgres.retry_initial", "50ms")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.permission_key_prefix", "rbac:role")
	v.SetDefault("redis.ledger_key_prefix", "auth:refresh:used")
	v.SetDefault("redis.rate_limit_key_prefix", "iam:rate_limit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "iam")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.issuer", "admin-iam")
	v.SetDefault("jwt.access_token_ttl", "30m")
	v.SetDefault("jwt.refresh_token_ttl", "7d")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "admin-iam")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)

	argon := security.DefaultArgon2Params()
	v.SetDefault("argon2.memory", argon.Memory)
	v.SetDefault("argon2.iterations", argon.Iterations)
	v.SetDefault("argon2.parallelism", argon.Parallelism)
	v.SetDefault("argon2.salt_length", argon.SaltLength)
	v.SetDefault("argon2.key_length", argon.KeyLength)

	v.SetDefault("security.hash_concurrency", 4)

	v.SetDefault("oauth.default_role", "general_user")
	v.SetDefault("oauth.github_redirect_url", "http://localhost:8080/api/v1/auth/github/callback")

	v.SetDefault("rbac.seed", true)
	v.SetDefault("rbac.sync_routes_on_start", false)
	v.SetDefault("rbac.admin_role", "admin")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IAM_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
