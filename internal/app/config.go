package app

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/crmkit/pkg/config"
	"github.com/dmitrymomot/crmkit/pkg/httpserver"
	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/pg"
	"github.com/dmitrymomot/crmkit/pkg/redis"
	"github.com/dmitrymomot/crmkit/pkg/requestid"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/pkg/tracing"
	"github.com/dmitrymomot/crmkit/svc/auth"
	"github.com/dmitrymomot/crmkit/svc/migrator"
	"github.com/dmitrymomot/crmkit/svc/provision"
)

const ServiceName = "crmkit"

// Version is set at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

// Config is the whole process configuration, read from the environment.
type Config struct {
	Logger      logger.Config
	Postgres    pg.Config
	Redis       redis.Config
	HTTP        httpserver.Config
	Switchboard switchboard.Config
	Resolver    tenant.ResolverConfig
	Auth        auth.Config
	Provision   provision.Config
	Migrator    migrator.Config
	Tracing     tracing.Config

	// AdminToken guards /api/tenants. Empty disables the admin API.
	AdminToken string `env:"ADMIN_TOKEN"`

	TenantCacheSize int           `env:"TENANT_CACHE_SIZE" envDefault:"1024"`
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"30s"`
	ReadyTimeout    time.Duration `env:"READY_TIMEOUT" envDefault:"3s"`

	// Requests per minute per address (and tenant, for login). Zero disables.
	LoginRateLimit        int `env:"RATE_LIMIT_LOGIN" envDefault:"10"`
	RegistrationRateLimit int `env:"RATE_LIMIT_REGISTRATION" envDefault:"5"`
}

// LoadConfig reads .env (when present) and the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	err := config.Load(&cfg)
	return cfg, err
}

// NewLogger builds the process logger. Records logged with a request context
// carry the request id and the bound tenant.
func NewLogger(cfg logger.Config) *slog.Logger {
	return logger.New(
		logger.FromConfig(cfg, ServiceName),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			tenant.LoggerExtractor(),
		),
	)
}
