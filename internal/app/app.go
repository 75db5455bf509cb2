package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/crmkit/internal/db"
	"github.com/dmitrymomot/crmkit/modules/workspace"
	"github.com/dmitrymomot/crmkit/pkg/httpserver"
	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/pg"
	"github.com/dmitrymomot/crmkit/pkg/ratelimiter"
	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/redis"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/pkg/tracing"
	"github.com/dmitrymomot/crmkit/svc/auth"
	"github.com/dmitrymomot/crmkit/svc/guard"
	"github.com/dmitrymomot/crmkit/svc/members"
	"github.com/dmitrymomot/crmkit/svc/migrator"
	"github.com/dmitrymomot/crmkit/svc/provision"
	"github.com/dmitrymomot/crmkit/svc/registry"
)

// App holds the wired services of one process.
type App struct {
	Config Config
	Log    *slog.Logger

	Landlord    *pgxpool.Pool
	Redis       *goredis.Client
	Registry    tenant.Registry
	Switchboard *switchboard.Switchboard
	Members     *members.Store
	Policy      *rbac.Policy
	Auth        *auth.Service
	Provisioner *provision.Service
	Migrator    *migrator.Runner
	RateStore   ratelimiter.Store

	closers []func()
}

// New connects to the landlord database (and Redis when configured) and
// wires every service. Close releases everything New opened.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log, Policy: rbac.Default(), Members: members.NewStore()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, ServiceName, Version)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Warn("flush traces", logger.Error(err))
		}
	})

	a.Landlord, err = pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect landlord database: %w", err)
	}
	a.closers = append(a.closers, a.Landlord.Close)

	var cache tenant.Cache = tenant.NewMemoryCache(cfg.TenantCacheSize, cfg.TenantCacheTTL)
	if cfg.Redis.Enabled() {
		a.Redis, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = a.Redis.Close() })
		cache = registry.NewRedisCache(a.Redis, cfg.Redis.KeyPrefix, cfg.TenantCacheTTL, log)
	}
	a.Registry = tenant.NewCachedRegistry(registry.NewStore(a.Landlord), cache)

	if a.Redis != nil {
		a.RateStore = ratelimiter.NewRedisStore(a.Redis, cfg.Redis.KeyPrefix)
	} else {
		mem := ratelimiter.NewMemoryStore()
		a.closers = append(a.closers, mem.Close)
		a.RateStore = mem
	}

	a.Switchboard = switchboard.New(
		switchboard.NewPgConnector(cfg.Postgres),
		cfg.Switchboard,
		switchboard.WithLogger(log.With(logger.Component("switchboard"))),
	)
	a.closers = append(a.closers, a.Switchboard.Close)

	a.Migrator = migrator.New(cfg.Migrator, a.Registry, a.Switchboard,
		migrator.PgSchema{Migrator: pg.NewMigrator(db.Tenant(), log)},
		migrator.WithLogger(log.With(logger.Component("migrator"))),
		migrator.WithSeeder(a.Members, a.Policy),
	)

	a.Auth, err = auth.New(cfg.Auth, a.Members, auth.WithLogger(log.With(logger.Component("auth"))))
	if err != nil {
		return nil, err
	}

	a.Provisioner, err = provision.New(cfg.Provision, provision.Dependencies{
		Registry:    a.Registry,
		Databases:   provision.PgDatabases{DB: a.Landlord},
		Switchboard: a.Switchboard,
		Migrator:    a.Migrator,
		Members:     a.Members,
		Credentials: a.Auth,
		Policy:      a.Policy,
	}, provision.WithLogger(log.With(logger.Component("provision"))))
	if err != nil {
		return nil, err
	}

	return a, nil
}

// MigrateLandlord applies the landlord schema.
func (a *App) MigrateLandlord(ctx context.Context) error {
	return pg.Migrate(ctx, a.Landlord, db.Landlord(), a.Log)
}

// Handler builds the HTTP handler of the service.
func (a *App) Handler() (http.Handler, error) {
	resolver, err := tenant.NewResolver(a.Config.Resolver, a.Registry)
	if err != nil {
		return nil, err
	}
	g := guard.New(resolver, a.Switchboard,
		guard.WithLogger(a.Log.With(logger.Component("guard"))),
		guard.WithSkipPaths(skipPaths...),
	)

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(a.Landlord)}}
	if a.Redis != nil {
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(a.Redis)})
	}

	landlordLimit, err := a.rateLimit(a.Config.RegistrationRateLimit)
	if err != nil {
		return nil, err
	}
	loginLimit, err := a.rateLimit(a.Config.LoginRateLimit)
	if err != nil {
		return nil, err
	}

	return Router(RouterConfig{
		Log:          a.Log,
		Guard:        g,
		ReadyTimeout: a.Config.ReadyTimeout,
		Checks:       checks,
		Routes: workspace.RouterOptions{
			Strategy: a.Config.Resolver.Strategy,
			Landlord: workspace.NewLandlord(a.Provisioner, a.Registry, a.Config.AdminToken, a.Log, landlordLimit...),
			Tenant:   workspace.NewTenant(a.Auth, a.Registry, a.Members, a.Policy, a.Log, loginLimit...),
		},
	}), nil
}

func (a *App) rateLimit(perMinute int) ([]workspace.Option, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	b, err := ratelimiter.NewBucket(a.RateStore, ratelimiter.PerInterval(perMinute, time.Minute))
	if err != nil {
		return nil, err
	}
	return []workspace.Option{workspace.WithRateLimit(workspace.RateLimit(b, a.Log))}, nil
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	h, err := a.Handler()
	if err != nil {
		return err
	}
	srv := httpserver.NewFromConfig(a.Config.HTTP, httpserver.WithLogger(a.Log))
	if err := srv.Run(ctx, h); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
