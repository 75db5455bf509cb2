package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

// Config tunes tenant migrations.
type Config struct {
	Concurrency int `env:"TENANT_MIGRATE_CONCURRENCY" envDefault:"4"`
}

// Tenants is the registry view the runner needs.
type Tenants interface {
	ListActive(ctx context.Context) ([]*tenant.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)
}

// RoleSeeder writes the policy into the tenant database bound in ctx.
type RoleSeeder interface {
	SeedRoles(ctx context.Context, policy *rbac.Policy) error
}

// Switchboard is the part of *switchboard.Switchboard the runner needs.
type Switchboard interface {
	NewBinding() *switchboard.Binding
	Purge(database string)
}

// Options selects what Run does.
type Options struct {
	// Slug limits the run to one tenant. The tenant need not be active, so
	// suspended tenants can be repaired.
	Slug  string
	Fresh bool
	Seed  bool
	// Concurrency overrides Config.Concurrency when positive.
	Concurrency int
}

// Result is the outcome for one tenant.
type Result struct {
	Slug     string        `json:"slug"`
	Database string        `json:"database"`
	Applied  []int64       `json:"applied"`
	Seeded   bool          `json:"seeded"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Report collects the results of a Run ordered by slug.
type Report struct {
	Results []Result
}

// Failed returns the results that ended in an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every tenant succeeded.
func (r Report) OK() bool { return len(r.Failed()) == 0 }

// Err joins every tenant error, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", res.Slug, res.Err))
	}
	return errors.Join(errs...)
}

// Runner migrates tenant databases.
type Runner struct {
	tenants Tenants
	sb      Switchboard
	schema  Schema
	seeder  RoleSeeder
	policy  *rbac.Policy
	cfg     Config
	log     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithSeeder enables Options.Seed.
func WithSeeder(seeder RoleSeeder, policy *rbac.Policy) Option {
	return func(r *Runner) {
		r.seeder = seeder
		r.policy = policy
	}
}

// New creates a Runner.
func New(cfg Config, tenants Tenants, sb Switchboard, schema Schema, opts ...Option) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	r := &Runner{tenants: tenants, sb: sb, schema: schema, cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate applies pending migrations on pool. Provisioning uses it for
// freshly created databases.
func (r *Runner) Migrate(ctx context.Context, pool switchboard.Pool) error {
	_, err := r.schema.Up(ctx, pool)
	return err
}

// Run migrates the selected tenants. The error is non-nil only when the
// tenant list itself could not be loaded; per-tenant failures are in the report.
func (r *Runner) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Seed && (r.seeder == nil || r.policy == nil) {
		return Report{}, errors.New("migrator: seeding requested without a seeder")
	}

	targets, err := r.targets(ctx, opts.Slug)
	if err != nil {
		return Report{}, err
	}

	limit := r.cfg.Concurrency
	if opts.Concurrency > 0 {
		limit = opts.Concurrency
	}

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(targets))
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(limit)
	for _, t := range targets {
		g.Go(func() error {
			res := r.migrateTenant(gctx, t, opts)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			// Tenants fail independently.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Slug < results[j].Slug })
	return Report{Results: results}, nil
}

func (r *Runner) targets(ctx context.Context, slug string) ([]*tenant.Tenant, error) {
	if slug == "" {
		ts, err := r.tenants.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrator: list tenants: %w", err)
		}
		return ts, nil
	}
	t, err := r.tenants.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("migrator: tenant %q: %w", slug, err)
	}
	return []*tenant.Tenant{t}, nil
}

func (r *Runner) migrateTenant(ctx context.Context, t *tenant.Tenant, opts Options) (res Result) {
	res = Result{Slug: t.Slug, Database: t.Database}
	start := time.Now()
	log := r.log.With(logger.TenantSlug(t.Slug), logger.Database(t.Database))

	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			log.ErrorContext(ctx, "tenant migration failed", logger.Error(res.Err))
			return
		}
		log.InfoContext(ctx, "tenant migrated", "applied", len(res.Applied), "seeded", res.Seeded, logger.Duration(res.Duration))
	}()

	binding := r.sb.NewBinding()
	defer binding.Reset()
	ctx = switchboard.WithBinding(ctx, binding)

	if res.Err = binding.Activate(ctx, t.Database); res.Err != nil {
		return res
	}
	pool, err := binding.Pool()
	if err != nil {
		res.Err = err
		return res
	}

	if opts.Fresh {
		if res.Err = r.schema.Reset(ctx, pool); res.Err != nil {
			return res
		}
	}
	if res.Applied, res.Err = r.schema.Up(ctx, pool); res.Err != nil {
		return res
	}
	if opts.Seed {
		if res.Err = r.seeder.SeedRoles(ctx, r.policy); res.Err != nil {
			return res
		}
		res.Seeded = true
	}
	if opts.Fresh {
		// Nothing may keep using prepared statements from before the reset.
		binding.Reset()
		r.sb.Purge(t.Database)
	}
	return res
}
