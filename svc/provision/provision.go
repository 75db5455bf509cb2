package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/slug"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/auth"
	"github.com/dmitrymomot/crmkit/svc/members"
)

var tracer = otel.Tracer("github.com/dmitrymomot/crmkit/svc/provision")

// Databases runs database DDL on the landlord server.
type Databases interface {
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
}

// SchemaMigrator brings a tenant database to the latest schema.
type SchemaMigrator interface {
	Migrate(ctx context.Context, pool switchboard.Pool) error
}

// MemberStore writes users and roles through the binding in ctx.
type MemberStore interface {
	SeedRoles(ctx context.Context, policy *rbac.Policy) error
	CreateUser(ctx context.Context, in members.NewUser) (*members.User, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role string) error
}

// Credentials hashes owner passwords and issues the owner's first token.
type Credentials interface {
	HashPassword(password string) (string, error)
	Issue(tenantID uuid.UUID, user *members.User) (auth.Token, error)
}

// Switchboard is the part of *switchboard.Switchboard provisioning needs.
type Switchboard interface {
	NewBinding() *switchboard.Binding
	Purge(database string)
}

// Dependencies are the collaborators of a Service. All are required.
type Dependencies struct {
	Registry    tenant.Registry
	Databases   Databases
	Switchboard Switchboard
	Migrator    SchemaMigrator
	Members     MemberStore
	Credentials Credentials
	Policy      *rbac.Policy
}

// Request is the provisioning input.
type Request struct {
	Name     string   `json:"name" validate:"required,max=255"`
	Slug     string   `json:"slug,omitempty" validate:"omitempty,max=63"`
	Owner    Owner    `json:"owner"`
	Modules  []string `json:"modules,omitempty" validate:"omitempty,dive,required,max=64"`
	Referral string   `json:"referral,omitempty" validate:"omitempty,max=255"`
}

// Owner is the first member of the new tenant. An empty Password gets a
// generated one, returned once in the receipt.
type Owner struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}

// Receipt is the owner credential issuance receipt.
type Receipt struct {
	UserID            uuid.UUID `json:"user_id"`
	Email             string    `json:"email"`
	AccessToken       string    `json:"access_token"`
	ExpiresAt         time.Time `json:"expires_at"`
	TemporaryPassword string    `json:"temporary_password,omitempty"`
}

// Result is the outcome of a successful Provision.
type Result struct {
	Tenant *tenant.Tenant `json:"tenant"`
	Owner  Receipt        `json:"owner"`
}

// Service provisions tenants.
type Service struct {
	deps     Dependencies
	cfg      Config
	reserved slug.Reserved
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithReserved replaces the words that can never become slugs.
func WithReserved(r slug.Reserved) Option {
	return func(s *Service) {
		if len(r) > 0 {
			s.reserved = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service.
func New(cfg Config, deps Dependencies, opts ...Option) (*Service, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	case deps.Databases == nil:
		return nil, fmt.Errorf("%w: databases", ErrMissingDependency)
	case deps.Switchboard == nil:
		return nil, fmt.Errorf("%w: switchboard", ErrMissingDependency)
	case deps.Migrator == nil:
		return nil, fmt.Errorf("%w: migrator", ErrMissingDependency)
	case deps.Members == nil:
		return nil, fmt.Errorf("%w: members", ErrMissingDependency)
	case deps.Credentials == nil:
		return nil, fmt.Errorf("%w: credentials", ErrMissingDependency)
	case deps.Policy == nil:
		return nil, fmt.Errorf("%w: policy", ErrMissingDependency)
	}
	if cfg.SlugAttempts <= 0 {
		cfg.SlugAttempts = 10
	}

	s := &Service{
		deps:     deps,
		cfg:      cfg,
		reserved: slug.DefaultReserved,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// run is the state threaded through the steps of one provisioning.
type run struct {
	req          Request
	passwordHash string
	generated    string

	slug     string
	database string
	tenant   *tenant.Tenant
	binding  *switchboard.Binding
	owner    *members.User
	receipt  Receipt
}

// Provision runs the workflow. On failure the returned error is an *Error.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "tenant.provision")
	defer span.End()

	res, err := s.provision(ctx, req)
	if err != nil {
		kind := "error"
		if pe, ok := AsError(err); ok {
			kind = string(pe.Kind)
		}
		results.WithLabelValues(kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		return nil, err
	}
	results.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.String("tenant.id", res.Tenant.ID.String()), attribute.String("tenant.slug", res.Tenant.Slug))
	return res, nil
}

func (s *Service) provision(ctx context.Context, req Request) (*Result, error) {
	r, err := s.prepare(req)
	if err != nil {
		return nil, &Error{Kind: InvalidRequest, Step: "validate", Err: err}
	}

	var done []step
	for _, st := range s.preCommit() {
		if err := s.exec(ctx, r, st); err != nil {
			s.compensate(ctx, r, done)
			return nil, classify(st, err)
		}
		done = append(done, st)
	}

	// The registry row exists from here on: failures suspend, never delete.
	r.binding = s.deps.Switchboard.NewBinding()
	ctx = switchboard.WithBinding(ctx, r.binding)
	defer r.binding.Reset()

	for _, st := range s.postCommit() {
		if err := s.exec(ctx, r, st); err != nil {
			r.binding.Reset()
			return nil, s.suspend(ctx, r, st, err)
		}
	}

	s.log.InfoContext(ctx, "tenant provisioned",
		logger.TenantID(r.tenant.ID), logger.TenantSlug(r.tenant.Slug), logger.Database(r.database))
	return &Result{Tenant: r.tenant, Owner: r.receipt}, nil
}

func (s *Service) prepare(req Request) (*run, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	req.Owner.Email = strings.TrimSpace(req.Owner.Email)
	if req.Modules == nil {
		req.Modules = append([]string{}, s.cfg.DefaultModules...)
	}
	if err := core.Validate(&req); err != nil {
		return nil, err
	}

	r := &run{req: req}
	password := req.Owner.Password
	if password == "" {
		generated, err := auth.GeneratePassword(auth.GeneratedPasswordLength)
		if err != nil {
			return nil, err
		}
		password, r.generated = generated, generated
	}
	hash, err := s.deps.Credentials.HashPassword(password)
	if err != nil {
		return nil, err
	}
	r.passwordHash = hash
	return r, nil
}

func (s *Service) exec(ctx context.Context, r *run, st step) error {
	ctx, span := tracer.Start(ctx, "tenant.provision."+st.name)
	defer span.End()

	start := s.now()
	err := st.do(ctx, r)
	stepDuration.WithLabelValues(st.name).Observe(s.now().Sub(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, st.name)
	}
	return err
}

// compensate undoes completed pre-commit steps in reverse order. Undo
// failures are logged and never replace the original error.
func (s *Service) compensate(ctx context.Context, r *run, done []step) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx, r); err != nil {
			s.log.ErrorContext(ctx, "provisioning compensation failed",
				logger.Step(st.name), logger.Database(r.database), logger.Error(err))
		}
	}
}

// suspend records a post-commit failure on the tenant and builds the error.
func (s *Service) suspend(ctx context.Context, r *run, st step, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	s.deps.Switchboard.Purge(r.database)

	pe := &Error{Kind: PostSetupFailed, Step: st.name, TenantID: r.tenant.ID, Err: cause}
	if t, err := s.deps.Registry.UpdateFields(ctx, r.tenant.ID, tenant.StatusPatch(tenant.StatusSuspended)); err != nil {
		pe.Err = errors.Join(cause, fmt.Errorf("suspend tenant: %w", err))
	} else {
		r.tenant = t
	}

	s.log.ErrorContext(ctx, "tenant setup incomplete, tenant suspended",
		logger.TenantID(r.tenant.ID),
		logger.TenantSlug(r.slug),
		logger.Database(r.database),
		logger.Step(st.name),
		logger.Error(pe.Err),
	)
	return pe
}

func classify(st step, err error) error {
	if pe, ok := AsError(err); ok {
		return pe
	}
	return &Error{Kind: st.kind, Step: st.name, Err: err}
}
