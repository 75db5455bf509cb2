package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/slug"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/members"
)

// step is one entry of the compensation table. kind classifies a failure of
// do; undo reverts do when a later pre-commit step fails.
type step struct {
	name string
	kind Kind
	do   func(ctx context.Context, r *run) error
	undo func(ctx context.Context, r *run) error
}

// Compensation table:
//
//	step              on its own failure        undone by a later failure
//	allocate_slug     abort                     -
//	create_database   abort                     drop database
//	register_tenant   drop database, abort      -
//	post-commit steps suspend tenant            -
func (s *Service) preCommit() []step {
	return []step{
		{name: "allocate_slug", kind: SlugConflict, do: s.allocateSlug},
		{name: "create_database", kind: DatabaseCreateFailed, do: s.createDatabase, undo: s.dropDatabase},
		{name: "register_tenant", kind: RegistryWriteFailed, do: s.registerTenant},
	}
}

func (s *Service) postCommit() []step {
	return []step{
		{name: "activate_connection", kind: PostSetupFailed, do: s.activateConnection},
		{name: "migrate_schema", kind: PostSetupFailed, do: s.migrateSchema},
		{name: "seed_roles", kind: PostSetupFailed, do: s.seedRoles},
		{name: "create_owner", kind: PostSetupFailed, do: s.createOwner},
		{name: "assign_owner_role", kind: PostSetupFailed, do: s.assignOwnerRole},
		{name: "issue_owner_token", kind: PostSetupFailed, do: s.issueOwnerToken},
		{name: "activate_tenant", kind: PostSetupFailed, do: s.activateTenant},
	}
}

func (s *Service) allocateSlug(ctx context.Context, r *run) error {
	if r.req.Slug != "" {
		if err := s.reserved.Check(r.req.Slug); err != nil {
			return &Error{Kind: InvalidRequest, Step: "allocate_slug", Err: err}
		}
		taken, err := s.deps.Registry.SlugTaken(ctx, r.req.Slug)
		if err != nil {
			return &Error{Kind: RegistryUnavailable, Step: "allocate_slug", Err: err}
		}
		if taken {
			return fmt.Errorf("%w: %q", ErrSlugTaken, r.req.Slug)
		}
		r.setSlug(r.req.Slug)
		return nil
	}

	for _, candidate := range s.candidates(r.req.Name) {
		if s.reserved.Contains(candidate) {
			continue
		}
		taken, err := s.deps.Registry.SlugTaken(ctx, candidate)
		if err != nil {
			return &Error{Kind: RegistryUnavailable, Step: "allocate_slug", Err: err}
		}
		if !taken {
			r.setSlug(candidate)
			return nil
		}
	}
	return ErrSlugExhausted
}

// candidates lists slugs to try for name: the sanitized name, then numbered
// variants, then a few random ones.
func (s *Service) candidates(name string) []string {
	base := slug.Sanitize(name)
	if base == "" {
		base = slug.Generate("company")
	}
	out := make([]string, 0, s.cfg.SlugAttempts+4)
	out = append(out, base)
	for i := 1; i <= s.cfg.SlugAttempts; i++ {
		out = append(out, slug.WithNumber(base, i))
	}
	for range 3 {
		out = append(out, slug.Generate(base))
	}
	return out
}

func (r *run) setSlug(s string) {
	r.slug = s
	r.database = tenant.DatabaseName(s)
}

func (s *Service) createDatabase(ctx context.Context, r *run) error {
	return s.deps.Databases.CreateDatabase(ctx, r.database)
}

func (s *Service) dropDatabase(ctx context.Context, r *run) error {
	s.deps.Switchboard.Purge(r.database)
	return s.deps.Databases.DropDatabase(ctx, r.database)
}

func (s *Service) registerTenant(ctx context.Context, r *run) error {
	var trialEnds *time.Time
	if s.cfg.TrialDays > 0 {
		t := s.now().UTC().AddDate(0, 0, s.cfg.TrialDays)
		trialEnds = &t
	}
	t, err := s.deps.Registry.Create(ctx, tenant.CreateSpec{
		Name:        r.req.Name,
		Slug:        r.slug,
		Database:    r.database,
		Status:      tenant.StatusPending,
		PlanID:      s.cfg.PlanID,
		TrialEndsAt: trialEnds,
		Modules:     r.req.Modules,
		Email:       r.req.Owner.Email,
		Phone:       r.req.Owner.Phone,
		Referral:    r.req.Referral,
	})
	if err != nil {
		return err
	}
	r.tenant = t
	return nil
}

func (s *Service) activateConnection(ctx context.Context, r *run) error {
	if err := r.binding.Activate(ctx, r.database); err != nil {
		return err
	}
	return r.binding.Probe(ctx)
}

func (s *Service) migrateSchema(ctx context.Context, r *run) error {
	pool, err := r.binding.Pool()
	if err != nil {
		return err
	}
	return s.deps.Migrator.Migrate(ctx, pool)
}

func (s *Service) seedRoles(ctx context.Context, _ *run) error {
	return s.deps.Members.SeedRoles(ctx, s.deps.Policy)
}

func (s *Service) createOwner(ctx context.Context, r *run) error {
	u, err := s.deps.Members.CreateUser(ctx, members.NewUser{
		Name:         r.req.Owner.Name,
		Email:        r.req.Owner.Email,
		Phone:        r.req.Owner.Phone,
		PasswordHash: r.passwordHash,
	})
	if err != nil {
		return err
	}
	r.owner = u
	return nil
}

func (s *Service) assignOwnerRole(ctx context.Context, r *run) error {
	if err := s.deps.Members.AssignRole(ctx, r.owner.ID, rbac.OwnerRole); err != nil {
		return err
	}
	r.owner.Roles = append(r.owner.Roles, rbac.OwnerRole)
	return nil
}

func (s *Service) issueOwnerToken(_ context.Context, r *run) error {
	token, err := s.deps.Credentials.Issue(r.tenant.ID, r.owner)
	if err != nil {
		return err
	}
	r.receipt = Receipt{
		UserID:            r.owner.ID,
		Email:             r.owner.Email,
		AccessToken:       token.AccessToken,
		ExpiresAt:         token.ExpiresAt,
		TemporaryPassword: r.generated,
	}
	return nil
}

func (s *Service) activateTenant(ctx context.Context, r *run) error {
	t, err := s.deps.Registry.UpdateFields(ctx, r.tenant.ID, tenant.StatusPatch(tenant.StatusActive))
	if err != nil {
		return err
	}
	r.tenant = t
	return nil
}
