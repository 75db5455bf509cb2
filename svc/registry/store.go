package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/crmkit/pkg/pg"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

// DB is the landlord connection. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the Postgres tenant registry.
type Store struct {
	db DB
}

var _ tenant.Registry = (*Store)(nil)

// NewStore creates a Store over the landlord pool.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const tenantColumns = `id, name, slug, subdomain, domain, database_name, status, plan_id,
	trial_ends_at, subscription_ends_at, modules, email, phone, referral,
	created_at, updated_at, deleted_at`

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t      tenant.Tenant
		domain *string
		status string
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Subdomain, &domain, &t.Database, &status, &t.PlanID,
		&t.TrialEndsAt, &t.SubscriptionEndsAt, &t.Modules, &t.Email, &t.Phone, &t.Referral,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, err
	}
	if domain != nil {
		t.Domain = *domain
	}
	t.Status = tenant.Status(status)
	return &t, nil
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (*tenant.Tenant, error) {
	q := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + where + ` AND deleted_at IS NULL`
	t, err := scanTenant(s.db.QueryRow(ctx, q, arg))
	if err != nil && !errors.Is(err, tenant.ErrTenantNotFound) {
		return nil, fmt.Errorf("registry: find tenant: %w", err)
	}
	return t, err
}

func (s *Store) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return s.findOne(ctx, `slug = $1`, slug)
}

func (s *Store) FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	return s.findOne(ctx, `subdomain = $1`, subdomain)
}

func (s *Store) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	return s.findOne(ctx, `lower(domain) = lower($1)`, domain)
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.findOne(ctx, `id = $1`, id)
}

func (s *Store) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	return s.List(ctx, tenant.ListFilter{Status: tenant.StatusActive})
}

func (s *Store) List(ctx context.Context, filter tenant.ListFilter) ([]*tenant.Tenant, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeDeleted {
		where = append(where, `deleted_at IS NULL`)
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf(`status = $%d`, len(args)))
	}
	q := `SELECT ` + tenantColumns + ` FROM tenants`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY slug`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: list tenants: %w", err)
	}
	defer rows.Close()

	out := []*tenant.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("registry: scan tenant: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: list tenants: %w", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, spec tenant.CreateSpec) (*tenant.Tenant, error) {
	spec = spec.Normalize()
	if !spec.Status.Valid() {
		return nil, tenant.ErrInvalidStatus
	}

	t := &tenant.Tenant{
		ID:          uuid.New(),
		Name:        spec.Name,
		Slug:        spec.Slug,
		Subdomain:   spec.Subdomain,
		Domain:      spec.Domain,
		Database:    spec.Database,
		Status:      spec.Status,
		PlanID:      spec.PlanID,
		TrialEndsAt: spec.TrialEndsAt,
		Modules:     spec.Modules,
		Email:       spec.Email,
		Phone:       spec.Phone,
		Referral:    spec.Referral,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO tenants (id, name, slug, subdomain, domain, database_name, status, plan_id,
			trial_ends_at, modules, email, phone, referral)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Slug, t.Subdomain, nullable(t.Domain), t.Database, string(t.Status), t.PlanID,
		t.TrialEndsAt, t.Modules, t.Email, t.Phone, t.Referral,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, writeError("create tenant", err)
	}
	return t, nil
}

func (s *Store) UpdateFields(ctx context.Context, id uuid.UUID, patch tenant.Patch) (*tenant.Tenant, error) {
	var out *tenant.Tenant
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		cur, err := scanTenant(tx.QueryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := patch.Apply(cur)
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			out = next
			return nil
		}

		err = tx.QueryRow(ctx, `
			UPDATE tenants SET name = $2, domain = $3, status = $4, plan_id = $5, trial_ends_at = $6,
				subscription_ends_at = $7, modules = $8, email = $9, phone = $10, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
			id, next.Name, nullable(next.Domain), string(next.Status), next.PlanID, next.TrialEndsAt,
			next.SubscriptionEndsAt, next.Modules, next.Email, next.Phone,
		).Scan(&next.UpdatedAt)
		if err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) || errors.Is(err, tenant.ErrInvalidStatus) ||
			errors.Is(err, tenant.ErrStatusTransition) {
			return nil, err
		}
		return nil, writeError("update tenant", err)
	}
	return out, nil
}

func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE tenants SET deleted_at = now(), status = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, string(tenant.StatusCancelled))
	if err != nil {
		return fmt.Errorf("registry: delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (s *Store) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE slug = $1 OR subdomain = $1)`, slug).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("registry: check slug: %w", err)
	}
	return taken, nil
}

func (s *Store) Details(ctx context.Context, id uuid.UUID) (*tenant.Details, error) {
	if _, err := s.FindByID(ctx, id); err != nil {
		return nil, err
	}

	d := &tenant.Details{TenantID: id}
	var social []byte
	err := s.db.QueryRow(ctx, `
		SELECT logo_url, website, industry, description, address, city, country, tax_id, currency, social, updated_at
		FROM tenant_details WHERE tenant_id = $1`, id,
	).Scan(&d.LogoURL, &d.Website, &d.Industry, &d.Description, &d.Address, &d.City, &d.Country,
		&d.TaxID, &d.Currency, &social, &d.UpdatedAt)
	switch {
	case pg.IsNotFoundError(err):
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("registry: load details: %w", err)
	}
	if err := json.Unmarshal(social, &d.Social); err != nil {
		return nil, fmt.Errorf("registry: decode social links: %w", err)
	}
	return d, nil
}

func (s *Store) UpsertDetails(ctx context.Context, id uuid.UUID, d tenant.Details) (*tenant.Details, error) {
	if _, err := s.FindByID(ctx, id); err != nil {
		return nil, err
	}
	social, err := json.Marshal(orEmpty(d.Social))
	if err != nil {
		return nil, fmt.Errorf("registry: encode social links: %w", err)
	}

	d.TenantID = id
	err = s.db.QueryRow(ctx, `
		INSERT INTO tenant_details (tenant_id, logo_url, website, industry, description, address, city,
			country, tax_id, currency, social, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			logo_url = EXCLUDED.logo_url, website = EXCLUDED.website, industry = EXCLUDED.industry,
			description = EXCLUDED.description, address = EXCLUDED.address, city = EXCLUDED.city,
			country = EXCLUDED.country, tax_id = EXCLUDED.tax_id, currency = EXCLUDED.currency,
			social = EXCLUDED.social, updated_at = now()
		RETURNING updated_at`,
		id, d.LogoURL, d.Website, d.Industry, d.Description, d.Address, d.City, d.Country,
		d.TaxID, d.Currency, social,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return nil, writeError("upsert details", err)
	}
	return &d, nil
}

// writeError maps unique violations to tenant.ErrConflict.
func writeError(op string, err error) error {
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(tenant.ErrConflict, fmt.Errorf("registry: %s: %s", op, conflictField(pg.ConstraintName(err))))
	}
	return fmt.Errorf("registry: %s: %w", op, err)
}

func conflictField(constraint string) string {
	switch constraint {
	case "tenants_slug_key":
		return "slug is taken"
	case "tenants_subdomain_key":
		return "subdomain is taken"
	case "tenants_domain_key":
		return "domain is taken"
	case "tenants_database_key":
		return "database name is taken"
	}
	return "duplicate value"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Ping is the landlord readiness check.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var one int
	return s.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}
