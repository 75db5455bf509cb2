package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry is an in-process Registry. It enforces the same uniqueness
// and soft-delete rules as the Postgres store and backs tests and demos.
type MemoryRegistry struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*Tenant
	details map[uuid.UUID]*Details
	now     func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns an empty registry, optionally seeded.
func NewMemoryRegistry(seed ...*Tenant) *MemoryRegistry {
	r := &MemoryRegistry{
		tenants: make(map[uuid.UUID]*Tenant),
		details: make(map[uuid.UUID]*Details),
		now:     time.Now,
	}
	for _, t := range seed {
		c := t.Clone()
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		r.tenants[c.ID] = c
	}
	return r
}

func (r *MemoryRegistry) find(match func(*Tenant) bool) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.DeletedAt == nil && match(t) {
			return t.Clone(), nil
		}
	}
	return nil, ErrTenantNotFound
}

func (r *MemoryRegistry) FindBySlug(_ context.Context, slug string) (*Tenant, error) {
	return r.find(func(t *Tenant) bool { return t.Slug == slug })
}

func (r *MemoryRegistry) FindBySubdomain(_ context.Context, subdomain string) (*Tenant, error) {
	return r.find(func(t *Tenant) bool { return t.Subdomain == subdomain })
}

func (r *MemoryRegistry) FindByDomain(_ context.Context, domain string) (*Tenant, error) {
	domain = strings.ToLower(domain)
	return r.find(func(t *Tenant) bool { return t.Domain != "" && strings.ToLower(t.Domain) == domain })
}

func (r *MemoryRegistry) FindByID(_ context.Context, id uuid.UUID) (*Tenant, error) {
	return r.find(func(t *Tenant) bool { return t.ID == id })
}

func (r *MemoryRegistry) ListActive(ctx context.Context) ([]*Tenant, error) {
	return r.List(ctx, ListFilter{Status: StatusActive})
}

func (r *MemoryRegistry) List(_ context.Context, filter ListFilter) ([]*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if t.DeletedAt != nil && !filter.IncludeDeleted {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *MemoryRegistry) Create(_ context.Context, spec CreateSpec) (*Tenant, error) {
	spec = spec.Normalize()
	if !spec.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tenants {
		if err := conflict(t, spec.Slug, spec.Subdomain, spec.Domain, spec.Database); err != nil {
			return nil, err
		}
	}

	now := r.now().UTC()
	t := &Tenant{
		ID:          uuid.New(),
		Name:        spec.Name,
		Slug:        spec.Slug,
		Subdomain:   spec.Subdomain,
		Domain:      spec.Domain,
		Database:    spec.Database,
		Status:      spec.Status,
		PlanID:      spec.PlanID,
		TrialEndsAt: cloneTime(spec.TrialEndsAt),
		Modules:     append([]string{}, spec.Modules...),
		Email:       spec.Email,
		Phone:       spec.Phone,
		Referral:    spec.Referral,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.tenants[t.ID] = t
	return t.Clone(), nil
}

func conflict(t *Tenant, slug, subdomain, domain, database string) error {
	switch {
	case t.Slug == slug || t.Subdomain == slug:
		return errors.Join(ErrConflict, fmt.Errorf("slug %q is taken", slug))
	case t.Subdomain == subdomain || t.Slug == subdomain:
		return errors.Join(ErrConflict, fmt.Errorf("subdomain %q is taken", subdomain))
	case domain != "" && strings.EqualFold(t.Domain, domain):
		return errors.Join(ErrConflict, fmt.Errorf("domain %q is taken", domain))
	case t.Database == database:
		return errors.Join(ErrConflict, fmt.Errorf("database %q is taken", database))
	}
	return nil
}

func (r *MemoryRegistry) UpdateFields(_ context.Context, id uuid.UUID, patch Patch) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.tenants[id]
	if !ok || cur.DeletedAt != nil {
		return nil, ErrTenantNotFound
	}

	next, err := patch.Apply(cur)
	if err != nil {
		return nil, err
	}
	if patch.Domain != nil && next.Domain != "" {
		for otherID, t := range r.tenants {
			if otherID != id && strings.EqualFold(t.Domain, next.Domain) {
				return nil, errors.Join(ErrConflict, fmt.Errorf("domain %q is taken", next.Domain))
			}
		}
	}

	next.UpdatedAt = r.now().UTC()
	r.tenants[id] = next
	return next.Clone(), nil
}

func (r *MemoryRegistry) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok || t.DeletedAt != nil {
		return ErrTenantNotFound
	}
	now := r.now().UTC()
	t.DeletedAt = &now
	t.Status = StatusCancelled
	t.UpdatedAt = now
	return nil
}

func (r *MemoryRegistry) SlugTaken(_ context.Context, slug string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.Slug == slug || t.Subdomain == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRegistry) Details(_ context.Context, id uuid.UUID) (*Details, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tenants[id]; !ok || t.DeletedAt != nil {
		return nil, ErrTenantNotFound
	}
	d, ok := r.details[id]
	if !ok {
		return &Details{TenantID: id}, nil
	}
	c := *d
	return &c, nil
}

func (r *MemoryRegistry) UpsertDetails(_ context.Context, id uuid.UUID, d Details) (*Details, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tenants[id]; !ok || t.DeletedAt != nil {
		return nil, ErrTenantNotFound
	}
	d.TenantID = id
	d.UpdatedAt = r.now().UTC()
	r.details[id] = &d
	c := d
	return &c, nil
}
