package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lookup is the read side needed to resolve requests.
// Lookups return any non-deleted tenant regardless of status; callers that
// serve traffic must check IsActive themselves.
type Lookup interface {
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	FindByDomain(ctx context.Context, domain string) (*Tenant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
}

// Registry is the landlord store of tenants. Implementations always use the
// landlord connection and never the tenant binding of the caller.
type Registry interface {
	Lookup

	// ListActive returns every active, non-deleted tenant ordered by slug.
	ListActive(ctx context.Context) ([]*Tenant, error)
	// List is the administrative listing; an empty filter returns all non-deleted tenants.
	List(ctx context.Context, filter ListFilter) ([]*Tenant, error)
	// Create inserts a tenant. Unique violations return ErrConflict.
	Create(ctx context.Context, spec CreateSpec) (*Tenant, error)
	// UpdateFields applies a partial update and returns the new record.
	UpdateFields(ctx context.Context, id uuid.UUID, patch Patch) (*Tenant, error)
	// SoftDelete marks the tenant deleted and cancelled. The row, and with it
	// the slug, subdomain and database name, stays reserved.
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// SlugTaken reports whether slug is used as a slug or subdomain by any
	// tenant, deleted ones included.
	SlugTaken(ctx context.Context, slug string) (bool, error)

	Details(ctx context.Context, id uuid.UUID) (*Details, error)
	UpsertDetails(ctx context.Context, id uuid.UUID, d Details) (*Details, error)
}

// ListFilter narrows the administrative listing.
type ListFilter struct {
	Status Status
	// IncludeDeleted also returns soft-deleted tenants.
	IncludeDeleted bool
}

// CreateSpec is the input of Registry.Create.
type CreateSpec struct {
	Name        string
	Slug        string
	Subdomain   string // defaults to Slug
	Domain      string
	Database    string // defaults to DatabaseName(Slug)
	Status      Status // defaults to StatusPending
	PlanID      string
	TrialEndsAt *time.Time
	Modules     []string
	Email       string
	Phone       string
	Referral    string
}

// Normalize fills derived defaults.
func (s CreateSpec) Normalize() CreateSpec {
	if s.Subdomain == "" {
		s.Subdomain = s.Slug
	}
	if s.Database == "" {
		s.Database = DatabaseName(s.Slug)
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	if s.Modules == nil {
		s.Modules = []string{}
	}
	return s
}

// Patch is a partial tenant update. Nil fields are left untouched.
// An empty Domain clears the custom domain.
type Patch struct {
	Name               *string
	Domain             *string
	Status             *Status
	PlanID             *string
	TrialEndsAt        *time.Time
	SubscriptionEndsAt *time.Time
	Modules            *[]string
	Email              *string
	Phone              *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Domain == nil && p.Status == nil && p.PlanID == nil &&
		p.TrialEndsAt == nil && p.SubscriptionEndsAt == nil && p.Modules == nil &&
		p.Email == nil && p.Phone == nil
}

// Apply validates the patch against t and writes it into a copy.
func (p Patch) Apply(t *Tenant) (*Tenant, error) {
	out := t.Clone()
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		if !t.Status.CanTransitionTo(*p.Status) {
			return nil, ErrStatusTransition
		}
		out.Status = *p.Status
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Domain != nil {
		out.Domain = *p.Domain
	}
	if p.PlanID != nil {
		out.PlanID = *p.PlanID
	}
	if p.TrialEndsAt != nil {
		out.TrialEndsAt = cloneTime(p.TrialEndsAt)
	}
	if p.SubscriptionEndsAt != nil {
		out.SubscriptionEndsAt = cloneTime(p.SubscriptionEndsAt)
	}
	if p.Modules != nil {
		out.Modules = append([]string{}, (*p.Modules)...)
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.Phone != nil {
		out.Phone = *p.Phone
	}
	return out, nil
}

// StatusPatch is shorthand for a patch that only changes status.
func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}
