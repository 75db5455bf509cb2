package tenant

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crmkit/pkg/statemachine"
)

// Status is the lifecycle state of a tenant. Only active tenants resolve.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

func (s Status) Name() string { return string(s) }

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus converts user input to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Lifecycle events.
const (
	EventActivate = statemachine.StringEvent("activate")
	EventSuspend  = statemachine.StringEvent("suspend")
	EventCancel   = statemachine.StringEvent("cancel")
)

// Lifecycle is the tenant status transition table. Cancelled is terminal.
var Lifecycle = statemachine.MustDefine(StatusPending,
	statemachine.WithTransition(StatusPending, StatusActive, EventActivate),
	statemachine.WithTransition(StatusSuspended, StatusActive, EventActivate),
	statemachine.WithTransition(StatusPending, StatusSuspended, EventSuspend),
	statemachine.WithTransition(StatusActive, StatusSuspended, EventSuspend),
	statemachine.WithTransition(StatusPending, StatusCancelled, EventCancel),
	statemachine.WithTransition(StatusActive, StatusCancelled, EventCancel),
	statemachine.WithTransition(StatusSuspended, StatusCancelled, EventCancel),
	statemachine.WithTerminal(StatusCancelled),
)

// CanTransitionTo reports whether a tenant in status s may be moved to to.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(to Status) bool {
	return s == to || Lifecycle.Allows(s, to)
}

// Tenant is the landlord record of a company workspace.
type Tenant struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Slug               string     `json:"slug"`
	Subdomain          string     `json:"subdomain"`
	Domain             string     `json:"domain,omitempty"`
	Database           string     `json:"database"`
	Status             Status     `json:"status"`
	PlanID             string     `json:"plan_id,omitempty"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at,omitempty"`
	Modules            []string   `json:"modules"`
	Email              string     `json:"email,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Referral           string     `json:"referral,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// IsActive reports whether the tenant may serve requests.
func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == StatusActive && t.DeletedAt == nil
}

// HasModule reports whether the named module is enabled.
func (t *Tenant) HasModule(name string) bool {
	return slices.Contains(t.Modules, name)
}

// Clone returns a deep copy, so cached records can be handed out safely.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	c.Modules = slices.Clone(t.Modules)
	c.TrialEndsAt = cloneTime(t.TrialEndsAt)
	c.SubscriptionEndsAt = cloneTime(t.SubscriptionEndsAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Details is the optional 1:1 descriptive extension of a tenant.
type Details struct {
	TenantID    uuid.UUID         `json:"tenant_id"`
	LogoURL     string            `json:"logo_url,omitempty"`
	Website     string            `json:"website,omitempty"`
	Industry    string            `json:"industry,omitempty"`
	Description string            `json:"description,omitempty"`
	Address     string            `json:"address,omitempty"`
	City        string            `json:"city,omitempty"`
	Country     string            `json:"country,omitempty"`
	TaxID       string            `json:"tax_id,omitempty"`
	Currency    string            `json:"currency,omitempty"`
	Social      map[string]string `json:"social,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

const (
	databasePrefix  = "tenant_"
	maxIdentifier   = 63 // postgres NAMEDATALEN - 1
	databaseHashLen = 8
)

// DatabaseName derives the physical database name from a slug:
// "ahmed-tech" becomes "tenant_ahmed_tech". Names that would exceed the
// postgres identifier limit are shortened and suffixed with a hash of the
// full slug so distinct slugs keep distinct databases.
func DatabaseName(slug string) string {
	name := databasePrefix + strings.ReplaceAll(slug, "-", "_")
	if len(name) <= maxIdentifier {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(slug))
	suffix := fmt.Sprintf("_%0*x", databaseHashLen, h.Sum32())
	return strings.TrimRight(name[:maxIdentifier-len(suffix)], "_") + suffix
}
