package tenant_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

func TestMemoryRegistry_CreateAndFind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := tenant.NewMemoryRegistry()

	created, err := reg.Create(ctx, tenant.CreateSpec{Name: "Ahmed Tech", Slug: "ahmed-tech", Email: "a@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "ahmed-tech", created.Subdomain)
	assert.Equal(t, "tenant_ahmed_tech", created.Database)
	assert.Equal(t, tenant.StatusPending, created.Status)

	bySlug, err := reg.FindBySlug(ctx, "ahmed-tech")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	byID, err := reg.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ahmed Tech", byID.Name)

	_, err = reg.FindBySlug(ctx, "nope")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestMemoryRegistry_Uniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := tenant.NewMemoryRegistry()

	_, err := reg.Create(ctx, tenant.CreateSpec{Name: "A", Slug: "acme", Domain: "crm.acme.com"})
	require.NoError(t, err)

	tests := []struct {
		name string
		spec tenant.CreateSpec
	}{
		{"slug", tenant.CreateSpec{Slug: "acme"}},
		{"subdomain", tenant.CreateSpec{Slug: "other", Subdomain: "acme"}},
		{"domain", tenant.CreateSpec{Slug: "other", Domain: "CRM.acme.com"}},
		{"database", tenant.CreateSpec{Slug: "other", Database: "tenant_acme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Create(ctx, tt.spec)
			assert.ErrorIs(t, err, tenant.ErrConflict)
		})
	}
}

func TestMemoryRegistry_UpdateFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := tenant.NewMemoryRegistry()

	a, err := reg.Create(ctx, tenant.CreateSpec{Name: "A", Slug: "acme", Domain: "crm.acme.com"})
	require.NoError(t, err)
	b, err := reg.Create(ctx, tenant.CreateSpec{Name: "B", Slug: "bolt"})
	require.NoError(t, err)

	updated, err := reg.UpdateFields(ctx, a.ID, tenant.StatusPatch(tenant.StatusActive))
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, updated.Status)

	domain := "crm.acme.com"
	_, err = reg.UpdateFields(ctx, b.ID, tenant.Patch{Domain: &domain})
	assert.ErrorIs(t, err, tenant.ErrConflict)

	_, err = reg.UpdateFields(ctx, a.ID, tenant.StatusPatch(tenant.StatusPending))
	assert.ErrorIs(t, err, tenant.ErrStatusTransition)

	_, err = reg.UpdateFields(ctx, uuid.New(), tenant.Patch{})
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestMemoryRegistry_Listing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := tenant.NewMemoryRegistry(
		&tenant.Tenant{Slug: "zeta", Subdomain: "zeta", Database: "tenant_zeta", Status: tenant.StatusActive},
		&tenant.Tenant{Slug: "alpha", Subdomain: "alpha", Database: "tenant_alpha", Status: tenant.StatusActive},
		&tenant.Tenant{Slug: "mid", Subdomain: "mid", Database: "tenant_mid", Status: tenant.StatusSuspended},
	)

	active, err := reg.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alpha", active[0].Slug)
	assert.Equal(t, "zeta", active[1].Slug)

	suspended, err := reg.List(ctx, tenant.ListFilter{Status: tenant.StatusSuspended})
	require.NoError(t, err)
	require.Len(t, suspended, 1)
	assert.Equal(t, "mid", suspended[0].Slug)

	all, err := reg.List(ctx, tenant.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryRegistry_SoftDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := tenant.NewMemoryRegistry()

	a, err := reg.Create(ctx, tenant.CreateSpec{Name: "A", Slug: "acme", Status: tenant.StatusActive})
	require.NoError(t, err)
	require.NoError(t, reg.SoftDelete(ctx, a.ID))

	_, err = reg.FindBySlug(ctx, "acme")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	assert.ErrorIs(t, reg.SoftDelete(ctx, a.ID), tenant.ErrTenantNotFound)

	taken, err := reg.SlugTaken(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, taken, "deleted slugs are never reused")

	_, err = reg.Create(ctx, tenant.CreateSpec{Slug: "acme"})
	assert.ErrorIs(t, err, tenant.ErrConflict)

	all, err := reg.List(ctx, tenant.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, tenant.StatusCancelled, all[0].Status)
	assert.NotNil(t, all[0].DeletedAt)
}

func TestMemoryRegistry_Details(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := tenant.NewMemoryRegistry()

	a, err := reg.Create(ctx, tenant.CreateSpec{Name: "A", Slug: "acme"})
	require.NoError(t, err)

	d, err := reg.Details(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, d.TenantID)
	assert.Empty(t, d.Website)

	_, err = reg.UpsertDetails(ctx, a.ID, tenant.Details{Website: "https://acme.test", Currency: "EUR"})
	require.NoError(t, err)

	d, err = reg.Details(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.test", d.Website)
	assert.Equal(t, "EUR", d.Currency)

	_, err = reg.UpsertDetails(ctx, uuid.New(), tenant.Details{})
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}
