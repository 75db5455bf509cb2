package tenant_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

func TestDatabaseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tenant_ahmed_tech", tenant.DatabaseName("ahmed-tech"))
	assert.Equal(t, "tenant_acme", tenant.DatabaseName("acme"))

	long := strings.Repeat("abcdefgh-", 7) + "x" // 64 chars
	a := tenant.DatabaseName(long)
	b := tenant.DatabaseName(long[:len(long)-1] + "y")
	assert.LessOrEqual(t, len(a), 63)
	assert.True(t, strings.HasPrefix(a, "tenant_abcdefgh_"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, tenant.DatabaseName(long), "deterministic")
}

func TestStatusLifecycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to tenant.Status
		want     bool
	}{
		{tenant.StatusPending, tenant.StatusActive, true},
		{tenant.StatusPending, tenant.StatusSuspended, true},
		{tenant.StatusActive, tenant.StatusSuspended, true},
		{tenant.StatusSuspended, tenant.StatusActive, true},
		{tenant.StatusActive, tenant.StatusCancelled, true},
		{tenant.StatusActive, tenant.StatusActive, true},
		{tenant.StatusActive, tenant.StatusPending, false},
		{tenant.StatusCancelled, tenant.StatusActive, false},
		{tenant.StatusSuspended, tenant.StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	s, err := tenant.ParseStatus(" Suspended ")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusSuspended, s)

	_, err = tenant.ParseStatus("frozen")
	assert.ErrorIs(t, err, tenant.ErrInvalidStatus)
}

func TestPatchApply(t *testing.T) {
	t.Parallel()

	base := &tenant.Tenant{Name: "Acme", Status: tenant.StatusActive, Modules: []string{"leads"}}

	t.Run("partial", func(t *testing.T) {
		t.Parallel()
		name := "Acme Inc"
		modules := []string{"leads", "invoices"}
		out, err := tenant.Patch{Name: &name, Modules: &modules}.Apply(base)
		require.NoError(t, err)
		assert.Equal(t, "Acme Inc", out.Name)
		assert.Equal(t, []string{"leads", "invoices"}, out.Modules)
		assert.Equal(t, "Acme", base.Name, "original untouched")
		assert.Equal(t, []string{"leads"}, base.Modules)
	})

	t.Run("illegal transition", func(t *testing.T) {
		t.Parallel()
		_, err := tenant.StatusPatch(tenant.StatusPending).Apply(base)
		assert.ErrorIs(t, err, tenant.ErrStatusTransition)
	})

	t.Run("unknown status", func(t *testing.T) {
		t.Parallel()
		_, err := tenant.StatusPatch("frozen").Apply(base)
		assert.ErrorIs(t, err, tenant.ErrInvalidStatus)
	})

	assert.True(t, tenant.Patch{}.IsEmpty())
	assert.False(t, tenant.StatusPatch(tenant.StatusActive).IsEmpty())
}

func TestTenantClone(t *testing.T) {
	t.Parallel()

	now := time.Now()
	orig := &tenant.Tenant{Slug: "acme", Modules: []string{"a"}, TrialEndsAt: &now}
	c := orig.Clone()
	c.Modules[0] = "b"
	*c.TrialEndsAt = now.Add(time.Hour)

	assert.Equal(t, "a", orig.Modules[0])
	assert.Equal(t, now, *orig.TrialEndsAt)
	assert.Nil(t, (*tenant.Tenant)(nil).Clone())
	assert.True(t, orig.HasModule("a"))
}

func TestResolutionError(t *testing.T) {
	t.Parallel()

	err := &tenant.ResolutionError{Kind: tenant.NotFound, Identifier: "ghost"}
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	assert.NotErrorIs(t, err, tenant.ErrInactiveTenant)
	assert.Contains(t, err.Error(), "ghost")

	inactive := &tenant.ResolutionError{Kind: tenant.Inactive, Identifier: "acme"}
	assert.ErrorIs(t, inactive, tenant.ErrInactiveTenant)

	re, ok := tenant.AsResolutionError(inactive)
	require.True(t, ok)
	assert.Equal(t, tenant.Inactive, re.Kind)
}
