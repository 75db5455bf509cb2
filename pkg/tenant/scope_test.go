package tenant_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

func TestScope(t *testing.T) {
	t.Parallel()

	_, ok := tenant.FromContext(context.Background())
	assert.False(t, ok)

	ctx, scope := tenant.NewScope(context.Background())
	_, ok = tenant.FromContext(ctx)
	assert.False(t, ok, "empty scope")

	acme := &tenant.Tenant{ID: uuid.New(), Slug: "acme"}
	scope.Set(acme)

	child, cancel := context.WithCancel(ctx)
	defer cancel()

	got, ok := tenant.FromContext(child)
	require.True(t, ok)
	assert.Equal(t, acme.ID, got.ID)

	id, ok := tenant.IDFromContext(child)
	require.True(t, ok)
	assert.Equal(t, acme.ID, id)

	scope.Clear()
	_, ok = tenant.FromContext(child)
	assert.False(t, ok, "derived contexts observe teardown")
	assert.Panics(t, func() { tenant.MustFromContext(child) })
}

func TestScope_IsolatedPerContext(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			want := &tenant.Tenant{ID: uuid.New(), Slug: "t" + string(rune('a'+i%26))}
			ctx := tenant.WithTenant(context.Background(), want)
			got := tenant.MustFromContext(ctx)
			assert.Equal(t, want.ID, got.ID)
		}()
	}
	wg.Wait()
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := tenant.LoggerExtractor()
	_, ok := extract(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	ctx := tenant.WithTenant(context.Background(), &tenant.Tenant{ID: id, Slug: "acme"})
	attr, ok := extract(ctx)
	require.True(t, ok)

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("x", attr)
	assert.Contains(t, buf.String(), "tenant.id="+id.String())
	assert.Contains(t, buf.String(), "tenant.slug=acme")
}
