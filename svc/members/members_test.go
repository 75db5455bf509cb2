package members_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crmkit/internal/db"
	"github.com/dmitrymomot/crmkit/pkg/pg"
	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/svc/members"
)

// tenantDB creates and migrates a throwaway tenant database.
func tenantDB(t *testing.T) switchboard.DB {
	t.Helper()
	url := os.Getenv("CRMKIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CRMKIT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	cfg := pg.Config{ConnectionString: url, RetryAttempts: 1, TenantMaxConns: 2}

	landlord, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(landlord.Close)

	name := "crmkit_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	require.NoError(t, pg.CreateDatabase(ctx, landlord, name))

	pool, err := pg.ConnectDatabase(ctx, cfg, name)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Close()
		_ = pg.DropDatabase(context.Background(), landlord, name)
	})

	require.NoError(t, pg.Migrate(ctx, pool, db.Tenant(), slog.New(slog.DiscardHandler)))
	return pool
}

func TestStore_MembersLifecycle(t *testing.T) {
	store := members.NewStoreWith(tenantDB(t))
	ctx := context.Background()

	require.NoError(t, store.SeedRoles(ctx, rbac.Default()))
	require.NoError(t, store.SeedRoles(ctx, rbac.Default()), "seeding is repeatable")

	u, err := store.CreateUser(ctx, members.NewUser{Name: "Ahmed", Email: "Ahmed@Tech.example", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Empty(t, u.Roles)

	_, err = store.CreateUser(ctx, members.NewUser{Name: "Dup", Email: "ahmed@tech.example", PasswordHash: "hash"})
	assert.ErrorIs(t, err, members.ErrEmailTaken)

	require.NoError(t, store.AssignRole(ctx, u.ID, rbac.OwnerRole))
	require.NoError(t, store.AssignRole(ctx, u.ID, rbac.OwnerRole))
	assert.ErrorIs(t, store.AssignRole(ctx, u.ID, "emperor"), members.ErrUnknownRole)
	assert.ErrorIs(t, store.AssignRole(ctx, uuid.New(), rbac.OwnerRole), members.ErrUserNotFound)

	got, err := store.FindByEmail(ctx, "AHMED@tech.example")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, []string{rbac.OwnerRole}, got.Roles)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = store.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, members.ErrUserNotFound)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_RequiresBinding(t *testing.T) {
	t.Parallel()
	_, err := members.NewStore().FindByEmail(context.Background(), "a@b.co")
	assert.ErrorIs(t, err, switchboard.ErrNoBinding)
}
