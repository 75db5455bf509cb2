package workspace_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/crmkit/modules/workspace"
	"github.com/dmitrymomot/crmkit/pkg/ratelimiter"
	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/slug"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/auth"
	"github.com/dmitrymomot/crmkit/svc/guard"
	"github.com/dmitrymomot/crmkit/svc/members"
	"github.com/dmitrymomot/crmkit/svc/provision"
)

const adminToken = "admin-secret"

type stubPool struct{}

func (stubPool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (stubPool) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (stubPool) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (stubPool) Begin(context.Context) (pgx.Tx, error)                   { return nil, pgx.ErrTxClosed }
func (stubPool) Ping(context.Context) error                              { return nil }
func (stubPool) Close()                                                  {}

type noopDatabases struct{}

func (noopDatabases) CreateDatabase(context.Context, string) error { return nil }
func (noopDatabases) DropDatabase(context.Context, string) error   { return nil }

type noopMigrator struct{}

func (noopMigrator) Migrate(context.Context, switchboard.Pool) error { return nil }

// memberDBs keeps one user table per tenant database, addressed through the
// binding in ctx like the real store.
type memberDBs struct {
	mu    sync.Mutex
	users map[string]map[uuid.UUID]*members.User
}

func (m *memberDBs) table(ctx context.Context) (map[uuid.UUID]*members.User, error) {
	b, ok := switchboard.FromContext(ctx)
	if !ok {
		return nil, switchboard.ErrNoBinding
	}
	db, ok := b.CurrentTarget()
	if !ok {
		return nil, switchboard.ErrNotActive
	}
	if m.users[db] == nil {
		m.users[db] = map[uuid.UUID]*members.User{}
	}
	return m.users[db], nil
}

func (m *memberDBs) SeedRoles(ctx context.Context, _ *rbac.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.table(ctx)
	return err
}

func (m *memberDBs) CreateUser(ctx context.Context, in members.NewUser) (*members.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table, err := m.table(ctx)
	if err != nil {
		return nil, err
	}
	u := &members.User{ID: uuid.New(), Name: in.Name, Email: in.Email, PasswordHash: in.PasswordHash, Roles: []string{}}
	table[u.ID] = u
	return u, nil
}

func (m *memberDBs) AssignRole(ctx context.Context, id uuid.UUID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	table, err := m.table(ctx)
	if err != nil {
		return err
	}
	table[id].Roles = append(table[id].Roles, role)
	return nil
}

func (m *memberDBs) FindByEmail(ctx context.Context, email string) (*members.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table, err := m.table(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range table {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, members.ErrUserNotFound
}

func (m *memberDBs) FindByID(ctx context.Context, id uuid.UUID) (*members.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table, err := m.table(ctx)
	if err != nil {
		return nil, err
	}
	if u, ok := table[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, members.ErrUserNotFound
}

type app struct {
	handler  http.Handler
	registry *tenant.MemoryRegistry
	users    *memberDBs
	sb       *switchboard.Switchboard
}

func newApp(t *testing.T, opts ...workspace.Option) *app {
	t.Helper()

	a := &app{
		registry: tenant.NewMemoryRegistry(),
		users:    &memberDBs{users: map[string]map[uuid.UUID]*members.User{}},
	}
	a.sb = switchboard.New(switchboard.ConnectorFunc(func(context.Context, string) (switchboard.Pool, error) {
		return stubPool{}, nil
	}), switchboard.Config{})
	t.Cleanup(a.sb.Close)

	policy := rbac.Default()
	authSvc, err := auth.New(auth.Config{JWTSecret: "secret", Issuer: "crmkit", BcryptCost: bcrypt.MinCost}, a.users)
	require.NoError(t, err)
	prov, err := provision.New(provision.Config{TrialDays: 14}, provision.Dependencies{
		Registry:    a.registry,
		Databases:   noopDatabases{},
		Switchboard: a.sb,
		Migrator:    noopMigrator{},
		Members:     a.users,
		Credentials: authSvc,
		Policy:      policy,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(guard.New(tenant.NewPathResolver(a.registry, slug.DefaultReserved), a.sb).Middleware)
	workspace.Router(r, workspace.RouterOptions{
		Strategy: tenant.StrategyPath,
		Landlord: workspace.NewLandlord(prov, a.registry, adminToken, nil, opts...),
		Tenant:   workspace.NewTenant(authSvc, a.registry, a.users, policy, nil, opts...),
	})
	a.handler = r
	return a
}

func (a *app) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func errCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (a *app) register(t *testing.T, name, email, password string) map[string]any {
	t.Helper()
	rec, body := a.do(t, http.MethodPost, "/registration", "", map[string]any{
		"name":  name,
		"owner": map[string]any{"name": "Owner", "email": email, "password": password},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return body
}

func (a *app) login(t *testing.T, slug, email, password string) string {
	t.Helper()
	rec, body := a.do(t, http.MethodPost, "/"+slug+"/auth/login", "", map[string]any{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body["access_token"].(string)
}

func TestRegistrationAndLogin(t *testing.T) {
	t.Parallel()
	a := newApp(t)

	body := a.register(t, "Ahmed Tech!", "ahmed@example.com", "supersecret")
	assert.Equal(t, "ahmed-tech", body["slug"])
	assert.Equal(t, "tenant_ahmed_tech", body["database"])
	assert.Equal(t, "active", body["status"])
	owner := body["owner"].(map[string]any)
	assert.NotEmpty(t, owner["access_token"])
	assert.NotContains(t, owner, "temporary_password")

	second := a.register(t, "Ahmed Tech", "other@example.com", "supersecret")
	assert.Equal(t, "ahmed-tech-1", second["slug"])

	token := a.login(t, "ahmed-tech", "ahmed@example.com", "supersecret")

	rec, me := a.do(t, http.MethodGet, "/ahmed-tech/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ahmed@example.com", me["user"].(map[string]any)["email"])
	assert.Equal(t, "ahmed-tech", me["tenant"].(map[string]any)["slug"])
	assert.NotContains(t, me["user"], "password_hash")

	rec, body = a.do(t, http.MethodPost, "/ahmed-tech/auth/login", "", map[string]any{"email": "ahmed@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errCode(body))

	// Credentials live in each tenant's own database.
	rec, _ = a.do(t, http.MethodPost, "/ahmed-tech-1/auth/login", "", map[string]any{"email": "ahmed@example.com", "password": "supersecret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A token is only valid for the tenant it was issued for.
	rec, _ = a.do(t, http.MethodGet, "/ahmed-tech-1/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

}

func TestRegistrationValidation(t *testing.T) {
	t.Parallel()
	a := newApp(t)

	rec, body := a.do(t, http.MethodPost, "/registration", "", map[string]any{
		"name":  "Acme",
		"owner": map[string]any{"name": "A", "email": "nope"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", errCode(body))

	rec, body = a.do(t, http.MethodPost, "/registration", "", map[string]any{
		"name":  "Acme",
		"slug":  "api",
		"owner": map[string]any{"name": "A", "email": "a@acme.test"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["error"].(map[string]any)["details"], "slug")

	a.register(t, "Acme", "a@acme.test", "")
	rec, body = a.do(t, http.MethodPost, "/registration", "", map[string]any{
		"name":  "Acme Two",
		"slug":  "acme",
		"owner": map[string]any{"name": "A", "email": "a@acme.test"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slug_taken", errCode(body))
}

func TestGeneratedOwnerPassword(t *testing.T) {
	t.Parallel()
	a := newApp(t)

	body := a.register(t, "Globex", "hank@globex.test", "")
	owner := body["owner"].(map[string]any)
	password, _ := owner["temporary_password"].(string)
	require.Len(t, password, auth.GeneratedPasswordLength)

	a.login(t, "globex", "hank@globex.test", password)
}

func TestTenantResolutionStatuses(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	a.register(t, "Initech", "bill@initech.test", "supersecret")

	rec, body := a.do(t, http.MethodGet, "/unknown-co/api/me", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tenant_not_found", errCode(body))

	rec, body = a.do(t, http.MethodGet, "/Not_A_Slug/api/me", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tenant_identifier_invalid", errCode(body))

	ts, err := a.registry.List(context.Background(), tenant.ListFilter{})
	require.NoError(t, err)
	require.Len(t, ts, 1)

	rec, _ = a.do(t, http.MethodPatch, "/api/tenants/"+ts[0].ID.String()+"/status", adminToken, map[string]any{"status": "suspended"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = a.do(t, http.MethodPost, "/initech/auth/login", "", map[string]any{"email": "bill@initech.test", "password": "supersecret"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "tenant_inactive", errCode(body))
}

func TestTenantSettings(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	a.register(t, "Acme", "owner@acme.test", "supersecret")
	token := a.login(t, "acme", "owner@acme.test", "supersecret")

	rec, body := a.do(t, http.MethodPatch, "/acme/api/tenant", token, map[string]any{"name": "Acme Corp", "domain": "CRM.Acme.test"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Acme Corp", body["name"])
	assert.Equal(t, "crm.acme.test", body["domain"])

	rec, _ = a.do(t, http.MethodPatch, "/acme/api/tenant", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = a.do(t, http.MethodPut, "/acme/api/tenant/details", token, map[string]any{
		"website": "https://acme.test",
		"country": "DE",
		"social":  map[string]string{"linkedin": "https://linkedin.com/company/acme"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "DE", body["country"])

	rec, body = a.do(t, http.MethodPut, "/acme/api/tenant/details", token, map[string]any{"country": "Germany"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", errCode(body))

	rec, body = a.do(t, http.MethodGet, "/acme/api/tenant", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme Corp", body["name"])
	assert.Equal(t, "https://acme.test", body["details"].(map[string]any)["website"])

	rec, body = a.do(t, http.MethodGet, "/acme/api/roles", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["roles"], len(rbac.Default().Roles()))

	rec, _ = a.do(t, http.MethodGet, "/acme/api/tenant", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPermissionsFollowRoles(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	a.register(t, "Acme", "owner@acme.test", "supersecret")

	hash, err := auth.HashPassword("salespassword", bcrypt.MinCost)
	require.NoError(t, err)
	a.users.mu.Lock()
	sales := &members.User{ID: uuid.New(), Email: "sales@acme.test", PasswordHash: hash, Roles: []string{"sales"}}
	a.users.users["tenant_acme"][sales.ID] = sales
	a.users.mu.Unlock()

	token := a.login(t, "acme", "sales@acme.test", "salespassword")

	rec, _ := a.do(t, http.MethodGet, "/acme/api/tenant", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := a.do(t, http.MethodPatch, "/acme/api/tenant", token, map[string]any{"name": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errCode(body))

	rec, _ = a.do(t, http.MethodGet, "/acme/api/roles", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminAPI(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	first := a.register(t, "Acme", "a@acme.test", "supersecret")
	a.register(t, "Globex", "g@globex.test", "supersecret")

	rec, _ := a.do(t, http.MethodGet, "/api/tenants", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = a.do(t, http.MethodGet, "/api/tenants", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := a.do(t, http.MethodGet, "/api/tenants", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])

	id := first["tenant_id"].(string)
	rec, body = a.do(t, http.MethodGet, "/api/tenants/"+id, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", body["slug"])

	rec, _ = a.do(t, http.MethodGet, "/api/tenants/not-a-uuid", adminToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec, _ = a.do(t, http.MethodGet, "/api/tenants/"+uuid.NewString(), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = a.do(t, http.MethodPatch, "/api/tenants/"+id+"/status", adminToken, map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = a.do(t, http.MethodPatch, "/api/tenants/"+id+"/status", adminToken, map[string]any{"status": "active"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_status_transition", errCode(body))

	rec, body = a.do(t, http.MethodGet, "/api/tenants?status=cancelled", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, _ = a.do(t, http.MethodDelete, "/api/tenants/"+id, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, body = a.do(t, http.MethodGet, "/api/tenants?include_deleted=true", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])
}

func TestAdminAPIDisabled(t *testing.T) {
	t.Parallel()

	reg := tenant.NewMemoryRegistry()
	r := chi.NewRouter()
	workspace.Router(r, workspace.RouterOptions{Landlord: workspace.NewLandlord(nil, reg, "", nil)})

	req := httptest.NewRequest(http.MethodGet, "/api/tenants", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithSweep(0, 0))
	t.Cleanup(store.Close)
	bucket, err := ratelimiter.NewBucket(store, ratelimiter.PerInterval(3, time.Minute))
	require.NoError(t, err)

	a := newApp(t, workspace.WithRateLimit(workspace.RateLimit(bucket, nil)))
	// Registration is keyed by address alone, so it does not eat into the
	// tenant's login budget.
	a.register(t, "Acme", "owner@acme.test", "supersecret")

	for range 3 {
		rec, _ := a.do(t, http.MethodPost, "/acme/auth/login", "", map[string]any{"email": "owner@acme.test", "password": "bad-password"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, body := a.do(t, http.MethodPost, "/acme/auth/login", "", map[string]any{"email": "owner@acme.test", "password": "supersecret"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too_many_requests", errCode(body))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
