package guard_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crmkit/pkg/slug"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/guard"
)

type stubPool struct {
	pingErr error
}

func (p *stubPool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (p *stubPool) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (p *stubPool) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (p *stubPool) Begin(context.Context) (pgx.Tx, error)                   { return nil, errors.New("no tx") }
func (p *stubPool) Ping(context.Context) error                              { return p.pingErr }
func (p *stubPool) Close()                                                  {}

type env struct {
	sb       *switchboard.Switchboard
	connects atomic.Int32
	states   []guard.State
	mu       sync.Mutex
	guard    *guard.Guard
}

func (e *env) recorded() []guard.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]guard.State(nil), e.states...)
}

func newTenant(s string, status tenant.Status) *tenant.Tenant {
	return &tenant.Tenant{ID: uuid.New(), Name: s, Slug: s, Subdomain: s, Database: tenant.DatabaseName(s), Status: status}
}

// setup wires a guard to an in-memory registry and a switchboard whose
// connector fails for databases listed in connectErr and pings with pingErr.
func setup(t *testing.T, connectErr, pingErr map[string]error, opts ...guard.Option) *env {
	t.Helper()

	reg := tenant.NewMemoryRegistry(
		newTenant("acme", tenant.StatusActive),
		newTenant("globex", tenant.StatusActive),
		newTenant("initech", tenant.StatusSuspended),
		newTenant("broken", tenant.StatusActive),
		newTenant("flaky", tenant.StatusActive),
	)
	e := &env{}
	e.sb = switchboard.New(switchboard.ConnectorFunc(func(_ context.Context, db string) (switchboard.Pool, error) {
		e.connects.Add(1)
		if err := connectErr[db]; err != nil {
			return nil, err
		}
		return &stubPool{pingErr: pingErr[db]}, nil
	}), switchboard.Config{MaxPools: 8})
	t.Cleanup(e.sb.Close)

	opts = append(opts, guard.WithStateHook(func(_ context.Context, s guard.State) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.states = append(e.states, s)
	}))
	e.guard = guard.New(tenant.NewPathResolver(reg, slug.DefaultReserved), e.sb, opts...)
	return e
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGuard_BindsTenant(t *testing.T) {
	t.Parallel()
	e := setup(t, nil, nil)

	var (
		seen     *tenant.Tenant
		target   string
		captured context.Context
	)
	h := e.guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = tenant.FromContext(r.Context())
		b, ok := switchboard.FromContext(r.Context())
		require.True(t, ok)
		target, _ = b.CurrentTarget()
		captured = r.Context()
		w.WriteHeader(http.StatusOK)
	}))

	rec := serve(h, "/acme/api/leads")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "acme", seen.Slug)
	assert.Equal(t, "tenant_acme", target)
	assert.Equal(t, []guard.State{guard.StateResolving, guard.StateActive, guard.StateTornDown}, e.recorded())

	// The context handed to the handler no longer carries a tenant or a live binding.
	_, ok := tenant.FromContext(captured)
	assert.False(t, ok)
	b, _ := switchboard.FromContext(captured)
	_, active := b.CurrentTarget()
	assert.False(t, active)
	_, err := switchboard.DBFromContext(captured)
	assert.ErrorIs(t, err, switchboard.ErrNotActive)
}

func TestGuard_ResolutionFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unknown tenant", "/unknown-co/api/leads", http.StatusNotFound, "tenant_not_found"},
		{"suspended tenant", "/initech/api/leads", http.StatusForbidden, "tenant_inactive"},
		{"malformed slug", "/Bad_Slug!/api/leads", http.StatusBadRequest, "tenant_identifier_invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := setup(t, nil, nil)
			h := e.guard.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Error("handler must not run")
			}))

			rec := serve(h, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
			assert.Zero(t, e.connects.Load(), "no activation on resolution failure")
			assert.Empty(t, e.sb.Open())
			assert.Equal(t, []guard.State{guard.StateResolving, guard.StateFailed, guard.StateTornDown}, e.recorded())
		})
	}
}

func TestGuard_ConnectionFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
	}{
		{"connect", "/broken/api/leads"},
		{"probe", "/flaky/api/leads"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := setup(t,
				map[string]error{"tenant_broken": errors.New("database does not exist")},
				map[string]error{"tenant_flaky": errors.New("connection refused")},
			)
			h := e.guard.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Error("handler must not run")
			}))

			rec := serve(h, tt.path)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.NotContains(t, rec.Body.String(), "refused")
			assert.Equal(t, "tenant_database_unavailable", errorCode(t, rec))
			assert.Equal(t, []guard.State{guard.StateResolving, guard.StateFailed, guard.StateTornDown}, e.recorded())
		})
	}
}

func TestGuard_LandlordPassThrough(t *testing.T) {
	t.Parallel()
	e := setup(t, nil, nil)

	called := false
	h := e.guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := tenant.FromContext(r.Context())
		assert.False(t, ok)
		_, ok = switchboard.FromContext(r.Context())
		assert.False(t, ok)
		w.WriteHeader(http.StatusCreated)
	}))

	rec := serve(h, "/registration")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, called)
	assert.Zero(t, e.connects.Load())
	assert.Equal(t, []guard.State{guard.StateResolving, guard.StateTornDown}, e.recorded())
}

func TestGuard_SkipPaths(t *testing.T) {
	t.Parallel()
	e := setup(t, nil, nil, guard.WithSkipPaths("/health"))

	h := e.guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	assert.Equal(t, http.StatusOK, serve(h, "/health/ready").Code)
	assert.Empty(t, e.recorded())
}

func TestGuard_SkipPathsMatchWholeSegments(t *testing.T) {
	t.Parallel()

	reg := tenant.NewMemoryRegistry(
		newTenant("healthcare-inc", tenant.StatusActive),
		newTenant("metricsco", tenant.StatusActive),
	)
	sb := switchboard.New(switchboard.ConnectorFunc(func(context.Context, string) (switchboard.Pool, error) {
		return &stubPool{}, nil
	}), switchboard.Config{MaxPools: 8})
	t.Cleanup(sb.Close)
	g := guard.New(tenant.NewPathResolver(reg, slug.DefaultReserved), sb, guard.WithSkipPaths("/health", "/metrics/"))

	tests := []struct {
		path   string
		target string
	}{
		{path: "/healthcare-inc/api/leads", target: "tenant_healthcare_inc"},
		{path: "/metricsco/api/leads", target: "tenant_metricsco"},
		{path: "/health"},
		{path: "/health/ready"},
		{path: "/metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			var target string
			h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if b, ok := switchboard.FromContext(r.Context()); ok {
					target, _ = b.CurrentTarget()
				}
				w.WriteHeader(http.StatusOK)
			}))
			require.Equal(t, http.StatusOK, serve(h, tt.path).Code)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestGuard_TeardownOnPanic(t *testing.T) {
	t.Parallel()
	e := setup(t, nil, nil)

	var captured context.Context
	h := e.guard.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = r.Context()
		panic("boom")
	}))

	assert.PanicsWithValue(t, "boom", func() { serve(h, "/acme/api/leads") })

	_, ok := tenant.FromContext(captured)
	assert.False(t, ok)
	b, _ := switchboard.FromContext(captured)
	_, active := b.CurrentTarget()
	assert.False(t, active)
	assert.Equal(t, guard.StateTornDown, e.recorded()[len(e.recorded())-1])
}

func TestGuard_TeardownOnCancellation(t *testing.T) {
	t.Parallel()
	e := setup(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	leaked := make(chan context.Context, 1)
	h := e.guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A goroutine outlives the request with the request context.
		leaked <- r.Context()
		cancel()
		<-r.Context().Done()
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/acme/api/leads", nil).WithContext(ctx))

	late := <-leaked
	_, ok := tenant.FromContext(late)
	assert.False(t, ok, "tenant must not be visible after teardown")
	_, err := switchboard.DBFromContext(late)
	assert.ErrorIs(t, err, switchboard.ErrNotActive)
}

func TestGuard_CancelledBeforeActivation(t *testing.T) {
	t.Parallel()

	reg := tenant.NewMemoryRegistry(newTenant("acme", tenant.StatusActive))
	sb := switchboard.New(switchboard.ConnectorFunc(func(ctx context.Context, _ string) (switchboard.Pool, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), switchboard.Config{})
	t.Cleanup(sb.Close)
	g := guard.New(tenant.NewPathResolver(reg, slug.DefaultReserved), sb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	g.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/acme/x", nil).WithContext(ctx))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, sb.Open())
}

func TestGuard_Isolation(t *testing.T) {
	t.Parallel()
	e := setup(t, nil, nil)

	var mismatches atomic.Int32
	h := e.guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tn := tenant.MustFromContext(r.Context())
		b, _ := switchboard.FromContext(r.Context())
		if target, _ := b.CurrentTarget(); target != tn.Database {
			mismatches.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := "acme"
			if i%2 == 1 {
				s = "globex"
			}
			rec := serve(h, fmt.Sprintf("/%s/api/leads", s))
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()

	assert.Zero(t, mismatches.Load())
	assert.ElementsMatch(t, []string{"tenant_acme", "tenant_globex"}, e.sb.Open())
}

type outage struct{}

func (outage) Resolve(context.Context, string, string) (tenant.Resolution, error) {
	return tenant.Resolution{}, errors.New("registry unavailable")
}

func TestGuard_RegistryOutage(t *testing.T) {
	t.Parallel()

	sb := switchboard.New(switchboard.ConnectorFunc(func(context.Context, string) (switchboard.Pool, error) {
		return &stubPool{}, nil
	}), switchboard.Config{})
	t.Cleanup(sb.Close)

	rec := serve(guard.New(outage{}, sb).Middleware(http.NotFoundHandler()), "/acme/x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "tenant_resolution_failed", errorCode(t, rec))
}

func TestGuard_CustomErrorHandler(t *testing.T) {
	t.Parallel()

	var got error
	e := setup(t, nil, nil, guard.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := serve(e.guard.Middleware(http.NotFoundHandler()), "/unknown-co/x")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, got, tenant.ErrTenantNotFound)
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := guard.RequireTenant(ok)

	rec := serve(h, "/api/me")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tenant_required", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(tenant.WithTenant(req.Context(), newTenant("acme", tenant.StatusActive)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, guard.ErrTenantUnavailable, guard.HTTPError(&switchboard.ConnectionError{Database: "x", Op: "probe", Err: errors.New("down")}))
	assert.Equal(t, guard.ErrResolutionFailed, guard.HTTPError(errors.New("other")))
}

func TestRequireLandlord(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := guard.RequireLandlord(ok)

	assert.Equal(t, http.StatusOK, serve(h, "/registration").Code)

	req := httptest.NewRequest(http.MethodPost, "/registration", nil)
	req = req.WithContext(tenant.WithTenant(req.Context(), newTenant("acme", tenant.StatusActive)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
