package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/migrator"
	"github.com/dmitrymomot/crmkit/svc/provision"
)

func TestPrintTenants(t *testing.T) {
	t.Parallel()

	deleted := time.Now()
	ts := []*tenant.Tenant{
		{Slug: "acme", Name: "Acme", Status: tenant.StatusActive, Database: "tenant_acme", PlanID: "trial"},
		{Slug: "initech", Name: "Initech", Status: tenant.StatusCancelled, Database: "tenant_initech", DeletedAt: &deleted},
	}

	var buf bytes.Buffer
	require.NoError(t, printTenants(&buf, ts, "table"))
	out := buf.String()
	assert.Contains(t, out, "SLUG")
	assert.Contains(t, out, "tenant_acme")
	assert.Contains(t, out, "cancelled (deleted)")

	buf.Reset()
	require.NoError(t, printTenants(&buf, ts, "json"))
	var decoded []tenant.Tenant
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, 2)

	assert.Error(t, printTenants(&buf, ts, "yaml"))
}

func TestPrintReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printReport(&buf, migrator.Report{Results: []migrator.Result{
		{Slug: "acme", Database: "tenant_acme", Applied: []int64{1, 2}, Seeded: true},
		{Slug: "globex", Database: "tenant_globex", Err: errors.New("relation exists")},
	}})

	out := buf.String()
	assert.Contains(t, out, "1,2")
	assert.Contains(t, out, "failed: relation exists")
	assert.Contains(t, out, "2 tenant(s), 1 failed")
}

func TestPrintProvisioned(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printProvisioned(&buf, &provision.Result{
		Tenant: &tenant.Tenant{ID: uuid.New(), Slug: "acme", Database: "tenant_acme", Status: tenant.StatusActive},
		Owner:  provision.Receipt{Email: "owner@acme.test", TemporaryPassword: "s3cret-pass"},
	})
	assert.Contains(t, buf.String(), "tenant_acme")
	assert.Contains(t, buf.String(), "password: s3cret-pass")
}

func TestTenantsCommandTree(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"landlord", "migrate"},
		{"tenants", "list"},
		{"tenants", "migrate"},
		{"tenants", "create"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	migrate, _, err := root.Find([]string{"tenants", "migrate"})
	require.NoError(t, err)
	for _, flag := range []string{"fresh", "seed", "concurrency"} {
		assert.NotNil(t, migrate.Flags().Lookup(flag), flag)
	}
}
