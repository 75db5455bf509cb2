package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/migrator"
	"github.com/dmitrymomot/crmkit/svc/provision"
)

func printTenants(w io.Writer, ts []*tenant.Tenant, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ts)
	case "", "table":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tSTATUS\tDATABASE\tPLAN\tCREATED")
	for _, t := range ts {
		status := string(t.Status)
		if t.DeletedAt != nil {
			status += " (deleted)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Slug, t.Name, status, t.Database, dash(t.PlanID), t.CreatedAt.Format(time.DateOnly))
	}
	return tw.Flush()
}

func printReport(w io.Writer, r migrator.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tDATABASE\tRESULT\tAPPLIED\tSEEDED\tDURATION")
	for _, res := range r.Results {
		result := "ok"
		if res.Err != nil {
			result = "failed: " + res.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			res.Slug, res.Database, result, versions(res.Applied), res.Seeded, res.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d tenant(s), %d failed\n", len(r.Results), len(r.Failed()))
}

func printProvisioned(w io.Writer, res *provision.Result) {
	fmt.Fprintf(w, "tenant:   %s (%s)\n", res.Tenant.Slug, res.Tenant.ID)
	fmt.Fprintf(w, "database: %s\n", res.Tenant.Database)
	fmt.Fprintf(w, "status:   %s\n", res.Tenant.Status)
	fmt.Fprintf(w, "owner:    %s (%s)\n", res.Owner.Email, res.Owner.UserID)
	if res.Owner.TemporaryPassword != "" {
		fmt.Fprintf(w, "password: %s\n", res.Owner.TemporaryPassword)
	}
}

func versions(v []int64) string {
	if len(v) == 0 {
		return "-"
	}
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
