// Package provision creates a tenant end to end: slug, physical database,
// registry row, schema, baseline roles and the owner account.
//
// The workflow is a saga. Steps before the registry write are undone in
// reverse order when a later one fails, so a failed creation leaves nothing
// behind. Steps after the registry write are not undone: the tenant is
// marked suspended and the error names the failing step so the tenant can
// be repaired, e.g. by re-running tenant migrations.
//
//	res, err := svc.Provision(ctx, provision.Request{
//		Name:  "Ahmed Tech!",
//		Owner: provision.Owner{Name: "Ahmed", Email: "ahmed@example.com"},
//	})
//	// res.Tenant.Slug == "ahmed-tech", res.Owner.TemporaryPassword != ""
package provision
