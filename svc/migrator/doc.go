// Package migrator applies the embedded tenant schema to tenant databases.
//
// Run migrates every active tenant, or one tenant by slug, with bounded
// concurrency. A failing tenant never stops the others; the Report lists
// each outcome and Failed tells the CLI which exit code to use.
//
// Fresh rolls the schema back to version zero before migrating up, and
// Seed converges the role tables to the rbac policy afterwards.
package migrator
