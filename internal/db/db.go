// Package db embeds the SQL migrations of the landlord database and of every
// tenant database.
package db

import (
	"embed"
	"io/fs"
)

//go:embed landlord/*.sql
var landlordFS embed.FS

//go:embed tenant/*.sql
var tenantFS embed.FS

// Landlord returns the landlord migrations rooted at the migration files.
func Landlord() fs.FS {
	return mustSub(landlordFS, "landlord")
}

// Tenant returns the per-tenant migrations rooted at the migration files.
func Tenant() fs.FS {
	return mustSub(tenantFS, "tenant")
}

func mustSub(fsys embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
