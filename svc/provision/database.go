package provision

import (
	"context"

	"github.com/dmitrymomot/crmkit/pkg/pg"
)

// PgDatabases creates and drops tenant databases through the landlord
// connection.
type PgDatabases struct {
	DB pg.Execer
}

func (d PgDatabases) CreateDatabase(ctx context.Context, name string) error {
	return pg.CreateDatabase(ctx, d.DB, name)
}

func (d PgDatabases) DropDatabase(ctx context.Context, name string) error {
	return pg.DropDatabase(ctx, d.DB, name)
}
