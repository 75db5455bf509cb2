// Package pg wraps the pgx/v5 driver for the two kinds of databases crmkit
// talks to: the landlord database holding the tenant registry, and one
// physical database per tenant on the same server.
//
// Connect opens the landlord pool with retries. ConnectDatabase opens a lazy
// pool to another database using the same credentials; the switchboard uses
// it for tenant pools. CreateDatabase and DropDatabase issue the DDL used by
// tenant provisioning, quoting names with pgx.Identifier.
//
// Migrator runs goose migrations from an fs.FS (normally embedded) through
// the goose Provider API, bridging the pgx pool to database/sql with
// stdlib.OpenDBFromPool.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, db.Landlord(), log); err != nil {
//		return err
//	}
//
// Error helpers such as IsDuplicateKeyError classify *pgconn.PgError values
// by SQLSTATE.
package pg
