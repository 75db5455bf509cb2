package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by pools, connections and transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Querier runs single-row queries.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateDatabase creates a database on the server behind db. DDL of this kind
// cannot run inside a transaction, so db must be a pool or plain connection.
func CreateDatabase(ctx context.Context, db Execer, name string) error {
	if name == "" {
		return ErrEmptyDatabaseName
	}
	sql := fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{name}.Sanitize())
	if _, err := db.Exec(ctx, sql); err != nil {
		return errors.Join(ErrFailedToCreateDatabase, err)
	}
	return nil
}

// DropDatabase drops a database if it exists, terminating leftover sessions.
func DropDatabase(ctx context.Context, db Execer, name string) error {
	if name == "" {
		return ErrEmptyDatabaseName
	}
	sql := fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", pgx.Identifier{name}.Sanitize())
	if _, err := db.Exec(ctx, sql); err != nil {
		return errors.Join(ErrFailedToDropDatabase, err)
	}
	return nil
}

// DatabaseExists reports whether a database with the given name exists.
func DatabaseExists(ctx context.Context, db Querier, name string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	return exists, err
}
