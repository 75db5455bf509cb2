package migrator

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/crmkit/pkg/pg"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
)

// Schema migrates one database.
type Schema interface {
	Up(ctx context.Context, pool switchboard.Pool) ([]int64, error)
	Reset(ctx context.Context, pool switchboard.Pool) error
}

// PgSchema runs a goose migrator on switchboard pools backed by pgxpool.
type PgSchema struct {
	Migrator *pg.Migrator
}

func (s PgSchema) Up(ctx context.Context, pool switchboard.Pool) ([]int64, error) {
	p, err := pgxPool(pool)
	if err != nil {
		return nil, err
	}
	return s.Migrator.Up(ctx, p)
}

func (s PgSchema) Reset(ctx context.Context, pool switchboard.Pool) error {
	p, err := pgxPool(pool)
	if err != nil {
		return err
	}
	return s.Migrator.Reset(ctx, p)
}

func pgxPool(pool switchboard.Pool) (*pgxpool.Pool, error) {
	p, ok := pool.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("migrator: pool %T is not a *pgxpool.Pool", pool)
	}
	return p, nil
}
