package pg

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrator runs embedded goose migrations against one database.
type Migrator struct {
	fsys fs.FS
	log  logger
}

// NewMigrator creates a Migrator over the SQL files at the root of fsys.
func NewMigrator(fsys fs.FS, log logger) *Migrator {
	return &Migrator{fsys: fsys, log: log}
}

// Up applies all pending migrations and returns the versions applied.
func (m *Migrator) Up(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	var applied []int64
	err := m.withProvider(pool, func(p *goose.Provider) error {
		results, err := p.Up(ctx)
		applied = m.collect(ctx, results)
		return err
	})
	if err != nil {
		return applied, errors.Join(ErrFailedToApplyMigrations, err)
	}
	return applied, nil
}

// Reset rolls every migration back, leaving an empty schema history.
func (m *Migrator) Reset(ctx context.Context, pool *pgxpool.Pool) error {
	err := m.withProvider(pool, func(p *goose.Provider) error {
		results, err := p.DownTo(ctx, 0)
		m.collect(ctx, results)
		return err
	})
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var version int64
	err := m.withProvider(pool, func(p *goose.Provider) error {
		v, err := p.GetDBVersion(ctx)
		version = v
		return err
	})
	return version, err
}

func (m *Migrator) withProvider(pool *pgxpool.Pool, fn func(*goose.Provider) error) error {
	// goose speaks database/sql; the wrapper shares the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			m.log.ErrorContext(context.Background(), "failed to close migration handle", "error", err)
		}
	}(db)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, m.fsys)
	if err != nil {
		return err
	}
	return fn(provider)
}

func (m *Migrator) collect(ctx context.Context, results []*goose.MigrationResult) []int64 {
	versions := make([]int64, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		if r.Error != nil {
			m.log.ErrorContext(ctx, "migration failed", "version", r.Source.Version, "path", r.Source.Path, "error", r.Error)
			continue
		}
		m.log.InfoContext(ctx, "migration applied", "version", r.Source.Version, "direction", r.Direction, "duration", r.Duration)
		versions = append(versions, r.Source.Version)
	}
	return versions
}

// Migrate applies every pending migration in fsys. Shorthand for
// NewMigrator(fsys, log).Up(ctx, pool) when the versions are not needed.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, log logger) error {
	_, err := NewMigrator(fsys, log).Up(ctx, pool)
	return err
}
