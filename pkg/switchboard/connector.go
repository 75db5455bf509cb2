package switchboard

import (
	"context"

	"github.com/dmitrymomot/crmkit/pkg/pg"
)

// PgConnector opens tenant pools on the landlord server, reusing its
// credentials with a different database name.
type PgConnector struct {
	cfg pg.Config
}

// NewPgConnector creates a connector from the landlord configuration.
func NewPgConnector(cfg pg.Config) *PgConnector {
	return &PgConnector{cfg: cfg}
}

func (c *PgConnector) Connect(ctx context.Context, database string) (Pool, error) {
	pool, err := pg.ConnectDatabase(ctx, c.cfg, database)
	if err != nil {
		return nil, err
	}
	return pool, nil
}
