package switchboard_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/crmkit/pkg/switchboard"
)

var errFake = errors.New("fake: not implemented")

type fakePool struct {
	name     string
	pingErr  error
	closed   atomic.Bool
	begun    atomic.Int32
	lastTx   atomic.Pointer[fakeTx]
	beginErr error
}

func (p *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errFake
}

func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	p.begun.Add(1)
	tx := &fakeTx{}
	p.lastTx.Store(tx)
	return tx, nil
}

func (p *fakePool) Ping(context.Context) error { return p.pingErr }

func (p *fakePool) Close() { p.closed.Store(true) }

// fakeTx implements the pgx.Tx methods the binding uses; anything else panics.
type fakeTx struct {
	pgx.Tx
	committed  atomic.Bool
	rolledBack atomic.Bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed.Store(true)
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed.Load() || t.rolledBack.Load() {
		return pgx.ErrTxClosed
	}
	t.rolledBack.Store(true)
	return nil
}

func (t *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errFake }

func (t *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

// fakeConnector hands out one fakePool per Connect call and remembers them.
type fakeConnector struct {
	mu      sync.Mutex
	pools   map[string][]*fakePool
	calls   atomic.Int32
	fail    map[string]error
	pingErr map[string]error
	gate    chan struct{}
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		pools:   make(map[string][]*fakePool),
		fail:    make(map[string]error),
		pingErr: make(map[string]error),
	}
}

func (c *fakeConnector) Connect(ctx context.Context, database string) (switchboard.Pool, error) {
	c.calls.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[database]; err != nil {
		return nil, err
	}
	p := &fakePool{name: database, pingErr: c.pingErr[database]}
	c.pools[database] = append(c.pools[database], p)
	return p, nil
}

func (c *fakeConnector) opened(database string) []*fakePool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakePool(nil), c.pools[database]...)
}

func poolName(t interface{ Helper() }, db switchboard.DB) string {
	t.Helper()
	if p, ok := db.(*fakePool); ok {
		return p.name
	}
	return ""
}
