package switchboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Binding is the request-scoped tenant connection: a mutable pointer from
// "the tenant connection" to one tenant database pool. Each request owns its
// own Binding, so activation never affects another request.
//
// A Binding is safe for concurrent use by goroutines of the same request.
type Binding struct {
	sb *Switchboard

	mu    sync.Mutex
	entry *entry
	tx    pgx.Tx
}

// Activate points the binding at database. Re-activating the current target
// is a no-op. Switching to another database releases the previous pool first.
// Activating while a transaction is open fails with ErrActivateInTransaction.
func (b *Binding) Activate(ctx context.Context, database string) error {
	if database == "" {
		return &ConnectionError{Database: database, Op: "activate", Err: errors.New("empty database name")}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tx != nil {
		activations.WithLabelValues("in_tx").Inc()
		return fmt.Errorf("%w: %s", ErrActivateInTransaction, database)
	}
	if b.entry != nil && b.entry.database == database && !b.entry.retired.Load() {
		activations.WithLabelValues("noop").Inc()
		return nil
	}
	if b.entry != nil {
		b.sb.release(b.entry)
		b.entry = nil
	}

	e, err := b.sb.acquire(ctx, database)
	if err != nil {
		activations.WithLabelValues("error").Inc()
		return &ConnectionError{Database: database, Op: "activate", Err: err}
	}
	b.entry = e
	activations.WithLabelValues("ok").Inc()
	return nil
}

// Probe verifies the active database is reachable.
func (b *Binding) Probe(ctx context.Context) error {
	b.mu.Lock()
	e := b.entry
	b.mu.Unlock()

	if e == nil {
		return ErrNotActive
	}
	if timeout := b.sb.cfg.ProbeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := e.pool.Ping(ctx); err != nil {
		return &ConnectionError{Database: e.database, Op: "probe", Err: err}
	}
	return nil
}

// Reset returns the binding to the unconfigured state, rolling back any
// transaction still open and releasing the pool. Safe to call repeatedly.
func (b *Binding) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tx != nil {
		// The request context may already be cancelled; rollback needs its own.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			b.sb.log.Warn("rollback on binding reset failed", "database", b.entry.database, "error", err)
		}
		cancel()
		b.tx = nil
	}
	if b.entry != nil {
		b.sb.release(b.entry)
		b.entry = nil
	}
}

// CurrentTarget returns the active database name.
func (b *Binding) CurrentTarget() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entry == nil {
		return "", false
	}
	return b.entry.database, true
}

// Generation returns the pool generation the binding holds, zero when inactive.
func (b *Binding) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entry == nil {
		return 0
	}
	return b.entry.generation
}

// DB returns the handle for tenant queries: the open transaction if any,
// otherwise the pool.
func (b *Binding) DB() (DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.entry == nil:
		return nil, ErrNotActive
	case b.tx != nil:
		return b.tx, nil
	case b.entry.retired.Load():
		return nil, fmt.Errorf("%w: %s generation %d", ErrStaleBinding, b.entry.database, b.entry.generation)
	}
	return b.entry.pool, nil
}

// Pool returns the underlying pool of the active database.
// Migration tooling needs it; request code should use DB.
func (b *Binding) Pool() (Pool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entry == nil {
		return nil, ErrNotActive
	}
	if b.entry.retired.Load() {
		return nil, ErrStaleBinding
	}
	return b.entry.pool, nil
}

// InTx runs fn inside a transaction on the active database. While fn runs,
// DB returns the transaction and Activate fails. A nested InTx joins the
// outer transaction. fn's error or panic rolls back.
func (b *Binding) InTx(ctx context.Context, fn func(ctx context.Context, tx DB) error) (err error) {
	b.mu.Lock()
	if b.tx != nil {
		tx := b.tx
		b.mu.Unlock()
		return fn(ctx, tx)
	}
	if b.entry == nil {
		b.mu.Unlock()
		return ErrNotActive
	}
	if b.entry.retired.Load() {
		b.mu.Unlock()
		return ErrStaleBinding
	}
	tx, err := b.entry.pool.Begin(ctx)
	if err != nil {
		b.mu.Unlock()
		return &ConnectionError{Database: b.entry.database, Op: "begin", Err: err}
	}
	b.tx = tx
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		// Reset may already have rolled back and cleared it.
		owned := b.tx == tx
		if owned {
			b.tx = nil
		}
		b.mu.Unlock()

		if p := recover(); p != nil {
			if owned {
				_ = tx.Rollback(context.WithoutCancel(ctx))
			}
			panic(p)
		}
		if !owned {
			if err == nil {
				err = ErrNotActive
			}
			return
		}
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, rbErr)
			}
			return
		}
		err = tx.Commit(ctx)
	}()

	return fn(ctx, tx)
}

// InTxResult is InTx returning a value.
func InTxResult[T any](ctx context.Context, b *Binding, fn func(ctx context.Context, tx DB) (T, error)) (T, error) {
	var out T
	err := b.InTx(ctx, func(ctx context.Context, tx DB) error {
		var innerErr error
		out, innerErr = fn(ctx, tx)
		return innerErr
	})
	return out, err
}
