package switchboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"
)

// DB is the query surface handed to tenant-scoped code. Pools and
// transactions both satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a connection pool for one tenant database. *pgxpool.Pool satisfies it.
type Pool interface {
	DB
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Connector opens a pool for a database name.
type Connector interface {
	Connect(ctx context.Context, database string) (Pool, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, database string) (Pool, error)

func (f ConnectorFunc) Connect(ctx context.Context, database string) (Pool, error) {
	return f(ctx, database)
}

// Config tunes pool lifecycle.
type Config struct {
	MaxPools     int           `env:"SWITCHBOARD_MAX_POOLS" envDefault:"64"`
	IdleTimeout  time.Duration `env:"SWITCHBOARD_IDLE_TIMEOUT" envDefault:"10m"`
	ReapInterval time.Duration `env:"SWITCHBOARD_REAP_INTERVAL" envDefault:"1m"`
	ProbeTimeout time.Duration `env:"SWITCHBOARD_PROBE_TIMEOUT" envDefault:"3s"`
	// ConnectTimeout bounds opening a new pool. Zero means no bound.
	ConnectTimeout time.Duration `env:"SWITCHBOARD_CONNECT_TIMEOUT" envDefault:"10s"`
}

// entry is one open pool. refs counts bindings currently pointing at it.
type entry struct {
	database   string
	pool       Pool
	generation uint64
	refs       int
	lastUsed   time.Time
	retired    atomic.Bool
	closed     atomic.Bool
}

// Switchboard owns one pool per tenant database. Switching tenants means
// picking a different pool; nothing process-wide is rebound, so concurrent
// requests for different tenants never share a connection target.
type Switchboard struct {
	connector Connector
	cfg       Config
	log       *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	pools  map[string]*entry
	gens   map[string]uint64
	closed bool
	flight singleflight.Group

	stop chan struct{}
	done chan struct{}
}

// Option configures a Switchboard.
type Option func(*Switchboard)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Switchboard) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(s *Switchboard) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Switchboard and starts its idle reaper when configured.
// Close must be called to stop the reaper and close all pools.
func New(connector Connector, cfg Config, opts ...Option) *Switchboard {
	s := &Switchboard{
		connector: connector,
		cfg:       cfg,
		log:       slog.Default(),
		now:       time.Now,
		pools:     make(map[string]*entry),
		gens:      make(map[string]uint64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.IdleTimeout > 0 && cfg.ReapInterval > 0 {
		go s.reapLoop()
	} else {
		close(s.done)
	}
	return s
}

// NewBinding returns an inactive request-scoped binding.
func (s *Switchboard) NewBinding() *Binding {
	return &Binding{sb: s}
}

// Open reports the databases with an open pool.
func (s *Switchboard) Open() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pools))
	for name := range s.pools {
		out = append(out, name)
	}
	return out
}

// Generation returns the generation of the current pool for database, or
// zero when none is open.
func (s *Switchboard) Generation(database string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.pools[database]; ok {
		return e.generation
	}
	return 0
}

// Purge closes the pool of database. Bindings still holding it become stale
// and fail on next use; the pool itself closes once they release it.
// Provisioning and dropping databases call this so no handle survives a
// schema reset.
func (s *Switchboard) Purge(database string) {
	s.mu.Lock()
	e, ok := s.pools[database]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.retireLocked(e)
	closeNow := e.refs == 0
	s.mu.Unlock()

	poolEvents.WithLabelValues("purged").Inc()
	if closeNow {
		s.closePool(e)
	}
}

// Close stops the reaper and closes every pool.
func (s *Switchboard) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	entries := make([]*entry, 0, len(s.pools))
	for _, e := range s.pools {
		s.retireLocked(e)
		entries = append(entries, e)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	default:
		close(s.stop)
		<-s.done
	}

	for _, e := range entries {
		s.closePool(e)
	}
}

// acquire returns the live entry for database with its reference taken.
func (s *Switchboard) acquire(ctx context.Context, database string) (*entry, error) {
	// A concurrent Purge may retire the pool between open and lookup, so retry a few times.
	for range 3 {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if e, ok := s.pools[database]; ok {
			e.refs++
			e.lastUsed = s.now()
			s.mu.Unlock()
			return e, nil
		}
		s.mu.Unlock()

		// The pool is shared by every waiter, so it is opened detached from
		// the caller that happened to start it. Each caller still gives up
		// when its own context ends.
		ch := s.flight.DoChan(database, func() (any, error) {
			octx := context.WithoutCancel(ctx)
			if s.cfg.ConnectTimeout > 0 {
				var cancel context.CancelFunc
				octx, cancel = context.WithTimeout(octx, s.cfg.ConnectTimeout)
				defer cancel()
			}
			return nil, s.open(octx, database)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}
	}
	return nil, fmt.Errorf("pool for %q was purged during activation", database)
}

// open connects a new pool for database and registers it.
func (s *Switchboard) open(ctx context.Context, database string) error {
	s.mu.Lock()
	if _, ok := s.pools[database]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	pool, err := s.connector.Connect(ctx, database)
	if err != nil {
		poolEvents.WithLabelValues("failed").Inc()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		pool.Close()
		return ErrClosed
	}
	s.gens[database]++
	e := &entry{
		database:   database,
		pool:       pool,
		generation: s.gens[database],
		lastUsed:   s.now(),
	}
	s.pools[database] = e
	victim := s.victimLocked(e)
	if victim != nil {
		s.retireLocked(victim)
	}
	s.mu.Unlock()

	poolEvents.WithLabelValues("opened").Inc()
	poolsOpen.Inc()
	s.log.DebugContext(ctx, "tenant pool opened", "database", database, "generation", e.generation)

	if victim != nil {
		poolEvents.WithLabelValues("evicted").Inc()
		s.closePool(victim)
	}
	return nil
}

// victimLocked picks the least recently used idle pool other than fresh once
// the cap is exceeded.
func (s *Switchboard) victimLocked(fresh *entry) *entry {
	if s.cfg.MaxPools <= 0 || len(s.pools) <= s.cfg.MaxPools {
		return nil
	}
	var victim *entry
	for _, e := range s.pools {
		if e == fresh || e.refs > 0 {
			continue
		}
		if victim == nil || e.lastUsed.Before(victim.lastUsed) {
			victim = e
		}
	}
	if victim == nil {
		s.log.Warn("tenant pool cap exceeded with every pool in use", "open", len(s.pools), "max", s.cfg.MaxPools)
	}
	return victim
}

func (s *Switchboard) release(e *entry) {
	s.mu.Lock()
	e.refs--
	e.lastUsed = s.now()
	closeNow := e.retired.Load() && e.refs == 0
	s.mu.Unlock()

	if closeNow {
		s.closePool(e)
	}
}

// retireLocked removes e from the live set. The generation counter moves on
// so the next pool for the same database is distinguishable.
func (s *Switchboard) retireLocked(e *entry) {
	if e.retired.Swap(true) {
		return
	}
	if cur, ok := s.pools[e.database]; ok && cur == e {
		delete(s.pools, e.database)
	}
}

func (s *Switchboard) closePool(e *entry) {
	if e.closed.Swap(true) {
		return
	}
	e.pool.Close()
	poolsOpen.Dec()
	poolEvents.WithLabelValues("closed").Inc()
	s.log.Debug("tenant pool closed", "database", e.database, "generation", e.generation)
}

func (s *Switchboard) reapLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.reapIdle()
		}
	}
}

// reapIdle closes pools nobody used for longer than IdleTimeout.
func (s *Switchboard) reapIdle() int {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	var idle []*entry
	for _, e := range s.pools {
		if e.refs == 0 && e.lastUsed.Before(cutoff) {
			s.retireLocked(e)
			idle = append(idle, e)
		}
	}
	s.mu.Unlock()

	for _, e := range idle {
		poolEvents.WithLabelValues("reaped").Inc()
		s.closePool(e)
	}
	return len(idle)
}
