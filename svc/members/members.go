package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/crmkit/pkg/pg"
	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
)

var (
	ErrUserNotFound = errors.New("members: user not found")
	ErrEmailTaken   = errors.New("members: email already registered")
	ErrUnknownRole  = errors.New("members: unknown role")
)

// User is a tenant member.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Name         string
	Email        string
	Phone        string
	PasswordHash string
}

type txFunc func(ctx context.Context, fn func(ctx context.Context, tx switchboard.DB) error) error

// Store reads and writes members through a tenant DB handle.
type Store struct {
	conn func(ctx context.Context) (switchboard.DB, error)
	inTx txFunc
}

// NewStore returns a Store that uses the binding carried by each call's context.
func NewStore() *Store {
	return &Store{conn: switchboard.DBFromContext, inTx: bindingTx}
}

// NewStoreWith returns a Store pinned to db.
func NewStoreWith(db switchboard.DB) *Store {
	return &Store{
		conn: func(context.Context) (switchboard.DB, error) { return db, nil },
		inTx: pinnedTx(db),
	}
}

func bindingTx(ctx context.Context, fn func(ctx context.Context, tx switchboard.DB) error) error {
	b, ok := switchboard.FromContext(ctx)
	if !ok {
		return switchboard.ErrNoBinding
	}
	return b.InTx(ctx, fn)
}

// pinnedTx runs fn in a transaction when db can begin one, directly otherwise.
func pinnedTx(db switchboard.DB) txFunc {
	return func(ctx context.Context, fn func(ctx context.Context, tx switchboard.DB) error) error {
		b, ok := db.(interface {
			Begin(ctx context.Context) (pgx.Tx, error)
		})
		if !ok {
			return fn(ctx, db)
		}
		return pgx.BeginFunc(ctx, b, func(tx pgx.Tx) error { return fn(ctx, tx) })
	}
}

// SeedRoles writes every role of policy with its effective permissions.
// Re-running it converges the tables to the policy. All roles are written in
// one transaction.
func (s *Store) SeedRoles(ctx context.Context, policy *rbac.Policy) error {
	return s.inTx(ctx, func(ctx context.Context, db switchboard.DB) error {
		return seedRoles(ctx, db, policy)
	})
}

func seedRoles(ctx context.Context, db switchboard.DB, policy *rbac.Policy) error {
	for _, name := range policy.Roles() {
		role, _ := policy.Role(name)
		if _, err := db.Exec(ctx, `
			INSERT INTO roles (name, description) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`,
			name, role.Description); err != nil {
			return fmt.Errorf("members: seed role %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, `DELETE FROM role_permissions WHERE role = $1`, name); err != nil {
			return fmt.Errorf("members: seed role %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, `
			INSERT INTO role_permissions (role, permission) SELECT $1, unnest($2::text[])`,
			name, policy.Permissions(name)); err != nil {
			return fmt.Errorf("members: seed permissions of %s: %w", name, err)
		}
	}
	return nil
}

// CreateUser inserts a user without roles.
func (s *Store) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        strings.TrimSpace(in.Email),
		Phone:        in.Phone,
		PasswordHash: in.PasswordHash,
		Roles:        []string{},
	}
	err = db.QueryRow(ctx, `
		INSERT INTO users (id, name, email, phone, password_hash) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("members: create user: %w", err)
	}
	return u, nil
}

// AssignRole grants role to the user. Assigning a held role is a no-op.
func (s *Store) AssignRole(ctx context.Context, userID uuid.UUID, role string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, role)
	switch {
	case err == nil:
		return nil
	case pg.IsForeignKeyViolationError(err) && strings.Contains(pg.ConstraintName(err), "role_fkey"):
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	case pg.IsForeignKeyViolationError(err):
		return ErrUserNotFound
	}
	return fmt.Errorf("members: assign role: %w", err)
}

const userQuery = `
	SELECT u.id, u.name, u.email, u.phone, u.password_hash, u.created_at, u.updated_at,
		coalesce(array_agg(ur.role ORDER BY ur.role) FILTER (WHERE ur.role IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	WHERE %s
	GROUP BY u.id`

func (s *Store) findOne(ctx context.Context, where string, arg any) (*User, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var u User
	err = db.QueryRow(ctx, fmt.Sprintf(userQuery, where), arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &u.Roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("members: find user: %w", err)
	}
	return &u, nil
}

// FindByEmail looks a user up case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, `lower(u.email) = lower($1)`, strings.TrimSpace(email))
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.findOne(ctx, `u.id = $1`, id)
}

// Count returns the number of users.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("members: count users: %w", err)
	}
	return n, nil
}
