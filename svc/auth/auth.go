package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crmkit/pkg/jwt"
	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/members"
)

// UserFinder looks members up in the current tenant database.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*members.User, error)
}

// Claims is the access token claim set.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tid"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service logs members in and issues access tokens.
type Service struct {
	users  UserFinder
	tokens *jwt.Service
	ttl    time.Duration
	cost   int
	now    func() time.Time
	log    *slog.Logger

	// Compared against on unknown emails so both failure paths cost one bcrypt.
	dummyHash func() string
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service. users may be nil for services that only issue and
// verify tokens.
func New(cfg Config, users UserFinder, opts ...Option) (*Service, error) {
	s := &Service{
		users: users,
		ttl:   cfg.TokenTTL,
		cost:  cfg.BcryptCost,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}

	tokens, err := jwt.New([]byte(cfg.JWTSecret), jwt.WithIssuer(cfg.Issuer), jwt.WithClock(s.now))
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	s.tokens = tokens
	s.dummyHash = sync.OnceValue(func() string {
		h, _ := HashPassword("crmkit-dummy-password", s.cost)
		return h
	})
	return s, nil
}

// HashPassword hashes password with the configured cost.
func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.cost)
}

// Issue mints an access token for user, bound to tenantID.
func (s *Service) Issue(tenantID uuid.UUID, user *members.User) (Token, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.tokens.Issuer(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID: tenantID.String(),
		Email:    user.Email,
		Roles:    user.Roles,
	}
	raw, err := s.tokens.Generate(claims)
	if err != nil {
		return Token{}, fmt.Errorf("auth: issue token: %w", err)
	}
	return Token{AccessToken: raw, TokenType: "Bearer", ExpiresAt: exp.UTC().Truncate(time.Second)}, nil
}

// Verify parses a raw access token.
func (s *Service) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	if err := s.tokens.Parse(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Login checks the credentials against the tenant bound to ctx and issues a
// token for that tenant.
func (s *Service) Login(ctx context.Context, email, password string) (Token, *members.User, error) {
	t, ok := tenant.FromContext(ctx)
	if !ok {
		return Token{}, nil, tenant.ErrNoTenantInContext
	}
	if s.users == nil {
		return Token{}, nil, errors.New("auth: no user store configured")
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, members.ErrUserNotFound):
		CheckPassword(s.dummyHash(), password)
		return Token{}, nil, ErrInvalidCredentials
	case err != nil:
		return Token{}, nil, fmt.Errorf("auth: login: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		s.log.InfoContext(ctx, "login rejected", logger.UserID(user.ID.String()))
		return Token{}, nil, ErrInvalidCredentials
	}

	token, err := s.Issue(t.ID, user)
	if err != nil {
		return Token{}, nil, err
	}
	return token, user, nil
}
