package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Claims is the claim set contract of golang-jwt.
type Claims = gojwt.Claims

// RegisteredClaims are the RFC 7519 registered claims.
type RegisteredClaims = gojwt.RegisteredClaims

// NewNumericDate converts t for use in RegisteredClaims.
func NewNumericDate(t time.Time) *gojwt.NumericDate {
	return gojwt.NewNumericDate(t)
}

// Service signs and verifies HS256 tokens.
type Service struct {
	key     []byte
	issuer  string
	leeway  time.Duration
	timeNow func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer requires the iss claim to equal issuer when parsing.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// WithLeeway tolerates clock skew on exp/nbf checks.
func WithLeeway(d time.Duration) Option {
	return func(s *Service) { s.leeway = d }
}

// WithClock overrides the validation clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.timeNow = now
		}
	}
}

// New creates a Service with the HMAC key.
func New(key []byte, opts ...Option) (*Service, error) {
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	s := &Service{key: key, timeNow: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issuer returns the configured issuer.
func (s *Service) Issuer() string { return s.issuer }

// Generate signs claims.
func (s *Service) Generate(claims Claims) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return token, nil
}

// Parse verifies token and decodes it into claims.
func (s *Service) Parse(token string, claims Claims) error {
	if token == "" {
		return ErrMissingToken
	}
	if claims == nil {
		return ErrMissingClaims
	}

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.timeNow),
	}
	if s.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.issuer))
	}
	if s.leeway > 0 {
		opts = append(opts, gojwt.WithLeeway(s.leeway))
	}

	_, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gojwt.ErrTokenExpired):
		return errors.Join(ErrExpiredToken, err)
	case errors.Is(err, gojwt.ErrTokenSignatureInvalid):
		return errors.Join(ErrInvalidSignature, err)
	default:
		return errors.Join(ErrInvalidToken, err)
	}
}
