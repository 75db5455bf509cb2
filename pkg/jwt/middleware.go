package jwt

import (
	"net/http"
	"strings"
)

// TokenExtractorFunc pulls a raw token from the request.
type TokenExtractorFunc func(r *http.Request) (string, error)

// MiddlewareConfig configures MiddlewareWithConfig.
type MiddlewareConfig struct {
	Service *Service
	// NewClaims returns an empty claim set to decode into. Defaults to RegisteredClaims.
	NewClaims func() Claims
	// Extractor defaults to BearerTokenExtractor.
	Extractor TokenExtractorFunc
	// Skip bypasses verification for matching requests.
	Skip func(r *http.Request) bool
	// OnError writes the rejection. Defaults to a plain 401.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware verifies bearer tokens into RegisteredClaims.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return MiddlewareWithConfig(MiddlewareConfig{Service: svc})
}

// MiddlewareWithConfig verifies the request token and stores it and its
// claims in the request context.
func MiddlewareWithConfig(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Extractor == nil {
		cfg.Extractor = BearerTokenExtractor
	}
	if cfg.NewClaims == nil {
		cfg.NewClaims = func() Claims { return &RegisteredClaims{} }
	}
	if cfg.OnError == nil {
		cfg.OnError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := cfg.Extractor(r)
			if err != nil {
				cfg.OnError(w, r, err)
				return
			}
			claims := cfg.NewClaims()
			if err := cfg.Service.Parse(token, claims); err != nil {
				cfg.OnError(w, r, err)
				return
			}

			ctx := SetClaims(SetToken(r.Context(), token), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerTokenExtractor reads "Authorization: Bearer <token>".
func BearerTokenExtractor(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// CookieTokenExtractor reads the token from a cookie.
func CookieTokenExtractor(name string) TokenExtractorFunc {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", ErrMissingToken
		}
		return c.Value, nil
	}
}

// HeaderTokenExtractor reads the token from a custom header.
func HeaderTokenExtractor(name string) TokenExtractorFunc {
	return func(r *http.Request) (string, error) {
		if token := r.Header.Get(name); token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}
}
