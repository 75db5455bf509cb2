package tenant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dmitrymomot/crmkit/pkg/slug"
)

// Resolution strategies.
const (
	StrategyPath = "path"
	StrategyHost = "host"
)

// ResolverConfig selects and configures the resolution strategy.
type ResolverConfig struct {
	Strategy   string   `env:"TENANT_RESOLUTION" envDefault:"path"`
	RootDomain string   `env:"TENANT_ROOT_DOMAIN" envDefault:"localhost"`
	Reserved   []string `env:"TENANT_RESERVED_PREFIXES" envSeparator:","`
}

// Resolution is the outcome of resolving a request.
// Landlord is true for routes that belong to the platform itself; Tenant is
// nil in that case.
type Resolution struct {
	Tenant     *Tenant
	Identifier string
	Landlord   bool
}

// Resolver maps a request host and path to a tenant. It performs lookups
// only and never mutates state.
type Resolver interface {
	Resolve(ctx context.Context, host, path string) (Resolution, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, host, path string) (Resolution, error)

func (f ResolverFunc) Resolve(ctx context.Context, host, path string) (Resolution, error) {
	return f(ctx, host, path)
}

// NewResolver builds the resolver selected by cfg.Strategy.
func NewResolver(cfg ResolverConfig, lookup Lookup) (Resolver, error) {
	reserved := slug.DefaultReserved
	if len(cfg.Reserved) > 0 {
		reserved = normalizeList(cfg.Reserved)
	}

	switch strings.ToLower(cfg.Strategy) {
	case "", StrategyPath:
		return NewPathResolver(lookup, reserved), nil
	case StrategyHost:
		if cfg.RootDomain == "" {
			return nil, errors.New("tenant: host resolution requires a root domain")
		}
		return NewHostResolver(lookup, cfg.RootDomain), nil
	default:
		return nil, fmt.Errorf("tenant: unknown resolution strategy %q", cfg.Strategy)
	}
}

func normalizeList(in []string) slug.Reserved {
	out := make(slug.Reserved, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PathResolver treats the first path segment as the tenant slug:
// "/ahmed-tech/api/leads" resolves "ahmed-tech". Reserved first segments and
// the bare root are landlord routes.
type PathResolver struct {
	lookup   Lookup
	reserved slug.Reserved
}

func NewPathResolver(lookup Lookup, reserved slug.Reserved) *PathResolver {
	return &PathResolver{lookup: lookup, reserved: reserved}
}

func (r *PathResolver) Resolve(ctx context.Context, _, path string) (Resolution, error) {
	segment := FirstSegment(path)
	if segment == "" || r.reserved.Contains(strings.ToLower(segment)) {
		return Resolution{Landlord: true}, nil
	}
	if err := slug.Validate(segment); err != nil {
		return Resolution{}, resolutionError(Malformed, segment, err)
	}

	t, err := r.lookup.FindBySlug(ctx, segment)
	return finish(segment, t, err)
}

// FirstSegment returns the first non-empty segment of a URL path.
func FirstSegment(path string) string {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}

// HostResolver resolves by request host: the root domain (and its www alias)
// is the landlord, "{sub}.{root}" is looked up by subdomain, and any other
// host is treated as a custom domain.
type HostResolver struct {
	lookup Lookup
	root   string
}

func NewHostResolver(lookup Lookup, rootDomain string) *HostResolver {
	return &HostResolver{lookup: lookup, root: normalizeHost(rootDomain)}
}

func (r *HostResolver) Resolve(ctx context.Context, host, _ string) (Resolution, error) {
	host = normalizeHost(host)
	if host == "" {
		return Resolution{}, resolutionError(Malformed, host, errors.New("missing host"))
	}
	if host == r.root || host == "www."+r.root {
		return Resolution{Landlord: true}, nil
	}

	if sub, ok := strings.CutSuffix(host, "."+r.root); ok {
		if strings.Contains(sub, ".") {
			return Resolution{}, resolutionError(Malformed, sub, errors.New("nested subdomain"))
		}
		if err := slug.Validate(sub); err != nil {
			return Resolution{}, resolutionError(Malformed, sub, err)
		}
		t, err := r.lookup.FindBySubdomain(ctx, sub)
		return finish(sub, t, err)
	}

	t, err := r.lookup.FindByDomain(ctx, host)
	return finish(host, t, err)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func finish(identifier string, t *Tenant, err error) (Resolution, error) {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return Resolution{}, resolutionError(NotFound, identifier, nil)
	case err != nil:
		// Registry outage: not a resolution outcome, surfaced as-is.
		return Resolution{}, fmt.Errorf("resolve tenant %q: %w", identifier, err)
	case !t.IsActive():
		return Resolution{}, resolutionError(Inactive, identifier, fmt.Errorf("status %s", t.Status))
	}
	return Resolution{Tenant: t, Identifier: identifier}, nil
}
