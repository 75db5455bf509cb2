package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
)

// MaxInheritanceDepth bounds role inheritance chains.
const MaxInheritanceDepth = 10

// Role is a set of permissions with optional inheritance.
type Role struct {
	Description string   `yaml:"description" json:"description,omitempty"`
	Permissions []string `yaml:"permissions" json:"permissions"`
	Inherits    []string `yaml:"inherits" json:"inherits,omitempty"`
}

// Policy is an immutable role → permission table with inheritance already
// flattened. It is safe for concurrent use.
type Policy struct {
	roles     map[string]Role
	effective map[string][]string
	order     []string
}

// NewPolicy validates roles and precomputes effective permissions.
func NewPolicy(roles map[string]Role) (*Policy, error) {
	if err := validateInheritance(roles); err != nil {
		return nil, err
	}

	p := &Policy{
		roles:     make(map[string]Role, len(roles)),
		effective: make(map[string][]string, len(roles)),
	}
	for name, r := range roles {
		p.roles[name] = Role{
			Description: r.Description,
			Permissions: slices.Clone(r.Permissions),
			Inherits:    slices.Clone(r.Inherits),
		}
	}
	for name := range p.roles {
		p.effective[name] = normalize(collect(name, p.roles, map[string]bool{}))
	}
	p.order = sortByDepth(p.roles)
	return p, nil
}

// HasPermission is the pure policy check: does role grant permission.
// Unknown roles grant nothing.
func (p *Policy) HasPermission(role, permission string) bool {
	return anyMatches(p.effective[role], permission)
}

// Can is HasPermission returning a typed error.
func (p *Policy) Can(role, permission string) error {
	perms, ok := p.effective[role]
	if !ok {
		return ErrInvalidRole
	}
	if !anyMatches(perms, permission) {
		return ErrInsufficientPermissions
	}
	return nil
}

// CanAll succeeds when role grants every permission.
func (p *Policy) CanAll(role string, permissions ...string) error {
	for _, perm := range permissions {
		if err := p.Can(role, perm); err != nil {
			return err
		}
	}
	return nil
}

// CanAny succeeds when role grants at least one permission. No permissions means allowed.
func (p *Policy) CanAny(role string, permissions ...string) error {
	if len(permissions) == 0 {
		return nil
	}
	if _, ok := p.effective[role]; !ok {
		return ErrInvalidRole
	}
	for _, perm := range permissions {
		if p.HasPermission(role, perm) {
			return nil
		}
	}
	return ErrInsufficientPermissions
}

// CanFromContext checks the role stored with WithRole.
func (p *Policy) CanFromContext(ctx context.Context, permission string) error {
	role, ok := RoleFromContext(ctx)
	if !ok {
		return errors.Join(ErrRoleNotInContext, ErrInsufficientPermissions)
	}
	return p.Can(role, permission)
}

// VerifyRole returns ErrInvalidRole for unknown roles.
func (p *Policy) VerifyRole(role string) error {
	if _, ok := p.roles[role]; !ok {
		return ErrInvalidRole
	}
	return nil
}

// Roles returns role names with base roles first.
func (p *Policy) Roles() []string {
	return slices.Clone(p.order)
}

// Role returns the role definition as declared.
func (p *Policy) Role(name string) (Role, bool) {
	r, ok := p.roles[name]
	return r, ok
}

// Permissions returns the effective (inherited and normalized) permissions of a role.
func (p *Policy) Permissions(role string) []string {
	return slices.Clone(p.effective[role])
}

func collect(name string, roles map[string]Role, visited map[string]bool) []string {
	if visited[name] {
		return nil
	}
	visited[name] = true

	r, ok := roles[name]
	if !ok {
		return nil
	}
	out := slices.Clone(r.Permissions)
	for _, parent := range r.Inherits {
		out = append(out, collect(parent, roles, visited)...)
	}
	return out
}

func validateInheritance(roles map[string]Role) error {
	for name, r := range roles {
		for _, parent := range r.Inherits {
			if _, ok := roles[parent]; !ok {
				return errors.Join(ErrInvalidRole, fmt.Errorf("role %q inherits unknown role %q", name, parent))
			}
		}
	}
	for name := range roles {
		if err := walk(name, roles, []string{name}); err != nil {
			return err
		}
	}
	return nil
}

func walk(name string, roles map[string]Role, path []string) error {
	if len(path) > MaxInheritanceDepth+1 {
		return errors.Join(ErrCircularInheritance,
			fmt.Errorf("inheritance depth exceeds maximum allowed depth of %d", MaxInheritanceDepth))
	}
	for _, parent := range roles[name].Inherits {
		if slices.Contains(path, parent) {
			return errors.Join(ErrCircularInheritance,
				fmt.Errorf("circular inheritance detected: %s -> %s", name, parent))
		}
		if err := walk(parent, roles, append(slices.Clone(path), parent)); err != nil {
			return err
		}
	}
	return nil
}

func sortByDepth(roles map[string]Role) []string {
	depth := make(map[string]int, len(roles))
	var calc func(string) int
	calc = func(name string) int {
		if d, ok := depth[name]; ok {
			return d
		}
		d := 0
		for _, parent := range roles[name].Inherits {
			d = max(d, calc(parent)+1)
		}
		depth[name] = d
		return d
	}

	names := make([]string, 0, len(roles))
	for name := range roles {
		calc(name)
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if depth[names[i]] != depth[names[j]] {
			return depth[names[i]] < depth[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
