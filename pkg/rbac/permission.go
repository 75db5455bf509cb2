package rbac

import "strings"

const (
	// Wildcard grants every permission when used alone, or every permission
	// of a namespace when used as the last segment ("contacts.*").
	Wildcard  = "*"
	separator = "."
)

// Permission atoms used by the core. Business modules add their own
// following the same "resource.action" shape.
const (
	SettingsRead   = "settings.read"
	SettingsUpdate = "settings.update"
	RolesRead      = "roles.read"
	RolesAssign    = "roles.assign"
	UsersRead      = "users.read"
	UsersManage    = "users.manage"
)

// Matches reports whether granted covers the requested permission.
//
//	Matches("*", "contacts.read")          // true
//	Matches("contacts.*", "contacts.read") // true
//	Matches("contacts.*", "contacts")      // false
func Matches(granted, requested string) bool {
	if granted == requested || granted == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(granted, separator+Wildcard); ok {
		return strings.HasPrefix(requested, prefix+separator)
	}
	return false
}

func anyMatches(granted []string, requested string) bool {
	for _, g := range granted {
		if Matches(g, requested) {
			return true
		}
	}
	return false
}

// normalize removes duplicates and permissions already covered by a wildcard
// in the same set.
func normalize(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	wild := make([]string, 0)
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		if p == Wildcard || strings.HasSuffix(p, separator+Wildcard) {
			wild = append(wild, p)
		}
	}

	out := make([]string, 0, len(seen))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if _, ok := seen[p]; !ok {
			continue
		}
		delete(seen, p)
		covered := false
		for _, w := range wild {
			if w != p && Matches(w, p) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}
