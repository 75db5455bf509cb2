// Package rbac is the authorization policy table: role → set of permission
// atoms, evaluated by the pure HasPermission check.
//
// Permissions are "resource.action" strings. A role may grant "resource.*"
// for a whole resource or "*" for everything, and may inherit other roles.
// Inheritance is flattened once in NewPolicy; checks are map lookups plus a
// short scan.
//
//	p := rbac.Default()
//	p.HasPermission("sales", "leads.read")       // true
//	p.HasPermission("sales", "settings.update")  // false
//
// Role assignment itself is stored by the caller as a plain user → role
// relation; this package never touches storage.
package rbac
