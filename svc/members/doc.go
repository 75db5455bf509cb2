// Package members stores the users of one tenant and their role assignments.
// Every query runs on the tenant database of the request binding, never on
// the landlord connection.
package members
