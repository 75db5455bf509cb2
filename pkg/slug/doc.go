// Package slug turns company names into URL-safe tenant slugs and validates
// slugs supplied by users.
//
// Make does the raw conversion: known accented Latin letters are folded to
// ASCII, anything else that is not a letter or digit becomes a separator.
//
//	slug.Make("Ahmed Tech!")  // "ahmed-tech"
//	slug.Make("Café Müller")  // "cafe-muller"
//
// Validate enforces the tenant slug rules (3 to 63 characters, lowercase
// letters and digits, single hyphens between them) and returns one of the
// package sentinel errors describing the failure. Sanitize combines both,
// repairing short results with a random suffix; Generate is the fallback for
// input that contains nothing usable.
package slug
