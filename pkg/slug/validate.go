package slug

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

const (
	// MinLen is the shortest accepted tenant slug.
	MinLen = 3
	// MaxLen keeps slugs usable as a DNS label.
	MaxLen = 63
)

var pattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	ErrEmpty    = errors.New("slug is required")
	ErrTooShort = fmt.Errorf("slug must be at least %d characters", MinLen)
	ErrTooLong  = fmt.Errorf("slug must be at most %d characters", MaxLen)
	ErrFormat   = errors.New("slug may contain only lowercase letters, digits and single hyphens between them")
	ErrReserved = errors.New("slug is reserved")
)

// Validate reports why s is not an acceptable tenant slug.
// The returned error is one of the package sentinels and its message is
// suitable for showing to the user.
func Validate(s string) error {
	switch {
	case s == "":
		return ErrEmpty
	case len(s) < MinLen:
		return ErrTooShort
	case len(s) > MaxLen:
		return ErrTooLong
	case !pattern.MatchString(s):
		return ErrFormat
	}
	return nil
}

// IsValid is Validate without the reason.
func IsValid(s string) bool {
	return Validate(s) == nil
}

// Reserved is a set of words that can never be used as tenant slugs.
type Reserved []string

// DefaultReserved holds the landlord route prefixes plus names that would be
// confusing as a company address.
var DefaultReserved = Reserved{
	"api", "auth", "registration", "health", "metrics",
	"admin", "app", "assets", "static", "www", "mail", "landlord",
	"login", "logout", "signup", "support", "status", "docs",
}

// Contains reports whether s is reserved.
func (r Reserved) Contains(s string) bool {
	return slices.Contains(r, s)
}

// Check validates s and also rejects reserved words.
func (r Reserved) Check(s string) error {
	if err := Validate(s); err != nil {
		return err
	}
	if r.Contains(s) {
		return ErrReserved
	}
	return nil
}
