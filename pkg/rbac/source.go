package rbac

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

// OwnerRole is assigned to the first user of every new tenant.
const OwnerRole = "owner"

//go:embed roles.yaml
var defaultPolicy []byte

type document struct {
	Roles map[string]Role `yaml:"roles"`
}

// ParsePolicy decodes a YAML policy document:
//
//	roles:
//	  viewer:
//	    permissions: [contacts.read]
//	  editor:
//	    inherits: [viewer]
//	    permissions: [contacts.write]
func ParsePolicy(data []byte) (*Policy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrInvalidPolicy, err)
	}
	if len(doc.Roles) == 0 {
		return nil, errors.Join(ErrInvalidPolicy, fmt.Errorf("policy defines no roles"))
	}
	return NewPolicy(doc.Roles)
}

// ReadPolicy is ParsePolicy for a reader.
func ReadPolicy(r io.Reader) (*Policy, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Join(ErrInvalidPolicy, err)
	}
	return ParsePolicy(data)
}

var (
	defaultOnce sync.Once
	defaultPol  *Policy
)

// Default returns the baseline policy seeded into every tenant database.
// It panics if the embedded document is broken, which tests catch.
func Default() *Policy {
	defaultOnce.Do(func() {
		p, err := ParsePolicy(defaultPolicy)
		if err != nil {
			panic(fmt.Sprintf("rbac: embedded policy: %v", err))
		}
		defaultPol = p
	})
	return defaultPol
}
