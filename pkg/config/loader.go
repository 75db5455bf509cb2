package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type cached struct {
	once  sync.Once
	value any
	err   error
}

var (
	cache         sync.Map // reflect.Type -> *cached
	defaultDotenv sync.Once
)

// LoadEnv reads the given env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Join(ErrEnvFile, fmt.Errorf("%s: %w", p, err))
		}
	}
	return nil
}

// Parse reads T from the environment without caching.
func Parse[T any]() (T, error) {
	var v T
	if err := env.Parse(&v); err != nil {
		return v, errors.Join(ErrParsingConfig, err)
	}
	return v, nil
}

// Load fills v from the environment. Each type is parsed once per process;
// later calls copy the cached value. A failed parse is cached as well.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	defaultDotenv.Do(func() { _ = LoadEnv() })

	key := reflect.TypeFor[T]()
	entry, _ := cache.LoadOrStore(key, &cached{})
	c := entry.(*cached)
	c.once.Do(func() {
		c.value, c.err = Parse[T]()
	})
	if c.err != nil {
		return c.err
	}
	*v = c.value.(T)
	return nil
}

// MustLoad is Load that panics on error. Meant for process startup.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}
