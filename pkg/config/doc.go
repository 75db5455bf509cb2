// Package config loads typed configuration from the environment.
//
// Structs declare their variables with caarlos0/env tags. The first Load also
// reads a .env file from the working directory through godotenv when one is
// present; values already set in the environment win.
//
//	var cfg app.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// Load caches the parsed value per type, so packages can ask for their own
// section repeatedly without re-parsing. Parse skips the cache.
package config
