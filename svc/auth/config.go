package auth

import "time"

// Config holds authentication settings.
type Config struct {
	JWTSecret  string        `env:"AUTH_JWT_SECRET,required"`
	TokenTTL   time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`
	Issuer     string        `env:"AUTH_ISSUER" envDefault:"crmkit"`
	BcryptCost int           `env:"AUTH_BCRYPT_COST" envDefault:"10"`
}
