package pg

import "time"

// Config describes the landlord connection and the defaults used for every
// tenant database pool opened from the same server.
type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL,required"`                   // landlord database DSN; tenant pools reuse it with another database name
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`      // landlord pool size
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"`       // landlord pool warm connections
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // period between pool health checks
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // idle connection lifetime
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // connection lifetime

	TenantMaxConns int32 `env:"PG_TENANT_MAX_CONNS" envDefault:"4"` // per tenant database pool size

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`
}
