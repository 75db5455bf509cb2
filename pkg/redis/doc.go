// Package redis connects a go-redis client with retries and exposes a
// readiness check. Redis is optional in crmkit: an empty REDIS_URL means the
// tenant lookup cache stays in process.
package redis
