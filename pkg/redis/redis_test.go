package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crmkit/pkg/redis"
)

func TestConfig_Enabled(t *testing.T) {
	t.Parallel()
	assert.False(t, redis.Config{}.Enabled())
	assert.True(t, redis.Config{ConnectionURL: "redis://localhost:6379/0"}.Enabled())
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  redis.Config
		want error
	}{
		{name: "empty url", cfg: redis.Config{}, want: redis.ErrEmptyConnectionURL},
		{name: "bad scheme", cfg: redis.Config{ConnectionURL: "http://localhost"}, want: redis.ErrFailedToParseRedisConnString},
		{
			name: "unreachable",
			cfg: redis.Config{
				ConnectionURL:  "redis://127.0.0.1:1/0",
				RetryAttempts:  2,
				RetryInterval:  10 * time.Millisecond,
				ConnectTimeout: time.Second,
			},
			want: redis.ErrRedisNotReady,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client, err := redis.Connect(context.Background(), tt.cfg)
			assert.Nil(t, client)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConnect_Integration(t *testing.T) {
	url := os.Getenv("CRMKIT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CRMKIT_TEST_REDIS_URL not set")
	}
	client, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: url, RetryAttempts: 1})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, redis.Healthcheck(client)(context.Background()))
}
