package tracing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crmkit/pkg/tracing"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := tracing.Setup(context.Background(), tracing.Config{}, "crmkit", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupRejectsSampleRatio(t *testing.T) {
	_, err := tracing.Setup(context.Background(), tracing.Config{Endpoint: "http://127.0.0.1:4318", SampleRatio: 2}, "crmkit", "test")
	assert.ErrorIs(t, err, tracing.ErrInvalidSampleRatio)
}

func TestSetupEnabled(t *testing.T) {
	shutdown, err := tracing.Setup(context.Background(), tracing.Config{Endpoint: "http://127.0.0.1:4318", SampleRatio: 0.5}, "crmkit", "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Nothing was recorded, so shutdown has nothing to send.
	assert.NoError(t, shutdown(ctx))
}
