package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteFallbackOnOpenBreaker(t *testing.T) {
	r := NewRegistry()
	r.Register("repository", Config{
		FailureRateThreshold: 1,
		SlidingWindowSize:    1,
		MinCalls:             1,
		WaitInOpen:           time.Minute,
		HalfOpenCalls:        1,
		CallTimeout:          time.Second,
		MaxRetries:           0,
	})

	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }
	_, _ = r.Execute(context.Background(), "repository", failing, nil)

	require.Equal(t, "open", r.State("repository"))

	calls := 0
	op := func(ctx context.Context) (any, error) { calls++; return "real", nil }
	got, err := r.Execute(context.Background(), "repository", op, func() (any, error) { return "fallback", nil })

	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
	assert.Equal(t, 0, calls, "no underlying operation should be invoked while OPEN")
}

func TestExecuteSucceedsWhenClosed(t *testing.T) {
	r := NewRegistry()
	r.Register("default", DefaultConfig())

	op := func(ctx context.Context) (any, error) { return 42, nil }
	got, err := r.Execute(context.Background(), "default", op, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, "closed", r.State("default"))
}
