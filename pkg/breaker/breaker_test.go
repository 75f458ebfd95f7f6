package breaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(t *testing.T) *Breaker {
	t.Helper()
	cfg := DefaultConfig(t.Name())
	cfg.MinRequests = 2
	cfg.Timeout = time.Hour
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRun_PassesThroughResult(t *testing.T) {
	b := testBreaker(t)
	errBoom := errors.New("boom")

	require.NoError(t, b.Run(context.Background(), func(context.Context) error { return nil }))
	assert.ErrorIs(t, b.Run(context.Background(), func(context.Context) error { return errBoom }), errBoom)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestRun_TripsAfterFailures(t *testing.T) {
	b := testBreaker(t)
	fail := func(context.Context) error { return errors.New("broker down") }

	_ = b.Run(context.Background(), fail)
	_ = b.Run(context.Background(), fail)
	require.Equal(t, gobreaker.StateOpen, b.State())

	called := false
	err := b.Run(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestRun_CanceledDoesNotTrip(t *testing.T) {
	b := testBreaker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		err := b.Run(ctx, func(ctx context.Context) error { return ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
