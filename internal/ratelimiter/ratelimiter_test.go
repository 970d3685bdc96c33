package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("ZeroRateDisablesLimiting", func(t *testing.T) {
		limiter := New(0, 0)
		assert.Nil(t, limiter)

		for i := 0; i < 1000; i++ {
			require.True(t, limiter.Allow(), "request %d should pass a nil limiter", i)
		}
	})

	t.Run("ZeroBurstDefaultsToRate", func(t *testing.T) {
		limiter := New(5, 0)
		require.NotNil(t, limiter)
		for i := 0; i < 5; i++ {
			require.True(t, limiter.Allow(), "request %d should be within the default burst", i)
		}
		assert.False(t, limiter.Allow())
	})
}

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(), "request %d should be within burst", i)
	}
	assert.False(t, limiter.Allow(), "request past burst should be rejected")
}

func TestWait(t *testing.T) {
	t.Run("AcquiresToken", func(t *testing.T) {
		limiter := New(100, 1)
		require.True(t, limiter.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, limiter.Wait(ctx))
	})

	t.Run("HonoursCancellation", func(t *testing.T) {
		limiter := New(1, 1)
		require.True(t, limiter.Allow())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, limiter.Wait(ctx))
	})

	t.Run("NilLimiterReportsContextState", func(t *testing.T) {
		var limiter *RateLimiter
		assert.NoError(t, limiter.Wait(context.Background()))
	})
}
