package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/errkind"
)

func testConfig() common.CircuitBreakerConfig {
	return common.CircuitBreakerConfig{
		MaxRequestsHalfOpen: 1,
		OpenInterval:        time.Minute,
		BaseTimeout:         20 * time.Millisecond,
		MaxTimeout:          time.Second,
		FailureThreshold:    0.5,
		MinRequests:         2,
	}
}

func TestBreaker_ClosedByDefault(t *testing.T) {
	b := New("wayback", testConfig(), arbor.NewLogger())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TripsOpenAfterFailureThreshold(t *testing.T) {
	b := New("wayback", testConfig(), arbor.NewLogger())
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, boom
		})
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenRejectsWithoutCallingFn(t *testing.T) {
	b := New("wayback", testConfig(), arbor.NewLogger())
	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, _ = b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, boom
		})
	}
	require.Equal(t, StateOpen, b.State())

	called := false
	_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, errkind.Is(err, errkind.CircuitOpen))
}

func TestBreaker_HalfOpenRecoversToClosedOnSuccess(t *testing.T) {
	b := New("wayback", testConfig(), arbor.NewLogger())
	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, _ = b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, boom
		})
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(testConfig().BaseTimeout + 10*time.Millisecond)

	_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_NextTimeoutDoublesPerConsecutiveTripUpToMax(t *testing.T) {
	cfg := testConfig()
	b := New("wayback", cfg, arbor.NewLogger())

	assert.Equal(t, cfg.BaseTimeout, b.NextTimeout())

	b.openCount = 1
	assert.Equal(t, cfg.BaseTimeout*2, b.NextTimeout())

	b.openCount = 10
	assert.Equal(t, cfg.MaxTimeout, b.NextTimeout())
}

func TestBreaker_ResetClearsEscalation(t *testing.T) {
	b := New("wayback", testConfig(), arbor.NewLogger())
	b.openCount = 5
	b.Reset()
	assert.Equal(t, 0, b.openCount)
}
