package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	policySvc "vulcan_backend/internals/features/policies/policies/service"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/dbtime"
)

func newLimiter(clock *dbtime.FakeClock) (*Limiter, *MemoryCounterStore) {
	policies := policySvc.NewStaticStore(map[string]int{
		"proof_submission_rate_limit_email": 5,
		"proof_submission_rate_limit_web":   2,
		"proof_submission_rate_period":      24,
	})
	counters := NewMemoryCounterStore(clock.Clock())
	return NewLimiter(policies, counters), counters
}

func TestLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := dbtime.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	limiter, counters := newLimiter(clock)
	key := CounterKey("proof_submission", "email", "jane@example.org")

	for i := 1; i <= 5; i++ {
		n, err := limiter.Check(ctx, "proof_submission", "jane@example.org", "email")
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	assert.Equal(t, int64(5), counters.Count(key))

	_, err := limiter.Check(ctx, "proof_submission", "jane@example.org", "email")
	var rle *apperr.RateLimitExceeded
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 5, rle.Max)
	assert.Equal(t, 24*time.Hour, rle.Period)
	assert.Contains(t, err.Error(), "proof_submission")
	assert.Contains(t, err.Error(), "email")
	assert.Equal(t, int64(5), counters.Count(key))

	clock.Advance(25 * time.Hour)
	n, err := limiter.Check(ctx, "proof_submission", "jane@example.org", "email")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), counters.Count(key))
}

func TestLimiter_IndependentChannels(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newLimiter(dbtime.NewFakeClock(time.Now()))

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "proof_submission", "u1", "web")
		require.NoError(t, err)
	}
	_, err := limiter.Check(ctx, "proof_submission", "u1", "web")
	assert.Error(t, err)

	_, err = limiter.Check(ctx, "proof_submission", "u1", "email")
	assert.NoError(t, err)
	_, err = limiter.Check(ctx, "proof_submission", "u2", "web")
	assert.NoError(t, err)
}

func TestLimiter_UnknownAction(t *testing.T) {
	limiter, _ := newLimiter(dbtime.NewFakeClock(time.Now()))
	_, err := limiter.Check(context.Background(), "voucher_redemption", "u1", "web")

	var ua *apperr.UnknownAction
	require.ErrorAs(t, err, &ua)
	assert.Equal(t, "voucher_redemption", ua.Action)
}

type failingCounters struct{}

func (failingCounters) Increment(context.Context, string, int, time.Duration) (int64, bool, error) {
	return 0, false, errors.New("redis: connection refused")
}

func TestLimiter_FailsOpenOnCounterOutage(t *testing.T) {
	limiter := NewLimiter(policySvc.NewStaticStore(map[string]int{"proof_submission_rate_limit_web": 1}), failingCounters{})
	_, err := limiter.Check(context.Background(), "proof_submission", "u1", "web")
	assert.NoError(t, err)
}
