package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmcatalog/pges-sync/internal/retry"
)

var errBoom = errors.New("boom")

func TestNextDelayGeometricGrowth(t *testing.T) {
	policy := retry.Policy{
		StartSleep:  100 * time.Millisecond,
		Factor:      2,
		BorderSleep: 10 * time.Second,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{6, 6400 * time.Millisecond},
		{7, 10 * time.Second}, // 12.8s clamped to border
		{20, 10 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, policy.NextDelay(tc.attempt))
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	policy := retry.Policy{StartSleep: time.Millisecond, Factor: 2, BorderSleep: 5 * time.Millisecond}

	attempts := 0
	err := retry.Do(context.Background(), policy, func() error {
		attempts++
		if attempts < 3 {
			return errBoom
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoPropagatesPermanentWithoutRetrying(t *testing.T) {
	policy := retry.Policy{StartSleep: time.Millisecond, Factor: 2, BorderSleep: 5 * time.Millisecond}

	attempts := 0
	err := retry.Do(context.Background(), policy, func() error {
		attempts++

		return retry.Permanent(errBoom)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, attempts)
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	policy := retry.Policy{StartSleep: 50 * time.Millisecond, Factor: 2, BorderSleep: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := retry.Do(ctx, policy, func() error {
		attempts++

		return errBoom
	})

	require.Error(t, err)
	assert.GreaterOrEqual(t, attempts, 1)
}
