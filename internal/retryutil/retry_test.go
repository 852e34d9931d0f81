package retryutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterTransientError(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	cfg := DefaultConfig()
	cfg.BaseDelay = 5 * time.Millisecond

	err := Do(context.Background(), cfg, fn)
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_FailsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("persistent error")
	}

	cfg := Config{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2.0}

	err := Do(context.Background(), cfg, fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	fn := func() error {
		return errors.New("error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.BaseDelay = 200 * time.Millisecond

	err := Do(ctx, cfg, fn)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_CapsAtMaxDelay(t *testing.T) {
	var timestamps []time.Time
	attempts := 0
	fn := func() error {
		timestamps = append(timestamps, time.Now())
		attempts++
		if attempts < 5 {
			return errors.New("error")
		}
		return nil
	}

	cfg := Config{MaxAttempts: 10, BaseDelay: 20 * time.Millisecond, MaxDelay: 30 * time.Millisecond, Multiplier: 2.0}
	require.NoError(t, Do(context.Background(), cfg, fn))

	for i := 2; i < len(timestamps); i++ {
		delay := timestamps[i].Sub(timestamps[i-1])
		assert.LessOrEqual(t, delay.Milliseconds(), int64(60))
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	fn := func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("error")
		}
		return 42, nil
	}

	cfg := DefaultConfig()
	cfg.BaseDelay = 5 * time.Millisecond

	result, err := DoWithResult(context.Background(), cfg, fn)
	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestDoWithResult_ReturnsZeroOnFailure(t *testing.T) {
	fn := func() (string, error) {
		return "partial", errors.New("error")
	}

	cfg := Config{MaxAttempts: 1, BaseDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2.0}
	result, err := DoWithResult(context.Background(), cfg, fn)
	require.Error(t, err)
	assert.Equal(t, "", result)
}

func TestDo_ImmediateSuccessNoDelay(t *testing.T) {
	fn := func() error { return nil }
	cfg := Config{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}

	start := time.Now()
	err := Do(context.Background(), cfg, fn)
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestDefaultConfig_HasSensibleDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 8*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.True(t, cfg.Jitter)
}

func TestDo_ZeroMaxAttemptsTreatedAsOne(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("error")
	}

	cfg := Config{MaxAttempts: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2.0}
	err := Do(context.Background(), cfg, fn)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
