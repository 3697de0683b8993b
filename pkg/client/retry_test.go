package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	t.Run("default policy doubles from one second", func(t *testing.T) {
		r := NewExponentialBackoff()
		want := []time.Duration{
			1000 * time.Millisecond,
			2000 * time.Millisecond,
			4000 * time.Millisecond,
			8000 * time.Millisecond,
		}
		for attempt, expected := range want {
			delay, ok := r.NextDelay(attempt, nil)
			require.True(t, ok)
			assert.Equal(t, expected, delay, "attempt %d", attempt)
		}
	})

	t.Run("caps at max delay", func(t *testing.T) {
		r := NewExponentialBackoff()
		delay, ok := r.NextDelay(10, nil)
		require.True(t, ok)
		assert.Equal(t, 30*time.Second, delay)
	})

	t.Run("zero max retries means unlimited", func(t *testing.T) {
		r := NewExponentialBackoff()
		_, ok := r.NextDelay(1_000_000, nil)
		assert.True(t, ok)
	})

	t.Run("stops after max retries", func(t *testing.T) {
		r := &ExponentialBackoff{
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			MaxRetries:   3,
		}
		_, ok := r.NextDelay(2, nil)
		assert.True(t, ok)
		_, ok = r.NextDelay(3, nil)
		assert.False(t, ok)
	})

	t.Run("jitter stays within the factor", func(t *testing.T) {
		r := &ExponentialBackoff{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
			JitterFactor: 0.25,
		}
		for i := 0; i < 50; i++ {
			delay, ok := r.NextDelay(0, nil)
			require.True(t, ok)
			assert.GreaterOrEqual(t, delay, 750*time.Millisecond)
			assert.LessOrEqual(t, delay, 1250*time.Millisecond)
		}
	})
}

func TestFixedDelay(t *testing.T) {
	r := &FixedDelay{Delay: 5 * time.Millisecond, MaxRetries: 2}

	delay, ok := r.NextDelay(0, nil)
	require.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, delay)

	delay, ok = r.NextDelay(1, nil)
	require.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, delay)

	_, ok = r.NextDelay(2, nil)
	assert.False(t, ok)
}
