package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RetryConfig represents retry configuration
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	Backoff  float64
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 50,
		Delay:    10 * time.Millisecond,
		MaxDelay: 250 * time.Millisecond,
		Backoff:  1.5,
	}
}

// Retry retries a function until it succeeds or attempts are exhausted
func Retry(config RetryConfig, fn func() error) error {
	var lastErr error
	delay := config.Delay

	for attempt := 0; attempt < config.Attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.Backoff)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return fmt.Errorf("max attempts (%d) reached: %v", config.Attempts, lastErr)
}

// RequireRetry asserts that a function succeeds within retries
func RequireRetry(t *testing.T, config RetryConfig, fn func() error) {
	t.Helper()
	require.NoError(t, Retry(config, fn))
}

// Eventually asserts that a condition becomes true within the default retry
// budget. Used to wait out asynchronous pump goroutines.
func Eventually(t *testing.T, condition func() bool, msg string) {
	t.Helper()
	err := Retry(DefaultRetryConfig(), func() error {
		if condition() {
			return nil
		}
		return fmt.Errorf("condition not met")
	})
	require.NoError(t, err, msg)
}
