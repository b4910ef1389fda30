package providers

import (
	"context"
	"errors"
	"time"

	"github.com/inkharmony/inkharmony/pkg/logger"
)

// RetryConfig tunes the bounded exponential backoff around backend calls.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig matches the engine's configuration defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// backoff returns the delay before the given retry (1-based).
func (rc RetryConfig) backoff(retry int) time.Duration {
	d := float64(rc.BackoffBase)
	for i := 1; i < retry; i++ {
		d *= rc.BackoffMultiplier
	}
	if max := float64(rc.MaxBackoff); rc.MaxBackoff > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

// retry runs fn up to rc.MaxAttempts times. Only *GenerationError failures
// are retried; anything else aborts immediately. Between attempts it sleeps
// with exponential backoff, honoring ctx cancellation.
func retry(ctx context.Context, rc RetryConfig, backend string, fn func() error) error {
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := rc.backoff(attempt)
		logger.WarnCF("providers", "retrying after backend failure", map[string]interface{}{
			"backend": backend,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// CompleteWithRetry wraps Completer.Complete in the retry policy.
func CompleteWithRetry(ctx context.Context, c Completer, rc RetryConfig, messages []Message, opts Options) (string, error) {
	var out string
	err := retry(ctx, rc, "text", func() error {
		var err error
		out, err = c.Complete(ctx, messages, opts)
		return err
	})
	return out, err
}

// GenerateWithRetry wraps ImageGenerator.Generate in the retry policy.
func GenerateWithRetry(ctx context.Context, g ImageGenerator, rc RetryConfig, opts ImageOptions) ([]byte, error) {
	var out []byte
	err := retry(ctx, rc, "image", func() error {
		var err error
		out, err = g.Generate(ctx, opts)
		return err
	})
	return out, err
}
