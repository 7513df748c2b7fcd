package export

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/grokify/omnivolume"
)

// RetryConfig configures retries of failed stream copies. Copies from
// remote sources (s3, sftp) fail transiently; local ones rarely do.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the wait before the first retry. Default: 1s.
	InitialDelay time.Duration

	// MaxDelay caps the wait between retries. Default: 30s.
	MaxDelay time.Duration

	// Multiplier grows the wait after each retry. Default: 2.
	Multiplier float64

	// Jitter varies each wait by up to this fraction, 0.1 being +/-10%.
	Jitter float64

	// Retryable decides whether an error is retried.
	// Default: IsTransient.
	Retryable func(error) bool
}

// DefaultRetryConfig returns three retries with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Retryable == nil {
		c.Retryable = IsTransient
	}
	return c
}

// RetryError is returned when every attempt failed.
type RetryError struct {
	Attempts int
	LastErr  error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("export: gave up after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryError) Unwrap() error {
	return e.LastErr
}

// IsRetryError reports whether err is a RetryError.
func IsRetryError(err error) bool {
	var re *RetryError
	return errors.As(err, &re)
}

// IsTransient reports whether err is an I/O fault of the source or a
// network timeout. Lifecycle, access and not-found errors are permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if omnivolume.IsProtocolViolation(err) || omnivolume.IsNotFound(err) || omnivolume.IsAccessViolation(err) {
		return false
	}
	return omnivolume.IsIOFault(err)
}

// retry runs op until it succeeds, fails permanently, or the retries run out.
func retry(ctx context.Context, config *RetryConfig, op func() error) error {
	if config == nil || config.MaxRetries <= 0 {
		return op()
	}
	c := config.withDefaults()

	delay := c.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !c.Retryable(lastErr) {
			return lastErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt == c.MaxRetries {
			break
		}

		wait := delay
		if c.Jitter > 0 {
			wait += time.Duration((rand.Float64()*2 - 1) * c.Jitter * float64(delay)) //nolint:gosec // G404: timing jitter only
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = min(time.Duration(float64(delay)*c.Multiplier), c.MaxDelay)
	}

	return &RetryError{Attempts: c.MaxRetries + 1, LastErr: lastErr}
}
