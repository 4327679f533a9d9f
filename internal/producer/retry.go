package producer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errCircuitOpen   = errors.New("circuit breaker open")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// retryWithBackoff runs attempt with retries and exponential backoff. An open
// circuit breaker propagates immediately rather than burning retries.
func retryWithBackoff(ctx context.Context, cfg BackoffConfig, attempt func() error) error {
	if cfg.MaxRetries < 0 || cfg.InitialInterval <= 0 {
		return errInvalidConfig
	}

	var lastErr error

	for try := 0; ; try++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := attempt()
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if try >= cfg.MaxRetries {
			return lastErr
		}

		delay := cfg.InitialInterval * time.Duration(math.Pow(2, float64(try)))
		if cfg.MaxInterval > 0 && delay > cfg.MaxInterval {
			delay = cfg.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// next attempt
		}
	}
}
