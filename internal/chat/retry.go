package chat

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/poetry-camera/internal/config"
	"github.com/fpang/poetry-camera/internal/metrics"
)

// RetryPolicy bounds retries for one kind of call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// PolicyFromConfig converts configuration into a policy.
func PolicyFromConfig(c config.RetryConfig) RetryPolicy {
	return RetryPolicy{MaxAttempts: c.MaxAttempts, BaseDelay: c.BaseDelay, Multiplier: c.Multiplier}
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * Multiplier^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the production Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn under policy. Every attempt is a fresh call. Permanent
// failures and parent cancellation stop immediately; the last error is
// returned classified.
func retry[T any](ctx context.Context, op string, policy RetryPolicy, sleep Sleeper, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := max(1, policy.MaxAttempts)

	var last *ServiceError
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		out, err := fn(ctx, attempt)
		metrics.ServiceLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.ServiceAttempts.WithLabelValues(op, "success").Inc()
			if attempt > 1 {
				log.Info().Str("op", op).Int("attempt", attempt).Msg("Service call succeeded after retry")
			}
			return out, nil
		}

		last = Classify(op, err)
		if ctx.Err() != nil {
			last = &ServiceError{Kind: Permanent, Op: op, Message: "call cancelled", Err: err}
		}
		metrics.ServiceAttempts.WithLabelValues(op, last.Kind.String()).Inc()

		if last.Kind == Permanent {
			log.Error().Err(err).Str("op", op).Int("attempt", attempt).Msg("Permanent service failure, not retrying")
			return zero, last
		}
		if attempt == attempts {
			break
		}

		delay := policy.Delay(attempt)
		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Dur("retryIn", delay).
			Msg("Transient service failure, retrying")
		if err := sleep(ctx, delay); err != nil {
			return zero, &ServiceError{Kind: Permanent, Op: op, Message: "call cancelled", Err: err}
		}
	}

	log.Error().Err(last).Str("op", op).Int("attempts", attempts).Msg("Service retries exhausted")
	return zero, last
}
