package diary

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds re-attempts of an upstream call. Attempts below one
// are treated as a single attempt. The wait doubles after every failure.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// retry runs fn until it succeeds or the policy is exhausted, returning the
// last error.
func retry[T any](ctx context.Context, p RetryPolicy, log *zap.Logger, what string, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Backoff
	var (
		out T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		log.Warn("attempt failed",
			zap.String("op", what),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		if attempt == attempts {
			break
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return out, ctx.Err()
			case <-t.C:
			}
			wait *= 2
		}
	}
	return out, err
}
