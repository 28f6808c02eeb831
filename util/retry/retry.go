package retry

import (
	"context"
	"time"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/ulogger"
)

// Retry runs fn, retrying on error according to the configured options.
// It respects ctx cancellation between attempts and never retries past
// RetryCount unless InfiniteRetry is set.
func Retry(ctx context.Context, logger ulogger.Logger, fn func() (interface{}, error), opts ...Options) (interface{}, error) {
	o := NewSetOptions(opts...)

	backoff := o.BackoffDurationType
	var lastErr error

	for attempt := 0; o.InfiniteRetry || attempt <= o.RetryCount; attempt++ {
		if ctx.Err() != nil {
			return nil, errors.New(errors.ERR_CANCELLED, "retry cancelled", ctx.Err())
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !o.InfiniteRetry && attempt == o.RetryCount {
			break
		}

		if logger != nil {
			logger.Warnf("%s attempt %d failed: %v, retrying in %s", o.Message, attempt+1, err, backoff)
		}

		select {
		case <-ctx.Done():
			return nil, errors.New(errors.ERR_CANCELLED, "retry cancelled", ctx.Err())
		case <-time.After(backoff):
		}

		if o.ExponentialBackoff {
			backoff = time.Duration(float64(backoff) * o.BackoffFactor)
			if backoff > o.MaxBackoff {
				backoff = o.MaxBackoff
			}
		} else {
			backoff = backoff * time.Duration(o.BackoffMultiplier)
		}
	}

	return nil, errors.New(errors.ERR_SERVICE_UNAVAILABLE, "retry exhausted", lastErr)
}
