package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy retries an RPC call with exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Backoff <= 0 {
		p.Backoff = 100 * time.Millisecond
	}
	return p
}

// Do runs fn until it succeeds, the retries are spent or ctx is done.
// Failed attempts are logged at warn with op as the message.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string, fn func(context.Context) error, fields ...zap.Field) error {
	p = p.normalized()
	delay := p.Backoff
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if logger != nil {
			logger.Warn(op, append(fields, zap.Int("attempt", attempt+1), zap.Error(err))...)
		}
		if attempt >= p.MaxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
