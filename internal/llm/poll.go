package llm

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout is returned when an asynchronous generation does not settle in time.
var ErrPollTimeout = errors.New("generation did not complete in time (timeout)")

// Poll calls check every interval until it reports done, fails, ctx ends or
// maxWait elapses. The first check runs after one interval.
func Poll(ctx context.Context, interval, maxWait time.Duration, check func(ctx context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrPollTimeout
		case <-ticker.C:
			done, err := check(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}
