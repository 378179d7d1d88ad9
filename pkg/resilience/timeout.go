package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn on a context that expires after timeout and names the
// operation in a deadline error. fn must honour its context; WithTimeout
// waits for it to return. A non-positive timeout runs fn on ctx unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(tctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
	return err
}
