// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

// WithTimeout executes fn under a deadline. When the deadline fires
// before fn completes, a TIMEOUT error is returned; fn keeps running in
// the background until it observes its context.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return errors.New(errors.CodeTimeout, "deadline already expired", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case <-ctx.Done():
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", d.String())
	case err := <-done:
		return err
	}
}
