// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

func TestWithTimeoutCompletes(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	err := WithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if errors.Classify(err).Code != errors.CodeTimeout {
		t.Errorf("code = %s, want TIMEOUT", errors.Classify(err).Code)
	}
}

func TestWithTimeoutZeroDeadline(t *testing.T) {
	called := false
	err := WithTimeout(context.Background(), 0, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected timeout error for zero deadline")
	}
	if called {
		t.Error("fn must not run when the deadline is already expired")
	}
}
