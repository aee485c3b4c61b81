// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"time"

	"github.com/noema-ai/noema/pkg/errors"
)

// WithTimeout executes fn with a timeout boundary. fn receives a context
// that is cancelled when the deadline fires so the callee can stop early
// (best-effort cancellation). Returns errors.CodeTimeout on expiry.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	_, err := WithTimeoutResult(ctx, d, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

// WithTimeoutResult executes fn with a timeout boundary, returning both
// result and error. A zero duration means no deadline.
func WithTimeoutResult(ctx context.Context, d time.Duration, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if d == 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value interface{}
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	case res := <-done:
		return res.value, res.err
	}
}
