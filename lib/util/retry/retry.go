// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	InfiniteCnt = 0
)

// NewBackOff returns a constant backoff bounded by ctx and retryCnt.
func NewBackOff(ctx context.Context, retryInterval time.Duration, retryCnt uint64) backoff.BackOff {
	var bo backoff.BackOff = backoff.NewConstantBackOff(retryInterval)
	if ctx != nil {
		bo = backoff.WithContext(bo, ctx)
	}
	if retryCnt != InfiniteCnt {
		bo = backoff.WithMaxRetries(bo, retryCnt)
	}
	return bo
}

// RetryWithData retries o until it succeeds or the backoff stops. notify is called on each failure if it's not nil.
func RetryWithData[T any](ctx context.Context, o backoff.OperationWithData[T], retryInterval time.Duration, retryCnt uint64, notify backoff.Notify) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return backoff.RetryNotifyWithData(o, NewBackOff(ctx, retryInterval, retryCnt), notify)
}
