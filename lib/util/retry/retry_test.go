// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/stretchr/testify/require"
)

func TestRetryWithData(t *testing.T) {
	mockErr := errors.New("mock")
	attempts, notified := 0, 0
	v, err := RetryWithData(context.Background(), func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, mockErr
		}
		return attempts, nil
	}, time.Millisecond, 5, func(error, time.Duration) {
		notified++
	})
	require.NoError(t, err)
	require.Equal(t, 3, v)
	require.Equal(t, 2, notified)

	_, err = RetryWithData(context.Background(), func() (int, error) {
		return 0, mockErr
	}, time.Millisecond, 2, nil)
	require.ErrorIs(t, err, mockErr)

	_, err = RetryWithData(context.Background(), func() (int, error) {
		return 0, backoff.Permanent(mockErr)
	}, time.Millisecond, InfiniteCnt, nil)
	require.ErrorIs(t, err, mockErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RetryWithData(ctx, func() (int, error) { return 1, nil }, time.Millisecond, 1, nil)
	require.ErrorIs(t, err, context.Canceled)
}
