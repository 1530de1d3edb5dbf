// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/shardproxy/lib/util/waitgroup"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := NewState()
	require.True(t, s.Autocommit())
	require.True(t, s.PreAcState())
	require.False(t, s.TxReadonly())
	require.False(t, s.IsLocked())
	require.False(t, s.TxInterrupted())
	require.Equal(t, int64(-1), s.SQLSelectLimit())
	require.Equal(t, uint64(0), s.LastInsertID())
	require.Equal(t, IsolationUnset, s.TxIsolation())
	require.Equal(t, uint16(gomysql.SERVER_STATUS_AUTOCOMMIT), s.ServerStatus())
}

func TestInterrupt(t *testing.T) {
	s := NewState()
	// No transaction in autocommit mode.
	require.False(t, s.Interrupt("deadlock"))
	require.False(t, s.TxInterrupted())
	require.Empty(t, s.InterruptMessage())

	s.SetAutocommit(false)
	require.Equal(t, uint16(gomysql.SERVER_STATUS_IN_TRANS), s.ServerStatus())
	require.True(t, s.Interrupt("deadlock"))
	require.True(t, s.TxInterrupted())
	require.Equal(t, "deadlock", s.InterruptMessage())

	// The first failure is kept.
	require.False(t, s.Interrupt("lock wait timeout"))
	require.True(t, s.TxInterrupted())
	require.Equal(t, "deadlock", s.InterruptMessage())

	s.ClearInterrupt()
	require.False(t, s.TxInterrupted())
	require.Empty(t, s.InterruptMessage())
	s.ClearInterrupt()
	require.False(t, s.TxInterrupted())

	// Interrupted again after rollback.
	require.True(t, s.Interrupt("lock wait timeout"))
	require.Equal(t, "lock wait timeout", s.InterruptMessage())
}

func TestLock(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Lock())
	require.True(t, s.IsLocked())
	require.ErrorIs(t, s.Lock(), ErrAlreadyLocked)
	require.True(t, s.IsLocked())
	s.Unlock()
	require.False(t, s.IsLocked())

	s.SetAutocommit(false)
	require.ErrorIs(t, s.CheckLock(), ErrAlreadyInTransaction)
	require.ErrorIs(t, s.Lock(), ErrAlreadyInTransaction)
	require.False(t, s.IsLocked())
	s.Unlock()
	require.False(t, s.IsLocked())
}

func TestConcurrentLock(t *testing.T) {
	s := NewState()
	var wg waitgroup.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Run(func() {
			results <- s.Lock()
		})
	}
	wg.Wait()
	close(results)
	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyLocked)
	}
	require.Equal(t, 1, succeeded)
}

func TestResetForNewLogicalConnection(t *testing.T) {
	s := NewState()
	s.SetAutocommit(false)
	s.SetTxReadonly(true)
	s.SetPreAcState(false)
	s.SetLastInsertID(10)
	s.SetTxIsolation(Serializable)
	s.SetSQLSelectLimit(100)
	require.True(t, s.Interrupt("killed"))

	s.ResetForNewLogicalConnection()
	require.True(t, s.Autocommit())
	require.False(t, s.TxReadonly())
	require.True(t, s.PreAcState())
	require.False(t, s.TxInterrupted())
	require.Empty(t, s.InterruptMessage())
	require.Equal(t, uint64(0), s.LastInsertID())
	// Not reset.
	require.Equal(t, Serializable, s.TxIsolation())
	require.Equal(t, "SERIALIZABLE", s.TxIsolation().String())
	require.Equal(t, int64(100), s.SQLSelectLimit())
}
