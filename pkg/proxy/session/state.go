// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"go.uber.org/atomic"
)

var (
	ErrAlreadyInTransaction = errors.New("can't lock tables in a transaction")
	ErrAlreadyLocked        = errors.New("tables are already locked")
)

// Isolation is the transaction isolation level of the session.
type Isolation int32

const (
	IsolationUnset Isolation = iota
	ReadUncommitted
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadUncommitted:
		return "READ-UNCOMMITTED"
	case ReadCommitted:
		return "READ-COMMITTED"
	case RepeatableRead:
		return "REPEATABLE-READ"
	case Serializable:
		return "SERIALIZABLE"
	}
	return ""
}

// State holds the mutable flags of a client session.
//
// Every field is an independent atomic cell. Statement handlers, completion callbacks and the
// idle checker may touch the state concurrently, but no operation reads or writes two fields
// as a unit, so there is no lock across fields.
// The interrupt and lock flags are only changed through Interrupt/ClearInterrupt and Lock/Unlock.
// interrupt holds the message of the failure that interrupted the transaction, or nil.
type State struct {
	autocommit     atomic.Bool
	txReadonly     atomic.Bool
	txIsolation    atomic.Int32
	sqlSelectLimit atomic.Int64
	lastInsertID   atomic.Uint64
	locked         atomic.Bool
	interrupt      atomic.Pointer[string]
	preAcState     atomic.Bool
}

func NewState() *State {
	s := &State{}
	s.autocommit.Store(true)
	s.preAcState.Store(true)
	s.sqlSelectLimit.Store(-1)
	return s
}

func (s *State) Autocommit() bool {
	return s.autocommit.Load()
}

func (s *State) SetAutocommit(autocommit bool) {
	s.autocommit.Store(autocommit)
}

func (s *State) TxReadonly() bool {
	return s.txReadonly.Load()
}

func (s *State) SetTxReadonly(readonly bool) {
	s.txReadonly.Store(readonly)
}

func (s *State) TxIsolation() Isolation {
	return Isolation(s.txIsolation.Load())
}

func (s *State) SetTxIsolation(isolation Isolation) {
	s.txIsolation.Store(int32(isolation))
}

// SQLSelectLimit is -1 when it's unset.
func (s *State) SQLSelectLimit() int64 {
	return s.sqlSelectLimit.Load()
}

func (s *State) SetSQLSelectLimit(limit int64) {
	s.sqlSelectLimit.Store(limit)
}

func (s *State) LastInsertID() uint64 {
	return s.lastInsertID.Load()
}

func (s *State) SetLastInsertID(id uint64) {
	s.lastInsertID.Store(id)
}

// PreAcState is the autocommit state before the last reset.
func (s *State) PreAcState() bool {
	return s.preAcState.Load()
}

func (s *State) SetPreAcState(autocommit bool) {
	s.preAcState.Store(autocommit)
}

func (s *State) IsLocked() bool {
	return s.locked.Load()
}

func (s *State) TxInterrupted() bool {
	return s.interrupt.Load() != nil
}

func (s *State) InterruptMessage() string {
	if msg := s.interrupt.Load(); msg != nil {
		return *msg
	}
	return ""
}

// Interrupt marks the current transaction as failed so that the following statements are refused
// until it's rolled back. It's a no-op in autocommit mode because there's no transaction to fail.
// Only the first failure is kept, and the later calls return false.
func (s *State) Interrupt(msg string) bool {
	if s.autocommit.Load() {
		return false
	}
	return s.interrupt.CompareAndSwap(nil, &msg)
}

func (s *State) ClearInterrupt() {
	s.interrupt.Store(nil)
}

// CheckLock returns the error that Lock would return without changing anything.
func (s *State) CheckLock() error {
	if !s.autocommit.Load() {
		return ErrAlreadyInTransaction
	}
	if s.locked.Load() {
		return ErrAlreadyLocked
	}
	return nil
}

func (s *State) Lock() error {
	if err := s.CheckLock(); err != nil {
		return err
	}
	if !s.locked.CompareAndSwap(false, true) {
		return ErrAlreadyLocked
	}
	return nil
}

func (s *State) Unlock() {
	s.locked.Store(false)
}

// ResetForNewLogicalConnection restores the defaults after COM_RESET_CONNECTION.
func (s *State) ResetForNewLogicalConnection() {
	s.autocommit.Store(true)
	s.txReadonly.Store(false)
	s.preAcState.Store(true)
	s.ClearInterrupt()
	s.lastInsertID.Store(0)
}

// ServerStatus returns the status flags of OK packets.
func (s *State) ServerStatus() uint16 {
	var status uint16
	if s.autocommit.Load() {
		status |= gomysql.SERVER_STATUS_AUTOCOMMIT
	} else {
		status |= gomysql.SERVER_STATUS_IN_TRANS
	}
	return status
}
