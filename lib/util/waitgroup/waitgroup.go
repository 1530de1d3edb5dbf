// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package waitgroup

import (
	"sync"
	"time"

	"github.com/tiancaiamao/gp"
	"go.uber.org/zap"
)

// WaitGroup is a sync.WaitGroup that starts the goroutines itself.
type WaitGroup struct {
	sync.WaitGroup
}

// Run runs exec in a goroutine. exec must not panic.
func (w *WaitGroup) Run(exec func()) {
	w.Add(1)
	go func() {
		defer w.Done()
		exec()
	}()
}

// RunWithRecover runs exec in a goroutine and recovers from its panic.
// The panic and the stack are logged, and then recoverFn is called if it's not nil.
func (w *WaitGroup) RunWithRecover(exec func(), recoverFn func(r any), logger *zap.Logger) {
	w.Add(1)
	go func() {
		defer recoverFromErr(&w.WaitGroup, recoverFn, logger)
		exec()
	}()
}

func recoverFromErr(wg *sync.WaitGroup, recoverFn func(r any), logger *zap.Logger) {
	r := recover()
	defer func() {
		// Panicking again in recoverFn must not take down the process.
		_ = recover()
	}()
	if r != nil && logger != nil {
		logger.Error("panic in the recoverable goroutine", zap.Reflect("r", r), zap.Stack("stack trace"))
	}
	// recoverFn usually closes the owner, which may wait for this group.
	wg.Done()
	if r != nil && recoverFn != nil {
		recoverFn(r)
	}
}

// WaitGroupPool runs the functions on a shared goroutine pool.
type WaitGroupPool struct {
	sync.WaitGroup
	pool *gp.Pool
}

// NewWaitGroupPool keeps at most n idle goroutines, each living for idleDuration.
func NewWaitGroupPool(n int, idleDuration time.Duration) *WaitGroupPool {
	return &WaitGroupPool{
		pool: gp.New(n, idleDuration),
	}
}

func (w *WaitGroupPool) RunWithRecover(exec func(), recoverFn func(r any), logger *zap.Logger) {
	w.Add(1)
	w.pool.Go(func() {
		defer recoverFromErr(&w.WaitGroup, recoverFn, logger)
		exec()
	})
}

func (w *WaitGroupPool) Close() {
	w.pool.Close()
	w.Wait()
}
