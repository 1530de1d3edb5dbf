// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"strings"

	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/pkg/metrics"
	pnet "github.com/pingcap/shardproxy/pkg/proxy/net"
	"github.com/pingcap/shardproxy/pkg/proxy/session"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
	"go.uber.org/zap"
)

// OnStatementCompleted is called by the backend session when the dispatched statement completes.
// It dispatches the next statement in the queue, if any.
func (c *ServerConnection) OnStatementCompleted() {
	c.OnWrite()
	next, ok := c.queue.OnCompleted()
	if !ok || c.closed.Load() {
		return
	}
	c.dispatch(next)
}

// Commit rolls back instead if the transaction is interrupted.
func (c *ServerConnection) Commit() {
	if c.state.TxInterrupted() {
		c.lg.Warn("receive commit, but the transaction is interrupted, rollback instead",
			zap.String("interrupt_msg", c.state.InterruptMessage()))
		c.Rollback()
		return
	}
	c.session.Commit()
}

func (c *ServerConnection) Rollback() {
	c.state.ClearInterrupt()
	c.session.Rollback()
}

// LockTable handles LOCK TABLES. It's refused in a transaction or when the tables are already locked.
func (c *ServerConnection) LockTable(sql string) error {
	if err := c.state.CheckLock(); err != nil {
		metrics.LockCounter.WithLabelValues(metrics.OpLock, "refused").Inc()
		return lockError(err)
	}
	rt, err := c.RouteSQL(sql, stmt.Lock)
	if err != nil {
		metrics.LockCounter.WithLabelValues(metrics.OpLock, "error").Inc()
		return err
	}
	// The state may change while routing.
	if err := c.state.Lock(); err != nil {
		metrics.LockCounter.WithLabelValues(metrics.OpLock, "refused").Inc()
		return lockError(err)
	}
	metrics.LockCounter.WithLabelValues(metrics.OpLock, "ok").Inc()
	c.session.LockTable(rt)
	return nil
}

func lockError(err error) error {
	if errors.Is(err, session.ErrAlreadyInTransaction) {
		return pnet.AlreadyInTransaction()
	}
	return pnet.AlreadyLocked()
}

// UnlockTable only accepts `UNLOCK TABLE` and `UNLOCK TABLES`.
func (c *ServerConnection) UnlockTable(sql string) error {
	normalized := strings.NewReplacer("\n", " ", "\t", " ").Replace(sql)
	words := make([]string, 0, 2)
	for _, word := range strings.Split(normalized, " ") {
		if word != "" {
			words = append(words, word)
		}
	}
	if len(words) != 2 || !strings.EqualFold(words[0], "unlock") ||
		(!strings.EqualFold(words[1], "table") && !strings.EqualFold(words[1], "tables")) {
		metrics.LockCounter.WithLabelValues(metrics.OpUnlock, "refused").Inc()
		return pnet.UnknownCommand()
	}
	metrics.LockCounter.WithLabelValues(metrics.OpUnlock, "ok").Inc()
	c.state.Unlock()
	c.session.UnlockTable(sql)
	return nil
}

// Cancel asks the backend session to kill the running statement. It returns immediately.
// The statement is still removed from the queue by its completion.
func (c *ServerConnection) Cancel(sponsor string) {
	metrics.CancelCounter.Inc()
	cancel := func() {
		c.session.Cancel(sponsor)
	}
	if c.opts.CancelPool != nil {
		c.opts.CancelPool.RunWithRecover(cancel, nil, c.lg)
		return
	}
	c.wg.RunWithRecover(cancel, nil, c.lg)
}

// CheckQueueFlow applies flow control to the backend connections. Results that need merging
// are exempt because the merge needs all of them.
func (c *ServerConnection) CheckQueueFlow() {
	if rt := c.session.Route(); rt != nil && len(rt.Nodes) > 1 && rt.NeedMerge {
		return
	}
	c.opts.FlowController.Check(c.session.TargetMap())
}

// OnPrepared tracks the id of a statement prepared by the client.
func (c *ServerConnection) OnPrepared(stmtID uint64) {
	c.prepared.Track(stmtID)
	c.lg.Debug("statement prepared", zap.Uint64("stmt_id", stmtID))
}

// OnStatementClosed untracks the id of a statement closed by the client.
func (c *ServerConnection) OnStatementClosed(stmtID uint64) {
	if !c.prepared.Untrack(stmtID) {
		c.lg.Debug("close an unknown statement", zap.Uint64("stmt_id", stmtID))
	}
}

// ResetConnection handles COM_RESET_CONNECTION.
func (c *ServerConnection) ResetConnection() {
	c.session.CloseAndClearResources("receive com_reset_connection")
	c.state.ResetForNewLogicalConnection()
}

// Close releases the connection. The queue is drained first so that no more statements are
// dispatched, then the prepared statements are closed, then the backend session is terminated
// and then the LOAD DATA state is cleared. A failing step doesn't stop the following ones.
func (c *ServerConnection) Close(reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.lg.Info("close connection", zap.String("reason", reason), zap.Stringer("conn", c))
	if dropped := c.queue.Drain(); dropped > 1 {
		c.lg.Info("drop queued statements", zap.Int("count", dropped-1))
	}
	c.cancel()

	errs := make([]error, 0, 3)
	errs = append(errs, c.closeStep("close prepared statements", func() error {
		closed := c.prepared.DrainAndClose(func(stmtID uint64) {
			if c.opts.PreparedCloser != nil {
				c.opts.PreparedCloser(c.connID, stmtID)
			}
		})
		metrics.PreparedCloseCounter.Add(float64(closed))
		return nil
	}))
	errs = append(errs, c.closeStep("terminate backend session", c.session.Terminate))
	errs = append(errs, c.closeStep("clear load data", func() error {
		if c.opts.LoadDataHandler != nil {
			c.opts.LoadDataHandler.Clear()
		}
		return nil
	}))
	c.wg.Wait()
	metrics.ConnGauge.Dec()
	return errors.Collect(pnet.ErrCloseConn, errs...)
}

func (c *ServerConnection) closeStep(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.lg.Error("panic when closing connection", zap.String("step", step), zap.Reflect("r", r), zap.Stack("stack trace"))
			err = errors.Errorf("%s: %v", step, r)
		}
		if err != nil {
			c.lg.Warn("close connection step failed", zap.String("step", step), zap.Error(err))
		}
	}()
	return fn()
}
