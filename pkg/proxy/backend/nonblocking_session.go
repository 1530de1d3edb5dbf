// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	glist "github.com/bahlo/generic-list-go"
	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/lib/util/waitgroup"
	"github.com/pingcap/shardproxy/pkg/metrics"
	"github.com/pingcap/shardproxy/pkg/proxy/flowctl"
	pnet "github.com/pingcap/shardproxy/pkg/proxy/net"
	"github.com/pingcap/shardproxy/pkg/proxy/route"
	"github.com/pingcap/shardproxy/pkg/proxy/session"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrSessionClosed  = errors.New("backend session is closed")
	ErrCloseSession   = errors.New("failed to close backend session")
	ErrBackendExecute = errors.New("failed to execute on the data node")
)

const (
	// resultBatchRows is the max rows written to the client at once.
	resultBatchRows = 256
	// pausePollInterval is the interval to check whether a paused connection is resumed.
	pausePollInterval = 5 * time.Millisecond
)

// nodeConn is a backend connection held by a session.
type nodeConn struct {
	name    string
	conn    *sql.Conn
	inTxn   bool
	pending atomic.Int64
	paused  atomic.Bool
}

var _ flowctl.Target = (*nodeConn)(nil)

func (nc *nodeConn) PendingBytes() int64 {
	return nc.pending.Load()
}

func (nc *nodeConn) Paused() bool {
	return nc.paused.Load()
}

func (nc *nodeConn) SetPaused(paused bool) {
	nc.paused.Store(paused)
}

// discard closes the physical connection instead of returning it to the pool, so that its
// transaction, table locks and session variables are gone.
func (nc *nodeConn) discard() {
	_ = nc.conn.Raw(func(any) error {
		return driver.ErrBadConn
	})
	_ = nc.conn.Close()
}

type sessionTask struct {
	name string
	run  func(ctx context.Context)
	// abort is called instead of run if the session terminates before running it.
	abort func()
}

// NonBlockingSession runs the statements of a client connection on the data nodes through
// database/sql. Every operation is appended to a task list and runs on a worker goroutine,
// one task at a time in the calling order, so the callers never wait for the backends.
//
// Backend connections are kept in the session while a transaction or a table lock is open,
// otherwise they are returned to the pool after each statement.
type NonBlockingSession struct {
	lg     *zap.Logger
	pool   *NodePool
	state  *session.State
	writer ResultWriter
	flow   flowctl.Controller
	wg     waitgroup.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	tasks         *glist.List[sessionTask]
	running       bool
	closed        bool
	cancelRunning context.CancelFunc
	conns         map[string]*nodeConn
	route         *route.Result
}

var _ Session = (*NonBlockingSession)(nil)

type SessionOption func(*NonBlockingSession)

// WithFlowController sets the controller that pauses and resumes the reads from the data nodes.
// It must be the same one that checks the session after writes.
func WithFlowController(flow flowctl.Controller) SessionOption {
	return func(s *NonBlockingSession) {
		s.flow = flow
	}
}

func NewNonBlockingSession(lg *zap.Logger, pool *NodePool, state *session.State, writer ResultWriter, opts ...SessionOption) *NonBlockingSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &NonBlockingSession{
		lg:     lg,
		pool:   pool,
		state:  state,
		writer: writer,
		flow:   flowctl.NopController{},
		ctx:    ctx,
		cancel: cancel,
		tasks:  glist.New[sessionTask](),
		conns:  make(map[string]*nodeConn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *NonBlockingSession) Execute(rt *route.Result, tp stmt.Type, done *Completion) {
	s.mu.Lock()
	s.route = rt
	s.mu.Unlock()
	ok := s.submit(sessionTask{
		name: "execute",
		run: func(ctx context.Context) {
			defer done.Done()
			s.execute(ctx, rt, tp)
		},
		abort: done.Done,
	})
	if !ok {
		s.writeError(ErrSessionClosed)
		done.Done()
	}
}

func (s *NonBlockingSession) Commit() {
	s.submitOrFail("commit", func(ctx context.Context) {
		s.endTxn(ctx, "COMMIT")
	})
}

func (s *NonBlockingSession) Rollback() {
	s.submitOrFail("rollback", func(ctx context.Context) {
		s.endTxn(ctx, "ROLLBACK")
	})
}

func (s *NonBlockingSession) LockTable(rt *route.Result) {
	s.mu.Lock()
	s.route = rt
	s.mu.Unlock()
	s.submitOrFail("lock", func(ctx context.Context) {
		for _, node := range rt.Nodes {
			nc, err := s.nodeConn(ctx, node.Name, false)
			if err == nil {
				_, err = nc.conn.ExecContext(ctx, node.SQL)
			}
			if err != nil {
				s.lg.Warn("lock tables failed", zap.String("node", node.Name), zap.Error(err))
				// The locks that are already acquired are released with the connections.
				s.state.Unlock()
				s.discardConns()
				s.writeError(errors.Wrap(ErrBackendExecute, err))
				return
			}
		}
		s.writeOK("", 0, 0)
	})
}

func (s *NonBlockingSession) UnlockTable(sql string) {
	s.submitOrFail("unlock", func(ctx context.Context) {
		var errs []error
		for name, nc := range s.snapshotConns() {
			if _, err := nc.conn.ExecContext(ctx, sql); err != nil {
				errs = append(errs, errors.Wrapf(err, "node %s", name))
			}
		}
		s.releaseIdleConns()
		if err := errors.Collect(ErrBackendExecute, errs...); err != nil {
			s.writeError(err)
			return
		}
		s.writeOK("", 0, 0)
	})
}

func (s *NonBlockingSession) Cancel(sponsor string) {
	s.mu.Lock()
	cancel := s.cancelRunning
	s.mu.Unlock()
	if cancel == nil {
		s.lg.Debug("nothing to cancel", zap.String("sponsor", sponsor))
		return
	}
	s.lg.Info("cancel the running statement", zap.String("sponsor", sponsor))
	cancel()
}

func (s *NonBlockingSession) CloseAndClearResources(reason string) {
	s.lg.Info("clear backend connections", zap.String("reason", reason))
	s.submit(sessionTask{
		name: "clear",
		run: func(context.Context) {
			s.discardConns()
		},
	})
}

func (s *NonBlockingSession) Terminate() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	aborted := make([]sessionTask, 0, s.tasks.Len())
	for e := s.tasks.Front(); e != nil; e = e.Next() {
		aborted = append(aborted, e.Value)
	}
	s.tasks.Init()
	if s.cancelRunning != nil {
		s.cancelRunning()
	}
	s.mu.Unlock()

	s.cancel()
	for _, task := range aborted {
		if task.abort != nil {
			task.abort()
		}
	}
	s.wg.Wait()

	// Connections in a transaction or holding locks can't go back to the pool.
	var errs []error
	for name, nc := range s.snapshotConns() {
		if nc.inTxn || s.state.IsLocked() {
			nc.discard()
			continue
		}
		if err := nc.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, errors.Wrapf(err, "node %s", name))
		}
	}
	s.mu.Lock()
	s.conns = make(map[string]*nodeConn)
	s.mu.Unlock()
	return errors.Collect(ErrCloseSession, errs...)
}

func (s *NonBlockingSession) Route() *route.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

func (s *NonBlockingSession) TargetMap() map[string]flowctl.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make(map[string]flowctl.Target, len(s.conns))
	for name, nc := range s.conns {
		targets[name] = nc
	}
	return targets
}

func (s *NonBlockingSession) submitOrFail(name string, run func(ctx context.Context)) {
	if !s.submit(sessionTask{name: name, run: run}) {
		s.writeError(ErrSessionClosed)
	}
}

// submit starts a worker if no one is running.
func (s *NonBlockingSession) submit(task sessionTask) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.tasks.PushBack(task)
	start := !s.running
	s.running = true
	s.mu.Unlock()
	if start {
		s.wg.RunWithRecover(s.runTasks, nil, s.lg)
	}
	return true
}

func (s *NonBlockingSession) runTasks() {
	for {
		s.mu.Lock()
		front := s.tasks.Front()
		if front == nil {
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.tasks.Remove(front)
		ctx, cancel := context.WithCancel(s.ctx)
		s.cancelRunning = cancel
		s.mu.Unlock()

		s.runTask(ctx, task)
		cancel()
		s.mu.Lock()
		s.cancelRunning = nil
		s.mu.Unlock()
	}
}

// runTask recovers so that the following tasks still run.
func (s *NonBlockingSession) runTask(ctx context.Context, task sessionTask) {
	defer func() {
		if r := recover(); r != nil {
			s.lg.Error("panic in backend session task", zap.String("task", task.name), zap.Reflect("r", r), zap.Stack("stack trace"))
			if task.abort != nil {
				task.abort()
			}
		}
	}()
	task.run(ctx)
}

func (s *NonBlockingSession) execute(ctx context.Context, rt *route.Result, tp stmt.Type) {
	for _, node := range rt.Nodes {
		nc, err := s.nodeConn(ctx, node.Name, !s.state.Autocommit())
		if err != nil {
			s.fail(ctx, node.Name, nil, err)
			return
		}
		startTime := time.Now()
		// The statement type decides whether there is a result set. The execution type
		// differs only for SELECT ... FOR UPDATE.
		if returnsRows(rt.Type) {
			err = s.query(ctx, nc, node)
		} else {
			err = s.exec(ctx, nc, node)
		}
		metrics.BackendQueryDurationHistogram.WithLabelValues(node.Name, tp.String()).Observe(time.Since(startTime).Seconds())
		if err != nil {
			s.fail(ctx, node.Name, nc, err)
			return
		}
	}
	s.releaseIdleConns()
}

func returnsRows(tp stmt.Type) bool {
	switch tp {
	case stmt.Select, stmt.Show, stmt.Explain, stmt.Describe, stmt.Help, stmt.Call, stmt.Other:
		return true
	}
	return false
}

func (s *NonBlockingSession) query(ctx context.Context, nc *nodeConn, node route.Node) error {
	rows, err := nc.conn.QueryContext(ctx, node.SQL)
	if err != nil {
		return err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return s.writer.WriteOK(node.Name, 0, 0)
	}
	values := make([]sql.RawBytes, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	batch := make([][]string, 0, resultBatchRows)
	flush := func() error {
		err := s.writer.WriteResultSet(node.Name, columns, batch)
		batch = batch[:0]
		nc.pending.Store(0)
		return err
	}
	written := false
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		row := make([]string, len(values))
		var size int64
		for i, v := range values {
			row[i] = string(v)
			size += int64(len(v))
		}
		batch = append(batch, row)
		nc.pending.Add(size)
		if len(batch) >= resultBatchRows || nc.Paused() {
			if err := flush(); err != nil {
				return err
			}
			written = true
			if err := s.waitResumed(ctx, nc); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) > 0 || !written {
		return flush()
	}
	return nil
}

// waitResumed blocks while the connection is paused. No more writes happen during the wait,
// so the flow controller is checked here again to see the drained results.
func (s *NonBlockingSession) waitResumed(ctx context.Context, nc *nodeConn) error {
	if !nc.Paused() {
		return nil
	}
	ticker := time.NewTicker(pausePollInterval)
	defer ticker.Stop()
	for {
		s.flow.Check(s.TargetMap())
		if !nc.Paused() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *NonBlockingSession) exec(ctx context.Context, nc *nodeConn, node route.Node) error {
	result, err := nc.conn.ExecContext(ctx, node.SQL)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	lastInsertID, _ := result.LastInsertId()
	if lastInsertID > 0 {
		s.state.SetLastInsertID(uint64(lastInsertID))
	}
	return s.writer.WriteOK(node.Name, uint64(affected), uint64(lastInsertID))
}

// fail reports the error. A failed statement inside a transaction fails the whole transaction.
func (s *NonBlockingSession) fail(ctx context.Context, node string, nc *nodeConn, err error) {
	metrics.BackendErrCounter.WithLabelValues(node).Inc()
	s.lg.Info("execute on backend failed", zap.String("node", node), zap.Error(err))
	broken := isBrokenConn(err)
	if nc != nil && (ctx.Err() != nil || broken) {
		// The driver closes the connection when the context is canceled.
		s.mu.Lock()
		delete(s.conns, nc.name)
		s.mu.Unlock()
		nc.discard()
	}
	if s.state.Interrupt(err.Error()) {
		s.lg.Info("transaction is interrupted", zap.String("node", node))
	}
	s.releaseIdleConns()
	execErr := errors.Wrap(ErrBackendExecute, err)
	switch {
	case nc == nil:
		execErr = pnet.WrapUserError(execErr, fmt.Sprintf("failed to connect to data node %s", node))
	case broken:
		execErr = pnet.WrapUserError(execErr, fmt.Sprintf("lost connection to data node %s", node))
	}
	s.writeError(execErr)
}

func isBrokenConn(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || pnet.IsDisconnectError(err)
}

// nodeConn returns the kept connection or gets a new one. A transaction is started on
// new connections if beginTxn is true.
func (s *NonBlockingSession) nodeConn(ctx context.Context, name string, beginTxn bool) (*nodeConn, error) {
	s.mu.Lock()
	nc, ok := s.conns[name]
	s.mu.Unlock()
	if !ok {
		conn, err := s.pool.Conn(ctx, name)
		if err != nil {
			return nil, err
		}
		nc = &nodeConn{name: name, conn: conn}
		s.mu.Lock()
		s.conns[name] = nc
		s.mu.Unlock()
	}
	if beginTxn && !nc.inTxn {
		if _, err := nc.conn.ExecContext(ctx, "BEGIN"); err != nil {
			return nil, err
		}
		nc.inTxn = true
	}
	return nc, nil
}

func (s *NonBlockingSession) endTxn(ctx context.Context, sql string) {
	var errs []error
	for name, nc := range s.snapshotConns() {
		if !nc.inTxn {
			continue
		}
		if _, err := nc.conn.ExecContext(ctx, sql); err != nil {
			errs = append(errs, errors.Wrapf(err, "node %s", name))
			s.mu.Lock()
			delete(s.conns, name)
			s.mu.Unlock()
			nc.discard()
			continue
		}
		nc.inTxn = false
	}
	s.releaseIdleConns()
	if err := errors.Collect(ErrBackendExecute, errs...); err != nil {
		s.writeError(err)
		return
	}
	s.writeOK("", 0, 0)
}

// releaseIdleConns returns the connections that are neither in a transaction nor locked.
func (s *NonBlockingSession) releaseIdleConns() {
	if s.state.IsLocked() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, nc := range s.conns {
		if nc.inTxn {
			continue
		}
		if err := nc.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			s.lg.Warn("release backend connection failed", zap.String("node", name), zap.Error(err))
		}
		delete(s.conns, name)
	}
}

func (s *NonBlockingSession) discardConns() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]*nodeConn)
	s.mu.Unlock()
	for _, nc := range conns {
		nc.discard()
	}
}

func (s *NonBlockingSession) snapshotConns() map[string]*nodeConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make(map[string]*nodeConn, len(s.conns))
	for name, nc := range s.conns {
		conns[name] = nc
	}
	return conns
}

func (s *NonBlockingSession) writeOK(node string, affected, lastInsertID uint64) {
	if err := s.writer.WriteOK(node, affected, lastInsertID); err != nil {
		s.lg.Warn("write OK to client failed", zap.Error(err))
	}
}

func (s *NonBlockingSession) writeError(err error) {
	if writeErr := s.writer.WriteError(err); writeErr != nil {
		s.lg.Warn("write error to client failed", zap.NamedError("write_err", writeErr), zap.Error(err))
	}
}
