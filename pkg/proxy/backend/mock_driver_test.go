// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"go.uber.org/atomic"
)

const mockDriverName = "shardproxy-mock"

var (
	registerDriverOnce sync.Once
	mockBackendsLock   sync.Mutex
	mockBackends       = make(map[string]*mockBackend)
)

// mockBackend is a fake MySQL instance behind the mock driver. The behavior depends on the statement:
//   - containing "error": fails with a MySQL error
//   - containing "sleep": blocks until the context is canceled
//   - containing "many": returns 600 rows
type mockBackend struct {
	addr      string
	lock      sync.Mutex
	stmts     []string
	opened    atomic.Int32
	closed    atomic.Int32
	failOpens atomic.Int32
	denyOpen  atomic.Bool
}

func newMockBackend(t *testing.T, addr string) *mockBackend {
	registerDriverOnce.Do(func() {
		sql.Register(mockDriverName, &mockDriver{})
	})
	mb := &mockBackend{addr: addr}
	mockBackendsLock.Lock()
	mockBackends[addr] = mb
	mockBackendsLock.Unlock()
	t.Cleanup(func() {
		mockBackendsLock.Lock()
		delete(mockBackends, addr)
		mockBackendsLock.Unlock()
	})
	return mb
}

func (mb *mockBackend) record(query string) {
	mb.lock.Lock()
	mb.stmts = append(mb.stmts, query)
	mb.lock.Unlock()
}

func (mb *mockBackend) statements() []string {
	mb.lock.Lock()
	defer mb.lock.Unlock()
	return append([]string(nil), mb.stmts...)
}

func newMockNodes(t *testing.T, names ...string) ([]config.DataNode, map[string]*mockBackend) {
	nodes := make([]config.DataNode, 0, len(names))
	backends := make(map[string]*mockBackend, len(names))
	for _, name := range names {
		addr := fmt.Sprintf("%s-%s:3306", t.Name(), name)
		backends[name] = newMockBackend(t, addr)
		nodes = append(nodes, config.DataNode{Name: name, Addr: addr, User: "root", Database: "db_" + name})
	}
	return nodes, backends
}

type mockDriver struct{}

func (*mockDriver) Open(dsn string) (driver.Conn, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	mockBackendsLock.Lock()
	mb, ok := mockBackends[cfg.Addr]
	mockBackendsLock.Unlock()
	if !ok {
		return nil, errors.Errorf("dial tcp %s: connection refused", cfg.Addr)
	}
	if mb.denyOpen.Load() {
		return nil, &mysql.MySQLError{Number: 1045, Message: "Access denied"}
	}
	if mb.failOpens.Load() > 0 {
		mb.failOpens.Dec()
		return nil, errors.Errorf("dial tcp %s: connection refused", cfg.Addr)
	}
	mb.opened.Inc()
	return &mockDriverConn{mb: mb}, nil
}

type mockDriverConn struct {
	mb *mockBackend
}

var _ driver.ExecerContext = (*mockDriverConn)(nil)
var _ driver.QueryerContext = (*mockDriverConn)(nil)

func (c *mockDriverConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("not supported")
}

func (c *mockDriverConn) Begin() (driver.Tx, error) {
	return nil, errors.New("not supported")
}

func (c *mockDriverConn) Close() error {
	c.mb.closed.Inc()
	return nil
}

func (c *mockDriverConn) run(ctx context.Context, query string) error {
	c.mb.record(query)
	switch {
	case strings.Contains(query, "error"):
		return &mysql.MySQLError{Number: 1105, Message: "mock error"}
	case strings.Contains(query, "sleep"):
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (c *mockDriverConn) ExecContext(ctx context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if err := c.run(ctx, query); err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(query), "insert") {
		return mockResult{affected: 1, lastInsertID: 7}, nil
	}
	return mockResult{}, nil
}

func (c *mockDriverConn) QueryContext(ctx context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if err := c.run(ctx, query); err != nil {
		return nil, err
	}
	rows := &mockRows{columns: []string{"addr", "sql"}}
	cnt := 1
	if strings.Contains(query, "many") {
		cnt = 600
	}
	for i := 0; i < cnt; i++ {
		rows.rows = append(rows.rows, []driver.Value{[]byte(c.mb.addr), []byte(query)})
	}
	return rows, nil
}

type mockResult struct {
	affected     int64
	lastInsertID int64
}

func (r mockResult) LastInsertId() (int64, error) {
	return r.lastInsertID, nil
}

func (r mockResult) RowsAffected() (int64, error) {
	return r.affected, nil
}

type mockRows struct {
	columns []string
	rows    [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string {
	return r.columns
}

func (r *mockRows) Close() error {
	return nil
}

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

type resultSet struct {
	node    string
	columns []string
	rows    [][]string
}

type okResult struct {
	node         string
	affected     uint64
	lastInsertID uint64
}

// mockWriter records what is written to the client.
type mockWriter struct {
	lock       sync.Mutex
	resultSets []resultSet
	oks        []okResult
	errs       []error
	onWrite    func()
}

func (w *mockWriter) WriteResultSet(node string, columns []string, rows [][]string) error {
	w.lock.Lock()
	copied := make([][]string, len(rows))
	copy(copied, rows)
	w.resultSets = append(w.resultSets, resultSet{node: node, columns: columns, rows: copied})
	onWrite := w.onWrite
	w.lock.Unlock()
	if onWrite != nil {
		onWrite()
	}
	return nil
}

func (w *mockWriter) WriteOK(node string, affected, lastInsertID uint64) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.oks = append(w.oks, okResult{node: node, affected: affected, lastInsertID: lastInsertID})
	return nil
}

func (w *mockWriter) WriteError(err error) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.errs = append(w.errs, err)
	return nil
}

func (w *mockWriter) counts() (resultSets, oks, errs int) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return len(w.resultSets), len(w.oks), len(w.errs)
}

func (w *mockWriter) lastError() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if len(w.errs) == 0 {
		return nil
	}
	return w.errs[len(w.errs)-1]
}
