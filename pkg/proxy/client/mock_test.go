// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/logger"
	"github.com/pingcap/shardproxy/pkg/manager/id"
	"github.com/pingcap/shardproxy/pkg/proxy/backend"
	"github.com/pingcap/shardproxy/pkg/proxy/flowctl"
	"github.com/pingcap/shardproxy/pkg/proxy/route"
	"github.com/pingcap/shardproxy/pkg/proxy/schema"
	"github.com/pingcap/shardproxy/pkg/proxy/session"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type routeCall struct {
	schema  string
	tp      stmt.Type
	sql     string
	charset string
	connID  uint64
}

var _ route.Router = (*mockRouter)(nil)

// mockRouter returns neither a route nor an error if noRoute is set.
type mockRouter struct {
	sync.Mutex
	calls   []routeCall
	err     error
	panic   any
	nodes   []string
	merge   bool
	noRoute bool
}

func (r *mockRouter) Route(_ context.Context, _ *config.System, sc *config.Schema, tp stmt.Type, sql, charset string,
	conn route.ConnInfo) (*route.Result, error) {
	r.Lock()
	r.calls = append(r.calls, routeCall{schema: sc.Name, tp: tp, sql: sql, charset: charset, connID: conn.ConnectionID()})
	err, p, nodes, merge, noRoute := r.err, r.panic, r.nodes, r.merge, r.noRoute
	r.Unlock()
	if p != nil {
		panic(p)
	}
	if err != nil || noRoute {
		return nil, err
	}
	if len(nodes) == 0 {
		nodes = []string{sc.DataNode}
	}
	rt := &route.Result{
		SQL:             sql,
		Type:            tp,
		Schema:          sc.Name,
		NeedMerge:       merge,
		SelectForUpdate: tp == stmt.Select && strings.Contains(strings.ToLower(sql), "for update"),
	}
	for _, n := range nodes {
		rt.Nodes = append(rt.Nodes, route.Node{Name: n, SQL: sql})
	}
	return rt, nil
}

func (r *mockRouter) Calls() []routeCall {
	r.Lock()
	defer r.Unlock()
	return append([]routeCall(nil), r.calls...)
}

type executeCall struct {
	rt   *route.Result
	tp   stmt.Type
	done *backend.Completion
}

var _ backend.Session = (*mockSession)(nil)

type mockSession struct {
	sync.Mutex
	executes    []executeCall
	commits     int
	rollbacks   int
	locks       []*route.Result
	unlocks     []string
	cancels     []string
	clears      []string
	route       *route.Result
	targets     map[string]flowctl.Target
	inFlight    int
	maxInFlight int
	terminated  bool
	terminate   func() error
	steps       *[]string
}

func (s *mockSession) Execute(rt *route.Result, tp stmt.Type, done *backend.Completion) {
	s.Lock()
	defer s.Unlock()
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	s.executes = append(s.executes, executeCall{rt: rt, tp: tp, done: done})
	s.route = rt
}

// complete finishes the idx-th statement as a backend would.
func (s *mockSession) complete(idx int) {
	s.Lock()
	s.inFlight--
	done := s.executes[idx].done
	s.Unlock()
	done.Done()
}

func (s *mockSession) Executes() []executeCall {
	s.Lock()
	defer s.Unlock()
	return append([]executeCall(nil), s.executes...)
}

func (s *mockSession) Commit() {
	s.Lock()
	s.commits++
	s.Unlock()
}

func (s *mockSession) Rollback() {
	s.Lock()
	s.rollbacks++
	s.Unlock()
}

func (s *mockSession) LockTable(rt *route.Result) {
	s.Lock()
	s.locks = append(s.locks, rt)
	s.Unlock()
}

func (s *mockSession) UnlockTable(sql string) {
	s.Lock()
	s.unlocks = append(s.unlocks, sql)
	s.Unlock()
}

func (s *mockSession) Cancel(sponsor string) {
	s.Lock()
	s.cancels = append(s.cancels, sponsor)
	s.Unlock()
}

func (s *mockSession) Cancels() []string {
	s.Lock()
	defer s.Unlock()
	return append([]string(nil), s.cancels...)
}

func (s *mockSession) Terminate() error {
	s.Lock()
	s.terminated = true
	if s.steps != nil {
		*s.steps = append(*s.steps, "terminate")
	}
	fn := s.terminate
	s.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (s *mockSession) CloseAndClearResources(reason string) {
	s.Lock()
	s.clears = append(s.clears, reason)
	s.Unlock()
}

func (s *mockSession) Route() *route.Result {
	s.Lock()
	defer s.Unlock()
	return s.route
}

func (s *mockSession) TargetMap() map[string]flowctl.Target {
	s.Lock()
	defer s.Unlock()
	return s.targets
}

type mockFlowController struct {
	sync.Mutex
	checks int
}

func (c *mockFlowController) Check(map[string]flowctl.Target) {
	c.Lock()
	c.checks++
	c.Unlock()
}

func (c *mockFlowController) Checks() int {
	c.Lock()
	defer c.Unlock()
	return c.checks
}

type mockResponder struct {
	calls []string
}

func (r *mockResponder) RespondProcs(*ServerConnection) error {
	r.calls = append(r.calls, "procs")
	return nil
}

func (r *mockResponder) RespondProfiling(*ServerConnection) error {
	r.calls = append(r.calls, "profiling")
	return nil
}

func (r *mockResponder) RespondProfilingSqlyog(*ServerConnection) error {
	r.calls = append(r.calls, "sqlyog")
	return nil
}

type mockLoadData struct {
	steps *[]string
}

func (l *mockLoadData) Clear() {
	*l.steps = append(*l.steps, "clear load data")
}

func newTestConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Schemas = []config.Schema{
		{Name: "db1", DataNode: "dn1", CheckSQLSchema: true},
		{Name: "db2", DataNode: "dn2"},
	}
	cfg.DataNodes = []config.DataNode{
		{Name: "dn1", Addr: "127.0.0.1:3306", Database: "db1"},
		{Name: "dn2", Addr: "127.0.0.1:3307", Database: "db2"},
	}
	cfg.Users = []config.User{
		{Name: "u1", DefaultSchema: "db1"},
		{Name: "u2"},
	}
	return cfg
}

type testConn struct {
	*ServerConnection
	router  *mockRouter
	session *mockSession
	flow    *mockFlowController
	resp    *mockResponder
	logs    fmt.Stringer
	now     time.Time
}

func newTestConn(t *testing.T, user string, fns ...func(*Options)) *testConn {
	lg, logs := logger.CreateLoggerForTest(t)
	cfg := newTestConfig()
	catalog := schema.NewConfigCatalog(cfg)
	tc := &testConn{
		logs:    logs,
		router:  &mockRouter{},
		session: &mockSession{},
		flow:    &mockFlowController{},
		resp:    &mockResponder{},
		now:     time.Now(),
	}
	opts := Options{
		IDManager: id.NewIDManager(),
		System:    &cfg.System,
		Catalog:   catalog,
		Users:     catalog,
		Router:    tc.router,
		NewSession: func(*zap.Logger, *session.State) backend.Session {
			return tc.session
		},
		FlowController: tc.flow,
		Responder:      tc.resp,
		Now: func() time.Time {
			return tc.now
		},
	}
	for _, fn := range fns {
		fn(&opts)
	}
	tc.ServerConnection = NewServerConnection(lg, user, "127.0.0.1:34567", opts)
	t.Cleanup(func() {
		_ = tc.Close("test end")
	})
	return tc
}

func (tc *testConn) mustExecute(t *testing.T, sql string) *route.Result {
	rt, err := tc.Execute(sql, stmt.Classify(sql))
	require.NoError(t, err, sql)
	return rt
}
