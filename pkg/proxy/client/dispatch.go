// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"strings"

	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/pkg/metrics"
	"github.com/pingcap/shardproxy/pkg/proxy/backend"
	"github.com/pingcap/shardproxy/pkg/proxy/execqueue"
	pnet "github.com/pingcap/shardproxy/pkg/proxy/net"
	"github.com/pingcap/shardproxy/pkg/proxy/route"
	"github.com/pingcap/shardproxy/pkg/proxy/schema"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
	"go.uber.org/zap"
)

// Labels of metrics.RouteErrCounter.
const (
	routeErrClosed      = "closed"
	routeErrInterrupted = "interrupted"
	routeErrNoDB        = "no_db"
	routeErrUnknownDB   = "unknown_db"
	routeErrRoute       = "route"
)

// Execute resolves the schema of the statement, routes it and submits it to the execution queue.
// The statement is dispatched to the backend session at once if nothing is executing,
// otherwise it's dispatched when the statements before it complete.
//
// It returns a nil route without an error if the statement is answered by the proxy itself
// or the router has nothing to execute.
func (c *ServerConnection) Execute(sql string, tp stmt.Type) (*route.Result, error) {
	c.OnRead()
	if c.closed.Load() {
		c.lg.Warn("ignore execute, server connection is closed", zap.String("sql", sql))
		metrics.RouteErrCounter.WithLabelValues(routeErrClosed).Inc()
		return nil, pnet.ConnectionClosed()
	}
	if c.state.TxInterrupted() {
		metrics.TxnInterruptCounter.Inc()
		metrics.RouteErrCounter.WithLabelValues(routeErrInterrupted).Inc()
		return nil, pnet.TransactionInterrupted(c.state.InterruptMessage())
	}

	db, useCurrent, err := c.resolveSchema(sql, tp)
	if err != nil {
		return nil, err
	}
	if tp == stmt.Select && c.opts.Responder != nil && c.isProcQuery(sql) {
		return nil, c.respond(MetadataResponder.RespondProcs)
	}
	sc, ok := c.opts.Catalog.Schema(db)
	if !ok {
		metrics.RouteErrCounter.WithLabelValues(routeErrUnknownDB).Inc()
		return nil, pnet.UnknownDatabase(db)
	}
	if tp == stmt.Select && c.opts.Responder != nil {
		switch {
		case isNavicatProfiling(sql):
			return nil, c.respond(MetadataResponder.RespondProfiling)
		case isSqlyogProfiling(sql):
			return nil, c.respond(MetadataResponder.RespondProfilingSqlyog)
		}
	}
	// Clients may select a schema and still qualify the tables with another one.
	// TODO: Analyze is also called by the router. Pass the analysis to it to parse only once.
	if useCurrent && sc.CheckSQLSchema && tp.CheckSchema() {
		if analysis, err := schema.Analyze(sql); err == nil {
			if qualified, ok := analysis.QualifiedSchema(); ok && qualified != sc.Name {
				if other, ok := c.opts.Catalog.Schema(qualified); ok {
					sc = other
				}
			}
		}
	}

	rt, err := c.route(sc, sql, tp)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		c.lg.Debug("router returned no route, statement is ignored", zap.String("sql", sql))
		return nil, nil
	}
	c.submit(execqueue.Entry{SQL: sql, Type: tp, Route: rt})
	return rt, nil
}

// RouteSQL only resolves and routes the statement.
func (c *ServerConnection) RouteSQL(sql string, tp stmt.Type) (*route.Result, error) {
	db, _, err := c.resolveSchema(sql, tp)
	if err != nil {
		return nil, err
	}
	sc, ok := c.opts.Catalog.Schema(db)
	if !ok {
		metrics.RouteErrCounter.WithLabelValues(routeErrUnknownDB).Inc()
		return nil, pnet.UnknownDatabase(db)
	}
	return c.route(sc, sql, tp)
}

// resolveSchema returns the schema to route against. useCurrent tells whether it's the current
// schema of the connection.
func (c *ServerConnection) resolveSchema(sql string, tp stmt.Type) (db string, useCurrent bool, err error) {
	if db = c.Schema(); db != "" {
		return db, true, nil
	}
	if db, ok := schema.DetectDefault(sql, tp, c.opts.Catalog); ok {
		return db, false, nil
	}
	if c.opts.Users != nil {
		if db, ok := c.opts.Users.DefaultSchema(c.user); ok {
			return db, false, nil
		}
	}
	metrics.RouteErrCounter.WithLabelValues(routeErrNoDB).Inc()
	return "", false, pnet.NoDatabaseSelected()
}

func (c *ServerConnection) route(sc *config.Schema, sql string, tp stmt.Type) (rt *route.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = errors.Errorf("%v", r)
			}
			c.lg.Error("panic in router", zap.Reflect("r", r), zap.Stack("stack trace"))
		}
		if err != nil {
			rt = nil
			metrics.RouteErrCounter.WithLabelValues(routeErrRoute).Inc()
			c.lg.Warn("route statement failed", zap.Stringer("conn", c), zap.String("schema", sc.Name),
				zap.String("sql", sql), zap.String("digest", schema.Normalize(sql)), zap.Error(err))
			err = pnet.RouteFailed(err)
		}
	}()
	return c.opts.Router.Route(c.ctx, c.opts.System, sc, tp, sql, c.Charset(), c)
}

func (c *ServerConnection) submit(entry execqueue.Entry) {
	metrics.StmtCounter.WithLabelValues(entry.Type.String()).Inc()
	decision := c.queue.Submit(entry)
	metrics.QueueDepthHistogram.Observe(float64(c.queue.Len()))
	if decision == execqueue.ExecuteNow {
		c.dispatch(entry)
		return
	}
	metrics.QueuedStmtCounter.Inc()
	c.lg.Debug("statement is queued", zap.Stringer("type", entry.Type))
}

// dispatch executes SELECT ... FOR UPDATE as an UPDATE.
func (c *ServerConnection) dispatch(entry execqueue.Entry) {
	c.executeSQLID.Inc()
	c.session.Execute(entry.Route, entry.Route.ExecType(entry.Type), backend.NewCompletion(c.OnStatementCompleted))
}

func (c *ServerConnection) isProcQuery(sql string) bool {
	lower := strings.ToLower(sql)
	if !strings.Contains(lower, "mysql") || !strings.Contains(lower, "proc") {
		return false
	}
	ti, err := schema.ParseSchema(sql)
	if err != nil {
		return false
	}
	return strings.EqualFold(ti.Schema, "mysql") && strings.EqualFold(ti.Table, "proc")
}

func isNavicatProfiling(sql string) bool {
	return strings.Contains(sql, " INFORMATION_SCHEMA.PROFILING ") && strings.Contains(sql, "CONCAT(ROUND(SUM(DURATION)/")
}

func isSqlyogProfiling(sql string) bool {
	return strings.Contains(sql, " information_schema.profiling ") && strings.Contains(sql, "duration (summed) in sec")
}

func (c *ServerConnection) respond(fn func(MetadataResponder, *ServerConnection) error) error {
	err := fn(c.opts.Responder, c)
	c.OnWrite()
	return err
}
