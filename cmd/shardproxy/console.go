// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/pkg/proxy/backend"
	pnet "github.com/pingcap/shardproxy/pkg/proxy/net"
	"github.com/pingcap/shardproxy/pkg/proxy/route"
	"github.com/pingcap/shardproxy/pkg/proxy/schema"
	"github.com/pingcap/shardproxy/pkg/proxy/session"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
)

const waitInterval = 10 * time.Millisecond

// consoleConn is the part of client.ServerConnection that the console uses.
type consoleConn interface {
	Execute(sql string, tp stmt.Type) (*route.Result, error)
	Commit()
	Rollback()
	LockTable(sql string) error
	UnlockTable(sql string) error
	SetSchema(schema string)
	State() *session.State
	PendingStatements() int
	OnWrite()
	CheckQueueFlow()
}

// console reads one statement per line and writes the results as text.
// Statements are sent without waiting for the previous results, like a pipelining client.
type console struct {
	mu      sync.Mutex
	catalog schema.Catalog
	out     io.Writer
	conn    consoleConn
}

var _ backend.ResultWriter = (*console)(nil)

func newConsole(catalog schema.Catalog, out io.Writer) *console {
	return &console{
		catalog: catalog,
		out:     out,
	}
}

func (c *console) attach(conn consoleConn) {
	c.conn = conn
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		sql := strings.TrimSpace(scanner.Text())
		sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
		if sql == "" || strings.HasPrefix(sql, "--") || strings.HasPrefix(sql, "#") {
			continue
		}
		c.handle(ctx, sql)
	}
	if err := scanner.Err(); err != nil {
		return errors.WithStack(err)
	}
	c.waitIdle(ctx)
	return nil
}

func (c *console) handle(ctx context.Context, sql string) {
	tp := stmt.Classify(sql)
	var err error
	switch tp {
	case stmt.Select, stmt.Insert, stmt.Update, stmt.Delete, stmt.Replace, stmt.DDL, stmt.Show,
		stmt.Explain, stmt.Describe, stmt.Help, stmt.Load, stmt.Call, stmt.Other:
		_, err = c.conn.Execute(sql, tp)
	case stmt.Set:
		if autocommit, ok := parseAutocommit(sql); ok {
			c.waitIdle(ctx)
			c.conn.State().SetAutocommit(autocommit)
			c.conn.State().SetPreAcState(autocommit)
			err = c.WriteOK("", 0, 0)
			break
		}
		_, err = c.conn.Execute(sql, tp)
	default:
		// The session state changes only after the statements before it finish.
		c.waitIdle(ctx)
		err = c.handleState(sql, tp)
	}
	if err != nil {
		_ = c.WriteError(err)
	}
}

func (c *console) handleState(sql string, tp stmt.Type) error {
	state := c.conn.State()
	switch tp {
	case stmt.Use:
		name := useTarget(sql)
		if _, ok := c.catalog.Schema(name); !ok {
			return pnet.UnknownDatabase(name)
		}
		c.conn.SetSchema(name)
		return c.WriteOK("", 0, 0)
	case stmt.Begin:
		state.SetPreAcState(state.Autocommit())
		state.SetAutocommit(false)
		return c.WriteOK("", 0, 0)
	case stmt.Commit:
		c.conn.Commit()
		c.restoreAutocommit(state)
	case stmt.Rollback:
		c.conn.Rollback()
		c.restoreAutocommit(state)
	case stmt.Lock:
		return c.conn.LockTable(sql)
	case stmt.Unlock:
		return c.conn.UnlockTable(sql)
	default:
		return pnet.UnknownCommand()
	}
	return nil
}

// A transaction started by BEGIN ends with autocommit restored.
func (c *console) restoreAutocommit(state *session.State) {
	state.SetAutocommit(state.PreAcState())
}

func (c *console) waitIdle(ctx context.Context) {
	for c.conn.PendingStatements() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(waitInterval):
		}
	}
}

func useTarget(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) < 2 {
		return ""
	}
	return strings.Trim(fields[1], "`")
}

// parseAutocommit parses `SET autocommit = 0|1|on|off`.
func parseAutocommit(sql string) (bool, bool) {
	lower := strings.ToLower(sql)
	lower = strings.TrimSpace(strings.TrimPrefix(lower, "set"))
	lower = strings.TrimPrefix(lower, "@@session.")
	lower = strings.TrimPrefix(lower, "@@")
	name, value, ok := strings.Cut(lower, "=")
	if !ok || strings.TrimSpace(name) != "autocommit" {
		return false, false
	}
	switch strings.TrimSpace(value) {
	case "1", "on", "true":
		return true, true
	case "0", "off", "false":
		return false, true
	}
	return false, false
}

func (c *console) WriteResultSet(node string, columns []string, rows [][]string) error {
	c.mu.Lock()
	var sb strings.Builder
	sb.WriteString(strings.Join(columns, "\t"))
	sb.WriteByte('\n')
	for _, row := range rows {
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "%d rows in set%s\n", len(rows), nodeSuffix(node))
	_, err := io.WriteString(c.out, sb.String())
	c.mu.Unlock()
	c.afterWrite()
	return errors.WithStack(err)
}

func (c *console) WriteOK(node string, affectedRows, lastInsertID uint64) error {
	c.mu.Lock()
	var err error
	if lastInsertID > 0 {
		_, err = fmt.Fprintf(c.out, "OK, %d rows affected, last insert id %d%s\n", affectedRows, lastInsertID, nodeSuffix(node))
	} else {
		_, err = fmt.Fprintf(c.out, "OK, %d rows affected%s\n", affectedRows, nodeSuffix(node))
	}
	c.mu.Unlock()
	c.afterWrite()
	return errors.WithStack(err)
}

func (c *console) WriteError(err error) error {
	myErr := pnet.ToMySQLError(err)
	c.mu.Lock()
	_, werr := fmt.Fprintf(c.out, "ERROR %d (%s): %s\n", myErr.Code, myErr.State, myErr.Message)
	c.mu.Unlock()
	c.afterWrite()
	return errors.WithStack(werr)
}

func (c *console) afterWrite() {
	if c.conn == nil {
		return
	}
	c.conn.OnWrite()
	c.conn.CheckQueueFlow()
}

func nodeSuffix(node string) string {
	if node == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", node)
}
