// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"sync"

	"github.com/pingcap/shardproxy/pkg/proxy/flowctl"
	"github.com/pingcap/shardproxy/pkg/proxy/route"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
)

// Completion tells the client connection that the dispatched statement finishes.
// Done may be called more than once but only the first call takes effect.
type Completion struct {
	once sync.Once
	fn   func()
}

func NewCompletion(fn func()) *Completion {
	return &Completion{fn: fn}
}

func (c *Completion) Done() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		if c.fn != nil {
			c.fn()
		}
	})
}

// ResultWriter writes the results to the client. The results of each node are written
// separately because they are not merged.
type ResultWriter interface {
	WriteResultSet(node string, columns []string, rows [][]string) error
	WriteOK(node string, affectedRows, lastInsertID uint64) error
	WriteError(err error) error
}

// Session executes the routed statements of a client connection on the backends.
// It's owned by one client connection. All the operations return without waiting for
// the backends and report the results through the ResultWriter.
type Session interface {
	// Execute must call done.Done() when the statement finishes, whether it succeeds or not.
	Execute(rt *route.Result, tp stmt.Type, done *Completion)
	Commit()
	Rollback()
	LockTable(rt *route.Result)
	UnlockTable(sql string)
	// Cancel kills the running statement. It's advisory.
	Cancel(sponsor string)
	// Terminate releases everything. The session can't be used anymore.
	Terminate() error
	// CloseAndClearResources drops the backend connections and their session states.
	CloseAndClearResources(reason string)
	// Route returns the route of the running or last statement.
	Route() *route.Result
	// TargetMap returns the backend connections held by the session.
	TargetMap() map[string]flowctl.Target
}
