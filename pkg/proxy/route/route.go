// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package route

import (
	"context"

	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
)

// ConnInfo is what a router may know about the client connection.
type ConnInfo interface {
	ConnectionID() uint64
	User() string
	ClientAddr() string
}

// Node is a statement to run on a data node.
type Node struct {
	Name string
	SQL  string
}

// Result is the routing decision of a statement.
type Result struct {
	SQL    string
	Type   stmt.Type
	Schema string
	Nodes  []Node
	// NeedMerge is set when the results of several nodes must be combined into one result set.
	NeedMerge bool
	// SelectForUpdate is set for SELECT ... FOR UPDATE, which is executed like an UPDATE.
	SelectForUpdate bool
}

func (r *Result) NodeNames() []string {
	names := make([]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		names = append(names, n.Name)
	}
	return names
}

// ExecType returns the type to execute the statement with.
func (r *Result) ExecType(tp stmt.Type) stmt.Type {
	if r.SelectForUpdate {
		return stmt.Update
	}
	return tp
}

// Router chooses the data nodes of a statement.
type Router interface {
	Route(ctx context.Context, system *config.System, schema *config.Schema, tp stmt.Type, sql, charset string, conn ConnInfo) (*Result, error)
}
