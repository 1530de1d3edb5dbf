// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package route

import (
	"context"
	"strings"

	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/pkg/proxy/schema"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
	"go.uber.org/zap"
)

var (
	ErrNoDataNode   = errors.New("no data node for the statement")
	ErrTableMissing = errors.New("table not found")
)

// TableRouter routes by the table lists in the config. It doesn't evaluate shard keys:
// a sharded table is sent to all its nodes and a table that isn't listed goes to the default node.
type TableRouter struct {
	lg *zap.Logger
}

var _ Router = (*TableRouter)(nil)

func NewTableRouter(lg *zap.Logger) *TableRouter {
	return &TableRouter{lg: lg}
}

func (r *TableRouter) Route(ctx context.Context, _ *config.System, sc *config.Schema, tp stmt.Type, sql, _ string, conn ConnInfo) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	result := &Result{
		SQL:    sql,
		Type:   tp,
		Schema: sc.Name,
	}

	var nodes []string
	switch tp {
	case stmt.Select, stmt.Insert, stmt.Update, stmt.Delete, stmt.Replace, stmt.DDL:
		analysis, err := schema.Analyze(sql)
		if err != nil {
			return nil, err
		}
		result.SelectForUpdate = analysis.ForUpdate
		if nodes, err = r.tableNodes(sc, tp, analysis.Tables); err != nil {
			return nil, err
		}
	case stmt.Lock, stmt.Unlock:
		nodes = sc.DataNodeNames()
	default:
		nodes = defaultNode(sc)
	}
	if len(nodes) == 0 {
		return nil, errors.Wrapf(ErrNoDataNode, "schema %s", sc.Name)
	}

	result.Nodes = make([]Node, 0, len(nodes))
	for _, name := range nodes {
		result.Nodes = append(result.Nodes, Node{Name: name, SQL: sql})
	}
	result.NeedMerge = len(nodes) > 1 && tp == stmt.Select
	if r.lg != nil && conn != nil {
		r.lg.Debug("route statement", zap.Uint64("connID", conn.ConnectionID()), zap.String("schema", sc.Name),
			zap.Stringer("type", tp), zap.Strings("nodes", nodes))
	}
	return result, nil
}

// tableNodes unions the nodes of the tables in the schema. Reads of global tables
// need only one node.
func (r *TableRouter) tableNodes(sc *config.Schema, tp stmt.Type, tables []schema.TableInfo) ([]string, error) {
	var nodes []string
	seen := make(map[string]struct{})
	add := func(names ...string) {
		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			nodes = append(nodes, name)
		}
	}
	for _, ti := range tables {
		if ti.Schema != "" && !strings.EqualFold(ti.Schema, sc.Name) {
			continue
		}
		tbl, ok := sc.Table(ti.Table)
		switch {
		case !ok && sc.DataNode == "":
			return nil, errors.Wrapf(ErrTableMissing, "table %s is not in schema %s", ti.Table, sc.Name)
		case !ok:
			add(sc.DataNode)
		case tbl.Global && tp == stmt.Select:
			// Prefer a node that is already chosen.
			if !containsAny(seen, tbl.DataNodes) {
				add(tbl.DataNodes[0])
			}
		default:
			add(tbl.DataNodes...)
		}
	}
	if len(nodes) == 0 {
		return defaultNode(sc), nil
	}
	return nodes, nil
}

func containsAny(seen map[string]struct{}, names []string) bool {
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return true
		}
	}
	return false
}

func defaultNode(sc *config.Schema) []string {
	if all := sc.DataNodeNames(); len(all) > 0 {
		return all[:1]
	}
	return nil
}
