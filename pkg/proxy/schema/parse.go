// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"
	"sync"

	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

var ErrParseSQL = errors.New("failed to parse the statement")

// Parsers are not goroutine-safe.
var parserPool = sync.Pool{
	New: func() any {
		return parser.New()
	},
}

// TableInfo is a table referenced by a statement. Schema is empty if the table is not qualified.
type TableInfo struct {
	Schema string
	Table  string
}

func (ti TableInfo) String() string {
	if ti.Schema == "" {
		return ti.Table
	}
	return ti.Schema + "." + ti.Table
}

// Analysis is what the proxy needs to know about a statement to route it.
type Analysis struct {
	// Tables are in the order they appear, duplicates removed.
	Tables    []TableInfo
	ForUpdate bool
}

// FirstTable returns the first table.
func (a *Analysis) FirstTable() (TableInfo, bool) {
	if len(a.Tables) == 0 {
		return TableInfo{}, false
	}
	return a.Tables[0], true
}

// QualifiedSchema returns the first schema that qualifies a table explicitly.
func (a *Analysis) QualifiedSchema() (string, bool) {
	for _, ti := range a.Tables {
		if ti.Schema != "" {
			return ti.Schema, true
		}
	}
	return "", false
}

// Analyze parses the first statement of sql.
func Analyze(sql string) (analysis *Analysis, err error) {
	p := parserPool.Get().(*parser.Parser)
	defer parserPool.Put(p)
	// The parser occasionally panics on statements it doesn't support.
	defer func() {
		if r := recover(); r != nil {
			analysis, err = nil, errors.Wrapf(ErrParseSQL, "%v", r)
		}
	}()
	node, err := p.ParseOneStmt(sql, "", "")
	if err != nil {
		return nil, errors.Wrap(ErrParseSQL, err)
	}
	visitor := &tableVisitor{seen: make(map[TableInfo]struct{})}
	node.Accept(visitor)
	return &Analysis{Tables: visitor.tables, ForUpdate: visitor.forUpdate}, nil
}

// ParseSchema returns the first table referenced by sql.
func ParseSchema(sql string) (TableInfo, error) {
	analysis, err := Analyze(sql)
	if err != nil {
		return TableInfo{}, err
	}
	ti, _ := analysis.FirstTable()
	return ti, nil
}

type tableVisitor struct {
	tables    []TableInfo
	seen      map[TableInfo]struct{}
	forUpdate bool
}

func (v *tableVisitor) Enter(n ast.Node) (node ast.Node, skipChildren bool) {
	switch nn := n.(type) {
	case *ast.TableName:
		ti := TableInfo{Schema: nn.Schema.O, Table: nn.Name.O}
		if _, ok := v.seen[ti]; !ok {
			v.seen[ti] = struct{}{}
			v.tables = append(v.tables, ti)
		}
		return n, true
	case *ast.SelectStmt:
		if nn.LockInfo != nil && strings.HasPrefix(nn.LockInfo.LockType.String(), "for update") {
			v.forUpdate = true
		}
	}
	return n, false
}

func (v *tableVisitor) Leave(n ast.Node) (node ast.Node, ok bool) {
	return n, true
}

var normalizeFn = func(sql string) string {
	return parser.Normalize(sql, "ON")
}

// Normalize returns the statement digest text, which hides literals. It returns an empty
// string if the parser panics.
func Normalize(sql string) (normalized string) {
	defer func() {
		if r := recover(); r != nil {
			normalized = ""
		}
	}()
	return normalizeFn(sql)
}
