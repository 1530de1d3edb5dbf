// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"

	"github.com/pingcap/shardproxy/lib/util/errors"
)

// Schema is a logical database that the clients see.
type Schema struct {
	Name string `yaml:"name" toml:"name" json:"name"`
	// DataNode stores the tables that are not listed in Tables.
	DataNode string `yaml:"data-node,omitempty" toml:"data-node,omitempty" json:"data-node,omitempty"`
	// CheckSQLSchema allows statements to reference tables of other schemas explicitly, e.g. `db2.t`,
	// while the connection is using this schema.
	CheckSQLSchema bool    `yaml:"check-sql-schema,omitempty" toml:"check-sql-schema,omitempty" json:"check-sql-schema,omitempty"`
	Tables         []Table `yaml:"table,omitempty" toml:"table,omitempty" json:"table,omitempty"`
}

// Table lists the data nodes that store the table.
type Table struct {
	Name      string   `yaml:"name" toml:"name" json:"name"`
	DataNodes []string `yaml:"data-nodes" toml:"data-nodes" json:"data-nodes"`
	// Global tables are replicated to every node: reads go to one node and writes go to all.
	Global bool `yaml:"global,omitempty" toml:"global,omitempty" json:"global,omitempty"`
}

// DataNode is a physical database on a MySQL instance.
type DataNode struct {
	Name         string `yaml:"name" toml:"name" json:"name"`
	Addr         string `yaml:"addr" toml:"addr" json:"addr"`
	Database     string `yaml:"database,omitempty" toml:"database,omitempty" json:"database,omitempty"`
	User         string `yaml:"user,omitempty" toml:"user,omitempty" json:"user,omitempty"`
	Password     string `yaml:"password,omitempty" toml:"password,omitempty" json:"password,omitempty"`
	MaxOpenConns int    `yaml:"max-open-conns,omitempty" toml:"max-open-conns,omitempty" json:"max-open-conns,omitempty"`
}

// User is a frontend user of the proxy.
type User struct {
	Name          string   `yaml:"name" toml:"name" json:"name"`
	Password      string   `yaml:"password,omitempty" toml:"password,omitempty" json:"password,omitempty"`
	DefaultSchema string   `yaml:"default-schema,omitempty" toml:"default-schema,omitempty" json:"default-schema,omitempty"`
	Schemas       []string `yaml:"schemas,omitempty" toml:"schemas,omitempty" json:"schemas,omitempty"`
}

// Table returns the table config, case-insensitively.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// DataNodeNames returns all the data nodes of the schema in a stable order, the default one first.
func (s *Schema) DataNodeNames() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, 1+len(s.Tables))
	add := func(name string) {
		if _, ok := seen[name]; ok || name == "" {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	add(s.DataNode)
	for _, t := range s.Tables {
		for _, n := range t.DataNodes {
			add(n)
		}
	}
	return names
}

func (s *Schema) check(nodes map[string]struct{}) error {
	if s.Name == "" {
		return errors.Wrapf(ErrInvalidConfigValue, "schema name is empty")
	}
	if s.DataNode == "" && len(s.Tables) == 0 {
		return errors.Wrapf(ErrInvalidConfigValue, "schema %s has neither data-node nor tables", s.Name)
	}
	if s.DataNode != "" {
		if _, ok := nodes[s.DataNode]; !ok {
			return errors.Wrapf(ErrInvalidConfigValue, "data-node %s of schema %s is not defined", s.DataNode, s.Name)
		}
	}
	for _, t := range s.Tables {
		if len(t.DataNodes) == 0 {
			return errors.Wrapf(ErrInvalidConfigValue, "table %s.%s has no data-nodes", s.Name, t.Name)
		}
		for _, n := range t.DataNodes {
			if _, ok := nodes[n]; !ok {
				return errors.Wrapf(ErrInvalidConfigValue, "data-node %s of table %s.%s is not defined", n, s.Name, t.Name)
			}
		}
	}
	return nil
}

func (s Schema) clone() Schema {
	tables := make([]Table, 0, len(s.Tables))
	for _, t := range s.Tables {
		t.DataNodes = append([]string(nil), t.DataNodes...)
		tables = append(tables, t)
	}
	s.Tables = tables
	return s
}
