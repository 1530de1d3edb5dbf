// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
)

// Catalog looks up the logical schemas.
type Catalog interface {
	Schema(name string) (*config.Schema, bool)
	// SchemaNames returns the schemas in the order they are declared.
	SchemaNames() []string
}

// UserCatalog looks up the users.
type UserCatalog interface {
	DefaultSchema(user string) (string, bool)
}

// ConfigCatalog is both a Catalog and a UserCatalog built from the config.
// It's immutable, so a new one is built when the config changes.
type ConfigCatalog struct {
	schemas map[string]*config.Schema
	names   []string
	users   map[string]string
}

var _ Catalog = (*ConfigCatalog)(nil)
var _ UserCatalog = (*ConfigCatalog)(nil)

func NewConfigCatalog(cfg *config.Config) *ConfigCatalog {
	cfg = cfg.Clone()
	c := &ConfigCatalog{
		schemas: make(map[string]*config.Schema, len(cfg.Schemas)),
		names:   make([]string, 0, len(cfg.Schemas)),
		users:   make(map[string]string, len(cfg.Users)),
	}
	for i := range cfg.Schemas {
		s := &cfg.Schemas[i]
		c.schemas[s.Name] = s
		c.names = append(c.names, s.Name)
	}
	for _, u := range cfg.Users {
		if u.DefaultSchema != "" {
			c.users[u.Name] = u.DefaultSchema
		}
	}
	return c
}

func (c *ConfigCatalog) Schema(name string) (*config.Schema, bool) {
	s, ok := c.schemas[name]
	return s, ok
}

func (c *ConfigCatalog) SchemaNames() []string {
	return c.names
}

func (c *ConfigCatalog) DefaultSchema(user string) (string, bool) {
	s, ok := c.users[user]
	return s, ok
}

// DetectDefault guesses the schema of a statement sent before any schema is selected.
// DML and DDL use the schema that qualifies their tables, if it exists.
// Statements that don't touch table data go to the first schema so that clients can still
// run SHOW or SET before USE. Anything else is left to the caller.
func DetectDefault(sql string, tp stmt.Type, catalog Catalog) (string, bool) {
	switch tp {
	case stmt.Select, stmt.Insert, stmt.Update, stmt.Delete, stmt.Replace, stmt.DDL:
		analysis, err := Analyze(sql)
		if err != nil {
			return "", false
		}
		for _, ti := range analysis.Tables {
			if ti.Schema == "" {
				continue
			}
			if _, ok := catalog.Schema(ti.Schema); ok {
				return ti.Schema, true
			}
		}
	case stmt.Show, stmt.Use, stmt.Explain, stmt.Set, stmt.Help, stmt.Describe:
		if names := catalog.SchemaNames(); len(names) > 0 {
			return names[0], true
		}
	}
	return "", false
}
