// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/stretchr/testify/require"
)

var testProxyConfig = Config{
	Proxy: ProxyServer{
		Addr:           "0.0.0.0:8066",
		MaxConnections: 100,
	},
	API: API{
		Addr: "0.0.0.0:9066",
	},
	Log: Log{
		Level:   "info",
		Encoder: "json",
		LogFile: LogFile{
			Filename:   ".",
			MaxSize:    10,
			MaxDays:    1,
			MaxBackups: 1,
		},
	},
	System: System{
		Charset:       "utf8mb4",
		AuthTimeout:   10 * time.Second,
		IdleTimeout:   time.Hour,
		CancelWorkers: 4,
		FlowControl: FlowControl{
			Enabled:       true,
			HighWatermark: 1024,
			LowWatermark:  512,
		},
	},
	Schemas: []Schema{
		{
			Name:     "db1",
			DataNode: "dn1",
			Tables: []Table{
				{Name: "orders", DataNodes: []string{"dn1", "dn2"}},
				{Name: "region", DataNodes: []string{"dn1", "dn2"}, Global: true},
			},
		},
		{
			Name:           "db2",
			DataNode:       "dn2",
			CheckSQLSchema: true,
		},
	},
	DataNodes: []DataNode{
		{Name: "dn1", Addr: "127.0.0.1:3306", Database: "db1_0", User: "root", MaxOpenConns: 8},
		{Name: "dn2", Addr: "127.0.0.1:3307", Database: "db1_1", User: "root"},
	},
	Users: []User{
		{Name: "app", DefaultSchema: "db1", Schemas: []string{"db1", "db2"}},
	},
}

func TestProxyConfig(t *testing.T) {
	data, err := testProxyConfig.ToBytes()
	require.NoError(t, err)
	var cfg Config
	require.NoError(t, toml.Unmarshal(data, &cfg))
	require.Equal(t, testProxyConfig, cfg)

	newCfg, err := NewConfigFromBytes(data)
	require.NoError(t, err)
	require.Equal(t, testProxyConfig, *newCfg)
}

func TestProxyCheck(t *testing.T) {
	testcases := []struct {
		pre  func(*testing.T, *Config)
		post func(*testing.T, *Config)
		err  error
	}{
		{
			pre: func(t *testing.T, c *Config) {
				c.System.AuthTimeout = 0
				c.System.CancelWorkers = -1
				c.System.Charset = ""
			},
			post: func(t *testing.T, c *Config) {
				require.Equal(t, DefaultAuthTimeout, c.System.AuthTimeout)
				require.Equal(t, DefaultCancelWorkers, c.System.CancelWorkers)
				require.Equal(t, DefaultCharset, c.System.Charset)
			},
		},
		{
			pre: func(t *testing.T, c *Config) {
				c.System.FlowControl.LowWatermark = 2048
			},
			err: ErrInvalidConfigValue,
		},
		{
			pre: func(t *testing.T, c *Config) {
				c.Schemas[0].Tables[0].DataNodes = []string{"dn3"}
			},
			err: ErrInvalidConfigValue,
		},
		{
			pre: func(t *testing.T, c *Config) {
				c.Schemas[1].Name = "db1"
			},
			err: ErrInvalidConfigValue,
		},
		{
			pre: func(t *testing.T, c *Config) {
				c.DataNodes = append(c.DataNodes, DataNode{Name: "dn1", Addr: "127.0.0.1:3308"})
			},
			err: ErrInvalidConfigValue,
		},
		{
			pre: func(t *testing.T, c *Config) {
				c.Users[0].DefaultSchema = "db3"
			},
			err: ErrInvalidConfigValue,
		},
		{
			pre: func(t *testing.T, c *Config) {
				c.Schemas = append(c.Schemas, Schema{Name: "db3"})
			},
			err: ErrInvalidConfigValue,
		},
	}
	for i, tc := range testcases {
		cfg := testProxyConfig.Clone()
		tc.pre(t, cfg)
		err := cfg.Check()
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err, "case %d", i)
			continue
		}
		require.NoError(t, err, "case %d", i)
		tc.post(t, cfg)
	}
}

func TestCloneConfig(t *testing.T) {
	cfg := testProxyConfig.Clone()
	require.Equal(t, testProxyConfig, *cfg)
	cfg.Schemas[0].Tables[0].DataNodes[0] = "dn9"
	cfg.Users[0].Schemas[0] = "db9"
	require.Equal(t, "dn1", testProxyConfig.Schemas[0].Tables[0].DataNodes[0])
	require.Equal(t, "db1", testProxyConfig.Users[0].Schemas[0])
}

func TestConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[data-node]]
name = "dn1"
addr = "127.0.0.1:3306"

[[schema]]
name = "db1"
data-node = "dn1"
`), 0644))
	cfg, err := NewConfigFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "db1", cfg.Schemas[0].Name)
	require.Equal(t, DefaultAuthTimeout, cfg.System.AuthTimeout)
	require.Equal(t, "0.0.0.0:8066", cfg.Proxy.Addr)

	_, err = NewConfigFromFile(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[[schema]]\nname = \"db1\"\n"), 0644))
	_, err = NewConfigFromFile(path)
	require.True(t, errors.Is(err, ErrInvalidConfigValue))
}

func TestSchemaLookup(t *testing.T) {
	s := testProxyConfig.Schemas[0]
	tbl, ok := s.Table("ORDERS")
	require.True(t, ok)
	require.Equal(t, "orders", tbl.Name)
	_, ok = s.Table("missing")
	require.False(t, ok)
	require.Equal(t, []string{"dn1", "dn2"}, s.DataNodeNames())
}
