// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/pkg/metrics"
	"github.com/pingcap/shardproxy/pkg/sctx"
	"github.com/pingcap/shardproxy/pkg/server/api"
	"github.com/stretchr/testify/require"
)

type nopWriter struct{}

func (nopWriter) WriteResultSet(string, []string, [][]string) error { return nil }
func (nopWriter) WriteOK(string, uint64, uint64) error { return nil }
func (nopWriter) WriteError(error) error { return nil }

func testConfig() config.Config {
	cfg := config.NewConfig()
	cfg.Proxy.Addr = "127.0.0.1:0"
	cfg.API.Addr = "127.0.0.1:0"
	cfg.Schemas = []config.Schema{{Name: "db1", DataNode: "dn1"}}
	cfg.DataNodes = []config.DataNode{{Name: "dn1", Addr: "127.0.0.1:3306", Database: "db1"}}
	cfg.Users = []config.User{{Name: "u1", DefaultSchema: "db1"}}
	return *cfg
}

func TestServer(t *testing.T) {
	srv, err := NewServer(context.Background(), &sctx.Context{
		Overlay:       testConfig(),
		AdvertiseAddr: "10.0.0.1:8066",
	})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:8066", srv.AdvertiseAddr())
	require.Equal(t, "db1", srv.Config().Schemas[0].Name)

	conn1 := srv.NewConnection("u1", "127.0.0.1:1000", nopWriter{})
	conn2 := srv.NewConnection("u1", "127.0.0.1:1001", nopWriter{})
	require.NotEqual(t, conn1.ConnectionID(), conn2.ConnectionID())
	require.Equal(t, 2, srv.ConnCount())
	conn1.SetSchema("db1")
	infos := srv.Connections()
	require.Len(t, infos, 2)
	for _, info := range infos {
		require.Equal(t, "u1", info.User)
		require.True(t, info.Autocommit)
		if info.ID == conn1.ConnectionID() {
			require.Equal(t, "db1", info.Schema)
		}
	}

	require.NoError(t, srv.CancelConn(conn1.ConnectionID(), "test"))
	require.True(t, errors.Is(srv.CancelConn(100, "test"), api.ErrConnNotFound))
	require.NoError(t, srv.CloseConn(conn1.ConnectionID(), "test"))
	require.True(t, conn1.IsClosed())
	require.True(t, errors.Is(srv.CloseConn(conn1.ConnectionID(), "test"), api.ErrConnNotFound))
	require.Equal(t, 1, srv.ConnCount())

	require.NoError(t, srv.Close())
	require.True(t, conn2.IsClosed())
	require.Zero(t, srv.ConnCount())
}

func TestCloseIdleConns(t *testing.T) {
	cfg := testConfig()
	cfg.System.AuthTimeout = 10 * time.Millisecond
	srv, err := NewServer(context.Background(), &sctx.Context{Overlay: cfg})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
	})

	authed := srv.NewConnection("u1", "127.0.0.1:1000", nopWriter{})
	authed.SetAuthenticated(true)
	unauthed := srv.NewConnection("u1", "127.0.0.1:1001", nopWriter{})
	require.Eventually(t, func() bool {
		return unauthed.IsClosed()
	}, 5*time.Second, 10*time.Millisecond)
	require.False(t, authed.IsClosed())
	require.Equal(t, 1, srv.ConnCount())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	b, err := cfg.ToBytes()
	require.NoError(t, err)
	configFile := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configFile, b, 0o644))

	srv, err := NewServer(context.Background(), &sctx.Context{ConfigFile: configFile})
	require.NoError(t, err)
	require.Equal(t, cfg.DataNodes, srv.Config().DataNodes)
	require.NoError(t, srv.Close())

	startErrs, err := metrics.ReadCounter(metrics.ServerErrCounter.WithLabelValues(metrics.EventStart))
	require.NoError(t, err)
	_, err = NewServer(context.Background(), &sctx.Context{ConfigFile: filepath.Join(dir, "missing.toml")})
	require.True(t, errors.Is(err, ErrLoadConfig))
	count, err := metrics.ReadCounter(metrics.ServerErrCounter.WithLabelValues(metrics.EventStart))
	require.NoError(t, err)
	require.Equal(t, startErrs+1, count)

	cfg.Users = []config.User{{Name: "u1", DefaultSchema: "db2"}}
	_, err = NewServer(context.Background(), &sctx.Context{Overlay: cfg})
	require.True(t, errors.Is(err, ErrLoadConfig))
	require.True(t, errors.Is(err, config.ErrInvalidConfigValue))
}
