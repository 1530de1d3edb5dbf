// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/lib/util/retry"
	"github.com/pingcap/shardproxy/pkg/metrics"
	"go.uber.org/zap"
)

var (
	ErrUnknownNode    = errors.New("unknown data node")
	ErrClosePool      = errors.New("failed to close node pool")
	ErrConnectBackend = errors.New("failed to connect to the data node")
)

const (
	// DialTimeout is the timeout for each dial.
	DialTimeout = 3 * time.Second
	// ConnectRetryInterval is the interval between retries of getting a connection.
	ConnectRetryInterval = 100 * time.Millisecond
	// ConnectRetryCnt is the max retry count of getting a connection.
	ConnectRetryCnt = 3
	// DriverName is the database/sql driver of the data nodes.
	DriverName = "mysql"
)

type PoolOption func(*NodePool)

// WithDriver replaces the database/sql driver, which is used to run tests without MySQL.
func WithDriver(driverName string) PoolOption {
	return func(p *NodePool) {
		p.driverName = driverName
	}
}

func WithRetry(interval time.Duration, cnt uint64) PoolOption {
	return func(p *NodePool) {
		p.retryInterval = interval
		p.retryCnt = cnt
	}
}

// NodePool holds a connection pool for each data node.
type NodePool struct {
	lg            *zap.Logger
	driverName    string
	retryInterval time.Duration
	retryCnt      uint64
	dbs           map[string]*sql.DB
}

func NewNodePool(lg *zap.Logger, nodes []config.DataNode, opts ...PoolOption) (*NodePool, error) {
	p := &NodePool{
		lg:            lg,
		driverName:    DriverName,
		retryInterval: ConnectRetryInterval,
		retryCnt:      ConnectRetryCnt,
		dbs:           make(map[string]*sql.DB, len(nodes)),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, node := range nodes {
		// sql.Open doesn't connect.
		db, err := sql.Open(p.driverName, DSN(node))
		if err != nil {
			return nil, errors.Collect(ErrConnectBackend, errors.Wrapf(err, "node %s", node.Name), p.Close())
		}
		if node.MaxOpenConns > 0 {
			db.SetMaxOpenConns(node.MaxOpenConns)
			db.SetMaxIdleConns(node.MaxOpenConns)
		}
		p.dbs[node.Name] = db
	}
	return p, nil
}

// DSN builds the data source name of go-sql-driver/mysql.
func DSN(node config.DataNode) string {
	cfg := mysql.NewConfig()
	cfg.User = node.User
	cfg.Passwd = node.Password
	cfg.Net = "tcp"
	cfg.Addr = node.Addr
	cfg.DBName = node.Database
	cfg.Timeout = DialTimeout
	cfg.InterpolateParams = true
	return cfg.FormatDSN()
}

func (p *NodePool) Nodes() []string {
	nodes := make([]string, 0, len(p.dbs))
	for name := range p.dbs {
		nodes = append(nodes, name)
	}
	sort.Strings(nodes)
	return nodes
}

// Conn gets a dedicated connection to the node. Transient errors are retried, while
// errors reported by MySQL, such as access denied, are not.
func (p *NodePool) Conn(ctx context.Context, node string) (*sql.Conn, error) {
	db, ok := p.dbs[node]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNode, "node %s", node)
	}
	conn, err := retry.RetryWithData(ctx, func() (*sql.Conn, error) {
		conn, err := db.Conn(ctx)
		if err == nil {
			return conn, nil
		}
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, p.retryInterval, p.retryCnt, func(err error, d time.Duration) {
		metrics.BackendConnRetryCounter.WithLabelValues(node).Inc()
		p.lg.Warn("get backend connection failed, retrying", zap.String("node", node), zap.Duration("after", d), zap.Error(err))
	})
	if err != nil {
		return nil, errors.Wrap(ErrConnectBackend, err)
	}
	return conn, nil
}

func (p *NodePool) Close() error {
	errs := make([]error, 0, len(p.dbs))
	for name, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "node %s", name))
		}
		metrics.DelNodeValues(name)
	}
	return errors.Collect(ErrClosePool, errs...)
}
