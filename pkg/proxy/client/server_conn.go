// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/waitgroup"
	"github.com/pingcap/shardproxy/pkg/manager/id"
	"github.com/pingcap/shardproxy/pkg/metrics"
	"github.com/pingcap/shardproxy/pkg/proxy/backend"
	"github.com/pingcap/shardproxy/pkg/proxy/execqueue"
	"github.com/pingcap/shardproxy/pkg/proxy/flowctl"
	"github.com/pingcap/shardproxy/pkg/proxy/prepared"
	"github.com/pingcap/shardproxy/pkg/proxy/route"
	"github.com/pingcap/shardproxy/pkg/proxy/schema"
	"github.com/pingcap/shardproxy/pkg/proxy/session"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// SessionFactory creates the backend session owned by a connection.
type SessionFactory func(lg *zap.Logger, state *session.State) backend.Session

// LoadDataHandler holds the state of a running LOAD DATA, if any.
type LoadDataHandler interface {
	Clear()
}

// Options are the collaborators of a connection. They are shared by all the connections
// except the backend session, which is created for each connection by NewSession.
type Options struct {
	IDManager  *id.IDManager
	System     *config.System
	Catalog    schema.Catalog
	Users      schema.UserCatalog
	Router     route.Router
	NewSession SessionFactory
	// FlowController is optional.
	FlowController flowctl.Controller
	// Responder answers the metadata queries of some GUI clients. If it's nil, these queries
	// are routed to the data nodes like any other statement.
	Responder MetadataResponder
	// PreparedCloser closes the prepared statements left over when the connection closes. It's optional.
	PreparedCloser func(connID, stmtID uint64)
	// LoadDataHandler is optional.
	LoadDataHandler LoadDataHandler
	// CancelPool runs the cancel requests. If it's nil, cancel requests run on their own goroutines.
	CancelPool *waitgroup.WaitGroupPool
	// Now is used by tests.
	Now func() time.Time
}

// ServerConnection is a client connection. It resolves and routes the statements,
// serializes their execution on the backend session and tracks the session state.
type ServerConnection struct {
	lg         *zap.Logger
	opts       Options
	ctx        context.Context
	cancel     context.CancelFunc
	wg         waitgroup.WaitGroup
	connID     uint64
	user       string
	clientAddr string

	schema        atomic.String
	charset       atomic.String
	authenticated atomic.Bool
	closed        atomic.Bool
	// Unix milliseconds.
	lastReadTime  atomic.Int64
	lastWriteTime atomic.Int64
	executeSQLID  atomic.Uint64

	state    *session.State
	queue    *execqueue.Queue
	prepared *prepared.Registry
	session  backend.Session
}

var _ route.ConnInfo = (*ServerConnection)(nil)

func NewServerConnection(lg *zap.Logger, user, clientAddr string, opts Options) *ServerConnection {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FlowController == nil {
		opts.FlowController = flowctl.NopController{}
	}
	if opts.System == nil {
		opts.System = &config.NewConfig().System
	}
	connID := opts.IDManager.NewID()
	lg = lg.With(zap.Uint64("connID", connID), zap.String("user", user), zap.String("client_addr", clientAddr))
	ctx, cancel := context.WithCancel(context.Background())
	c := &ServerConnection{
		lg:         lg,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		connID:     connID,
		user:       user,
		clientAddr: clientAddr,
		state:      session.NewState(),
		queue:      execqueue.NewQueue(),
		prepared:   prepared.NewRegistry(),
	}
	c.charset.Store(opts.System.Charset)
	c.session = opts.NewSession(lg.Named("session"), c.state)
	now := opts.Now().UnixMilli()
	c.lastReadTime.Store(now)
	c.lastWriteTime.Store(now)
	metrics.ConnGauge.Inc()
	return c
}

func (c *ServerConnection) ConnectionID() uint64 {
	return c.connID
}

func (c *ServerConnection) User() string {
	return c.user
}

func (c *ServerConnection) ClientAddr() string {
	return c.clientAddr
}

// Schema returns the current schema, or an empty string if no schema is selected.
func (c *ServerConnection) Schema() string {
	return c.schema.Load()
}

func (c *ServerConnection) SetSchema(schema string) {
	c.schema.Store(schema)
}

func (c *ServerConnection) Charset() string {
	return c.charset.Load()
}

func (c *ServerConnection) SetCharset(charset string) {
	c.charset.Store(charset)
}

func (c *ServerConnection) State() *session.State {
	return c.state
}

func (c *ServerConnection) Session() backend.Session {
	return c.session
}

// ExecuteSQLID is the number of statements dispatched to the backend session.
func (c *ServerConnection) ExecuteSQLID() uint64 {
	return c.executeSQLID.Load()
}

// PendingStatements is the number of statements that are executing or queued.
func (c *ServerConnection) PendingStatements() int {
	return c.queue.Len()
}

func (c *ServerConnection) IsClosed() bool {
	return c.closed.Load()
}

func (c *ServerConnection) IsAuthenticated() bool {
	return c.authenticated.Load()
}

func (c *ServerConnection) SetAuthenticated(authenticated bool) {
	c.authenticated.Store(authenticated)
}

// OnRead records that the client sent something.
func (c *ServerConnection) OnRead() {
	c.lastReadTime.Store(c.opts.Now().UnixMilli())
}

// OnWrite records that something is written to the client.
func (c *ServerConnection) OnWrite() {
	c.lastWriteTime.Store(c.opts.Now().UnixMilli())
}

// Ping is a COM_PING, which is read and answered.
func (c *ServerConnection) Ping() {
	c.OnRead()
	c.OnWrite()
}

// Heartbeat is a keepalive from the client that needs no response.
func (c *ServerConnection) Heartbeat() {
	c.OnRead()
}

// IsIdleTimeout checks whether the connection is idle for too long. A connection that isn't
// authenticated yet has a much shorter deadline.
func (c *ServerConnection) IsIdleTimeout(now time.Time) bool {
	timeout := c.opts.System.IdleTimeout
	if !c.authenticated.Load() {
		timeout = c.opts.System.AuthTimeout
	}
	last := max(c.lastReadTime.Load(), c.lastWriteTime.Load())
	return now.UnixMilli() > last+timeout.Milliseconds()
}

func (c *ServerConnection) String() string {
	return fmt.Sprintf("ServerConnection [id=%d, schema=%s, host=%s, user=%s, txIsolation=%s, autocommit=%t]",
		c.connID, c.Schema(), c.clientAddr, c.user, c.state.TxIsolation(), c.state.Autocommit())
}
