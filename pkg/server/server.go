// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"runtime"
	"time"

	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/lib/util/logger"
	"github.com/pingcap/shardproxy/lib/util/sys"
	"github.com/pingcap/shardproxy/lib/util/waitgroup"
	"github.com/pingcap/shardproxy/pkg/manager/id"
	"github.com/pingcap/shardproxy/pkg/metrics"
	"github.com/pingcap/shardproxy/pkg/proxy/backend"
	"github.com/pingcap/shardproxy/pkg/proxy/client"
	"github.com/pingcap/shardproxy/pkg/proxy/flowctl"
	"github.com/pingcap/shardproxy/pkg/proxy/route"
	"github.com/pingcap/shardproxy/pkg/proxy/schema"
	"github.com/pingcap/shardproxy/pkg/proxy/session"
	"github.com/pingcap/shardproxy/pkg/sctx"
	"github.com/pingcap/shardproxy/pkg/server/api"
	"github.com/pingcap/shardproxy/pkg/util/versioninfo"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	idleCheckInterval = time.Second
	// cancelPoolIdle is how long an idle worker of the cancel pool lives.
	cancelPoolIdle = time.Minute
)

var _ api.ConnManager = (*Server)(nil)
var _ api.ConfigGetter = (*Server)(nil)

type Server struct {
	wg     waitgroup.WaitGroup
	cancel context.CancelFunc
	lg     *zap.Logger
	cfg    *config.Config
	// The address that clients should use to connect to this proxy.
	advertiseAddr string
	// managers
	MetricsManager *metrics.MetricsManager
	IDManager      *id.IDManager
	LogSyncer      *logger.AtomicWriteSyncer
	// sharding
	Catalog        *schema.ConfigCatalog
	Router         route.Router
	NodePool       *backend.NodePool
	FlowController flowctl.Controller
	CancelPool     *waitgroup.WaitGroupPool
	// HTTP server
	APIServer *api.Server

	conns *xsync.MapOf[uint64, *client.ServerConnection]
}

func NewServer(ctx context.Context, sctx *sctx.Context) (srv *Server, err error) {
	srv = &Server{
		MetricsManager: metrics.NewMetricsManager(),
		IDManager:      id.NewIDManager(),
		conns:          xsync.NewMapOf[uint64, *client.ServerConnection](),
	}
	ready := atomic.NewBool(false)
	defer func() {
		if err != nil {
			metrics.ServerErrCounter.WithLabelValues(metrics.EventStart).Inc()
		}
	}()

	if srv.cfg, err = loadConfig(sctx); err != nil {
		return nil, err
	}
	cfg := srv.cfg

	// set up logger
	var lg *zap.Logger
	if lg, srv.LogSyncer, _, err = logger.BuildLogger(&cfg.Log); err != nil {
		return nil, errors.WithStack(err)
	}
	srv.lg = lg
	srv.advertiseAddr = sctx.AdvertiseAddr
	if srv.advertiseAddr == "" {
		srv.advertiseAddr = sys.AdvertiseAddr(cfg.Proxy.Addr)
	}
	printInfo(lg, srv.advertiseAddr)

	// Release everything that is set up when anything fails.
	defer func() {
		if err != nil {
			_ = srv.Close()
			srv = nil
		}
	}()

	ctx, srv.cancel = context.WithCancel(ctx)

	// setup metrics
	srv.MetricsManager.Init(ctx, lg.Named("metrics"))
	metrics.ServerEventCounter.WithLabelValues(metrics.EventStart).Inc()

	// setup sharding
	srv.Catalog = schema.NewConfigCatalog(cfg)
	srv.Router = route.NewTableRouter(lg.Named("router"))
	if srv.NodePool, err = backend.NewNodePool(lg.Named("pool"), cfg.DataNodes); err != nil {
		return
	}
	if cfg.System.FlowControl.Enabled {
		srv.FlowController = flowctl.NewWatermarkController(lg.Named("flowctl"), cfg.System.FlowControl)
	} else {
		srv.FlowController = flowctl.NopController{}
	}
	srv.CancelPool = waitgroup.NewWaitGroupPool(cfg.System.CancelWorkers, cancelPoolIdle)

	// setup http
	if srv.APIServer, err = api.NewServer(cfg.API, lg.Named("api"), api.Managers{
		CfgGetter: srv,
		ConnMgr:   srv,
	}, ready); err != nil {
		return
	}

	srv.wg.RunWithRecover(func() {
		srv.checkIdleConns(ctx)
	}, nil, lg)

	ready.Toggle()
	return
}

func loadConfig(sctx *sctx.Context) (*config.Config, error) {
	var cfg *config.Config
	if sctx.ConfigFile != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(sctx.ConfigFile); err != nil {
			return nil, errors.Wrap(ErrLoadConfig, err)
		}
	} else {
		cfg = sctx.Overlay.Clone()
	}
	if err := cfg.Check(); err != nil {
		return nil, errors.Wrap(ErrLoadConfig, err)
	}
	return cfg, nil
}

func printInfo(lg *zap.Logger, advertiseAddr string) {
	fields := []zap.Field{
		zap.String("Release Version", versioninfo.ShardProxyVersion),
		zap.String("Git Commit Hash", versioninfo.ShardProxyGitHash),
		zap.String("Git Branch", versioninfo.ShardProxyGitBranch),
		zap.String("UTC Build Time", versioninfo.ShardProxyBuildTS),
		zap.String("GoVersion", runtime.Version()),
		zap.String("OS", runtime.GOOS),
		zap.String("Arch", runtime.GOARCH),
		zap.String("Advertise Address", advertiseAddr),
	}
	lg.Info("Welcome to ShardProxy.", fields...)
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) AdvertiseAddr() string {
	return s.advertiseAddr
}

// NewConnection creates a client connection whose results are written to writer.
func (s *Server) NewConnection(user, clientAddr string, writer backend.ResultWriter) *client.ServerConnection {
	lg := s.lg.Named("conn")
	conn := client.NewServerConnection(lg, user, clientAddr, client.Options{
		IDManager: s.IDManager,
		System:    &s.cfg.System,
		Catalog:   s.Catalog,
		Users:     s.Catalog,
		Router:    s.Router,
		NewSession: func(lg *zap.Logger, state *session.State) backend.Session {
			return backend.NewNonBlockingSession(lg, s.NodePool, state, writer, backend.WithFlowController(s.FlowController))
		},
		FlowController: s.FlowController,
		Responder:      &client.EmptyResultResponder{Writer: writer},
		PreparedCloser: func(connID, stmtID uint64) {
			lg.Debug("close prepared statement", zap.Uint64("connID", connID), zap.Uint64("stmt_id", stmtID))
		},
		CancelPool: s.CancelPool,
	})
	s.conns.Store(conn.ConnectionID(), conn)
	return conn
}

func (s *Server) ConnCount() int {
	return s.conns.Size()
}

func (s *Server) Connections() []api.ConnInfo {
	infos := make([]api.ConnInfo, 0, s.conns.Size())
	s.conns.Range(func(_ uint64, conn *client.ServerConnection) bool {
		state := conn.State()
		infos = append(infos, api.ConnInfo{
			ID:           conn.ConnectionID(),
			User:         conn.User(),
			ClientAddr:   conn.ClientAddr(),
			Schema:       conn.Schema(),
			Autocommit:   state.Autocommit(),
			Locked:       state.IsLocked(),
			Interrupted:  state.TxInterrupted(),
			ExecuteSQLID: conn.ExecuteSQLID(),
		})
		return true
	})
	return infos
}

func (s *Server) CancelConn(id uint64, sponsor string) error {
	conn, ok := s.conns.Load(id)
	if !ok {
		return errors.Wrapf(api.ErrConnNotFound, "connection %d", id)
	}
	conn.Cancel(sponsor)
	return nil
}

func (s *Server) CloseConn(id uint64, reason string) error {
	conn, ok := s.conns.LoadAndDelete(id)
	if !ok {
		return errors.Wrapf(api.ErrConnNotFound, "connection %d", id)
	}
	return conn.Close(reason)
}

func (s *Server) checkIdleConns(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.conns.Range(func(id uint64, conn *client.ServerConnection) bool {
				if conn.IsIdleTimeout(now) {
					metrics.ServerEventCounter.WithLabelValues(metrics.EventIdleClose).Inc()
					if err := s.CloseConn(id, "idle timeout"); err != nil {
						metrics.ServerErrCounter.WithLabelValues(metrics.EventIdleClose).Inc()
						s.lg.Warn("close idle connection failed", zap.Uint64("connID", id), zap.Error(err))
					}
				}
				return true
			})
		}
	}
}

func (s *Server) Close() error {
	metrics.ServerEventCounter.WithLabelValues(metrics.EventClose).Inc()

	errs := make([]error, 0, 4)
	if s.APIServer != nil {
		s.APIServer.PreClose()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.conns.Range(func(id uint64, _ *client.ServerConnection) bool {
		errs = append(errs, s.CloseConn(id, "server shutdown"))
		return true
	})
	if s.CancelPool != nil {
		s.CancelPool.Close()
	}
	if s.APIServer != nil {
		errs = append(errs, s.APIServer.Close())
	}
	if s.NodePool != nil {
		errs = append(errs, s.NodePool.Close())
	}
	if s.MetricsManager != nil {
		s.MetricsManager.Close()
	}
	if s.LogSyncer != nil {
		errs = append(errs, s.LogSyncer.Close())
	}
	err := errors.Collect(ErrCloseServer, errs...)
	if err != nil {
		metrics.ServerErrCounter.WithLabelValues(metrics.EventClose).Inc()
	}
	return err
}
