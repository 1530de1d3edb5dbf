// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"runtime"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/pingcap/shardproxy/pkg/util/versioninfo"
)

// HealthInfo is the response of the health check.
type HealthInfo struct {
	Version     string `json:"version"`
	GitHash     string `json:"git_hash"`
	GoVersion   string `json:"go_version"`
	Connections int    `json:"connections"`
}

func (h *Server) DebugHealth(c *gin.Context) {
	status := http.StatusOK
	if h.isClosing.Load() {
		status = http.StatusBadGateway
	}
	info := HealthInfo{
		Version:   versioninfo.ShardProxyVersion,
		GitHash:   versioninfo.ShardProxyGitHash,
		GoVersion: runtime.Version(),
	}
	if h.mgr.ConnMgr != nil {
		info.Connections = h.mgr.ConnMgr.ConnCount()
	}
	c.JSON(status, info)
}

func (h *Server) registerDebug(group *gin.RouterGroup) {
	group.GET("/health", h.DebugHealth)
	pprof.RouteRegister(group, "/pprof")
}
