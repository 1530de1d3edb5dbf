// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/shardproxy/lib/config"
)

// The passwords are never exposed.
func redactConfig(cfg *config.Config) *config.Config {
	cfg = cfg.Clone()
	for i := range cfg.DataNodes {
		if cfg.DataNodes[i].Password != "" {
			cfg.DataNodes[i].Password = "******"
		}
	}
	for i := range cfg.Users {
		if cfg.Users[i].Password != "" {
			cfg.Users[i].Password = "******"
		}
	}
	return cfg
}

func (h *Server) ConfigGet(c *gin.Context) {
	cfg := redactConfig(h.mgr.CfgGetter.Config())
	switch c.Query("format") {
	case "json":
		c.JSON(http.StatusOK, cfg)
	default:
		c.TOML(http.StatusOK, cfg)
	}
}

func (h *Server) registerConfig(group *gin.RouterGroup) {
	group.GET("/", h.ConfigGet)
}
