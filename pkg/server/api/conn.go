// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/shardproxy/lib/util/errors"
)

var ErrConnNotFound = errors.New("connection not found")

// ConnInfo describes a client connection.
type ConnInfo struct {
	ID           uint64 `json:"id"`
	User         string `json:"user"`
	ClientAddr   string `json:"client_addr"`
	Schema       string `json:"schema"`
	Autocommit   bool   `json:"autocommit"`
	Locked       bool   `json:"locked"`
	Interrupted  bool   `json:"interrupted"`
	ExecuteSQLID uint64 `json:"execute_sql_id"`
}

// ConnManager manages the client connections.
type ConnManager interface {
	ConnCount() int
	Connections() []ConnInfo
	// CancelConn kills the running statement of the connection.
	CancelConn(id uint64, sponsor string) error
	// CloseConn closes the connection.
	CloseConn(id uint64, reason string) error
}

func (h *Server) ConnList(c *gin.Context) {
	c.JSON(http.StatusOK, h.mgr.ConnMgr.Connections())
}

func (h *Server) ConnCancel(c *gin.Context) {
	id, ok := h.connID(c)
	if !ok {
		return
	}
	sponsor := c.DefaultQuery("sponsor", "api")
	h.handleConnErr(c, h.mgr.ConnMgr.CancelConn(id, sponsor))
}

func (h *Server) ConnClose(c *gin.Context) {
	id, ok := h.connID(c)
	if !ok {
		return
	}
	h.handleConnErr(c, h.mgr.ConnMgr.CloseConn(id, "closed by api"))
}

func (h *Server) connID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Errors = append(c.Errors, &gin.Error{
			Err:  err,
			Type: gin.ErrorTypePrivate,
		})
		c.JSON(http.StatusBadRequest, CreateJsonResp(http.StatusBadRequest, "invalid connection id"))
		return 0, false
	}
	return id, true
}

func (h *Server) handleConnErr(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, CreateSuccessJsonResp())
	case errors.Is(err, ErrConnNotFound):
		c.JSON(http.StatusNotFound, CreateJsonResp(http.StatusNotFound, err.Error()))
	default:
		c.Errors = append(c.Errors, &gin.Error{
			Err:  err,
			Type: gin.ErrorTypePrivate,
		})
		c.JSON(http.StatusInternalServerError, CreateJsonResp(http.StatusInternalServerError, err.Error()))
	}
}

func (h *Server) registerConn(group *gin.RouterGroup) {
	group.GET("/", h.ConnList)
	group.POST("/:id/cancel", h.ConnCancel)
	group.DELETE("/:id", h.ConnClose)
}
