// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package flowctl

import (
	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/pkg/metrics"
	"go.uber.org/zap"
)

// Target is a backend connection whose reads can be paused.
type Target interface {
	// PendingBytes is the size of the results read from the backend but not written to the client yet.
	PendingBytes() int64
	Paused() bool
	SetPaused(paused bool)
}

// Controller decides whether to pause the reads of the backend connections of a session.
type Controller interface {
	Check(targets map[string]Target)
}

// WatermarkController pauses a target at the high watermark and resumes it at the low watermark.
type WatermarkController struct {
	lg  *zap.Logger
	cfg config.FlowControl
}

var _ Controller = (*WatermarkController)(nil)

func NewWatermarkController(lg *zap.Logger, cfg config.FlowControl) *WatermarkController {
	return &WatermarkController{
		lg:  lg,
		cfg: cfg,
	}
}

func (c *WatermarkController) Check(targets map[string]Target) {
	if !c.cfg.Enabled {
		return
	}
	for node, target := range targets {
		pending := target.PendingBytes()
		switch paused := target.Paused(); {
		case !paused && pending >= c.cfg.HighWatermark:
			target.SetPaused(true)
			metrics.FlowControlCounter.WithLabelValues(metrics.OpPause).Inc()
			c.lg.Debug("pause reading from backend", zap.String("node", node), zap.Int64("pending", pending))
		case paused && pending <= c.cfg.LowWatermark:
			target.SetPaused(false)
			metrics.FlowControlCounter.WithLabelValues(metrics.OpResume).Inc()
			c.lg.Debug("resume reading from backend", zap.String("node", node), zap.Int64("pending", pending))
		}
	}
}

// NopController never pauses.
type NopController struct{}

func (NopController) Check(map[string]Target) {}
