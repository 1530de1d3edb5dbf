// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package systimemon

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval = 100 * time.Millisecond
	heartbeatTicks  = 10
)

// Monitor detects the system clock jumping backward. Idle timeouts compare wall-clock
// timestamps, so a backward jump delays them by the jumped duration.
type Monitor struct {
	lg       *zap.Logger
	now      func() time.Time
	interval time.Duration
	// OnJump is called with the jumped duration.
	OnJump func(time.Duration)
	// OnHeartbeat is called every heartbeatTicks intervals.
	OnHeartbeat func()
}

func NewMonitor(lg *zap.Logger, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		lg:       lg,
		now:      now,
		interval: defaultInterval,
	}
}

// Run blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.lg.Info("start system time monitor", zap.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	ticks := 0
	for {
		last := m.now()
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		if cur := m.now(); cur.Before(last) {
			jumped := last.Sub(cur)
			m.lg.Error("system time jump backward", zap.Time("last", last), zap.Duration("jumped", jumped))
			if m.OnJump != nil {
				m.OnJump(jumped)
			}
		}
		ticks++
		if ticks >= heartbeatTicks {
			ticks = 0
			if m.OnHeartbeat != nil {
				m.OnHeartbeat()
			}
		}
	}
}
