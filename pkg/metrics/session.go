// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	LblSQLType = "sql_type"
	LblResult  = "result"
	LblOp      = "op"

	OpLock   = "lock"
	OpUnlock = "unlock"
	OpPause  = "pause"
	OpResume = "resume"
)

var (
	StmtCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "stmt_total",
			Help:      "Counter of routed statements.",
		}, []string{LblSQLType})

	RouteErrCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "route_err_total",
			Help:      "Counter of statements refused before execution.",
		}, []string{LblType})

	QueuedStmtCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "queued_stmt_total",
			Help:      "Counter of statements that wait for the previous statement of the same connection.",
		})

	QueueDepthHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "queue_depth",
			Help:      "Bucketed histogram of the execution queue length when a statement is submitted.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 ~ 512
		})

	TxnInterruptCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "txn_interrupt_total",
			Help:      "Counter of statements refused because the transaction is interrupted.",
		})

	LockCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "lock_total",
			Help:      "Counter of LOCK TABLES and UNLOCK TABLES.",
		}, []string{LblOp, LblResult})

	PreparedCloseCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "prepared_close_total",
			Help:      "Counter of prepared statements closed by the proxy when connections close.",
		})

	FlowControlCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "flow_control_total",
			Help:      "Counter of backend reads paused and resumed by flow control.",
		}, []string{LblOp})

	CancelCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelSession,
			Name:      "cancel_total",
			Help:      "Counter of cancel requests.",
		})
)
