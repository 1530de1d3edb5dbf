// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	LblNode = "node"
)

var (
	BackendQueryDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelBackend,
			Name:      "query_duration_seconds",
			Help:      "Bucketed histogram of the statement duration on each data node.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20), // 0.5ms ~ 262s
		}, []string{LblNode, LblSQLType})

	BackendErrCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelBackend,
			Name:      "err_total",
			Help:      "Counter of statement errors on each data node.",
		}, []string{LblNode})

	BackendConnRetryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleProxy,
			Subsystem: LabelBackend,
			Name:      "conn_retry_total",
			Help:      "Counter of retries to get a connection to a data node.",
		}, []string{LblNode})
)

// DelNodeValues removes the metrics of a data node that no longer exists.
func DelNodeValues(node string) {
	labels := prometheus.Labels{LblNode: node}
	BackendQueryDurationHistogram.DeletePartialMatch(labels)
	BackendErrCounter.DeletePartialMatch(labels)
	BackendConnRetryCounter.DeletePartialMatch(labels)
}
