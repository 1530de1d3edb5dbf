// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/pingcap/shardproxy/lib/util/systimemon"
	"github.com/pingcap/shardproxy/lib/util/waitgroup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

const (
	ModuleProxy = "shardproxy"
)

// metrics labels.
const (
	LabelServer  = "server"
	LabelSession = "session"
	LabelBackend = "backend"
	LabelMonitor = "monitor"
)

var registerOnce sync.Once

// MetricsManager registers the metrics and runs the background monitors.
type MetricsManager struct {
	wg     waitgroup.WaitGroup
	cancel context.CancelFunc
	lg     *zap.Logger
}

func NewMetricsManager() *MetricsManager {
	return &MetricsManager{}
}

func (mm *MetricsManager) Init(ctx context.Context, lg *zap.Logger) {
	mm.lg = lg
	registerOnce.Do(registerProxyMetrics)
	ctx, mm.cancel = context.WithCancel(ctx)
	mm.setupMonitor(ctx)
}

func (mm *MetricsManager) setupMonitor(ctx context.Context) {
	// Enable the mutex profile, 1/10 of mutex blocking event sampling.
	runtime.SetMutexProfileFraction(10)
	MaxProcsGauge.Set(float64(runtime.GOMAXPROCS(0)))
	mon := systimemon.NewMonitor(mm.lg.Named("systime"), nil)
	mon.OnJump = func(_ time.Duration) {
		TimeJumpBackCounter.Inc()
	}
	// The monitor beats every second, and keep-alive is increased every 5s.
	beats := 0
	mon.OnHeartbeat = func() {
		beats++
		if beats >= 5 {
			beats = 0
			KeepAliveCounter.Inc()
		}
	}
	mm.wg.RunWithRecover(func() {
		mon.Run(ctx)
	}, nil, mm.lg)
}

func (mm *MetricsManager) Close() {
	if mm.cancel != nil {
		mm.cancel()
	}
	mm.wg.Wait()
}

func registerProxyMetrics() {
	prometheus.DefaultRegisterer.Unregister(collectors.NewGoCollector())
	prometheus.MustRegister(collectors.NewGoCollector(collectors.WithGoCollections(collectors.GoRuntimeMetricsCollection | collectors.GoRuntimeMemStatsCollection)))

	for _, c := range []prometheus.Collector{
		ConnGauge,
		MaxProcsGauge,
		TimeJumpBackCounter,
		KeepAliveCounter,
		ServerEventCounter,
		ServerErrCounter,
		StmtCounter,
		RouteErrCounter,
		QueuedStmtCounter,
		QueueDepthHistogram,
		TxnInterruptCounter,
		LockCounter,
		PreparedCloseCounter,
		FlowControlCounter,
		CancelCounter,
		BackendQueryDurationHistogram,
		BackendErrCounter,
		BackendConnRetryCounter,
	} {
		prometheus.MustRegister(c)
	}
}

// ReadCounter reads the value from the counter. It is only used for testing.
func ReadCounter(counter prometheus.Counter) (int, error) {
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		return 0, err
	}
	return int(metric.Counter.GetValue()), nil
}

// ReadGauge reads the value from the gauge. It is only used for testing.
func ReadGauge(gauge prometheus.Gauge) (int, error) {
	var metric dto.Metric
	if err := gauge.Write(&metric); err != nil {
		return 0, err
	}
	return int(metric.Gauge.GetValue()), nil
}

// ReadHistogramCount reads the sample count of the histogram. It is only used for testing.
func ReadHistogramCount(observer prometheus.Observer) (uint64, error) {
	var metric dto.Metric
	if err := observer.(prometheus.Metric).Write(&metric); err != nil {
		return 0, err
	}
	return metric.Histogram.GetSampleCount(), nil
}
