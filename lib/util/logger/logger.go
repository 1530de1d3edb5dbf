// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/shardproxy/lib/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type testingLog struct {
	*testing.T
	sync.Mutex
	buf bytes.Buffer
}

func (t *testingLog) Write(b []byte) (int, error) {
	t.Lock()
	defer t.Unlock()
	t.Logf("%s", b)
	return t.buf.Write(b)
}

func (t *testingLog) String() string {
	t.Lock()
	defer t.Unlock()
	return t.buf.String()
}

// CreateLoggerForTest returns both the logger and its content.
func CreateLoggerForTest(t *testing.T) (*zap.Logger, fmt.Stringer) {
	log := &testingLog{T: t}
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(log),
		zap.DebugLevel,
	)).Named(t.Name()), log
}

func buildEncoder(cfg *config.Log) zapcore.Encoder {
	encfg := zap.NewProductionEncoderConfig()
	encfg.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(t.Format("2006/01/02 15:04:05.000 -07:00"))
	}
	encfg.EncodeLevel = func(l zapcore.Level, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(l.CapitalString())
	}
	if cfg.Encoder == "json" {
		return zapcore.NewJSONEncoder(encfg)
	}
	return zapcore.NewConsoleEncoder(encfg)
}

// BuildLogger creates the main logger. The returned syncer must be closed when the process exits.
func BuildLogger(cfg *config.Log) (*zap.Logger, *AtomicWriteSyncer, zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, nil, level, err
	}
	syncer := &AtomicWriteSyncer{}
	if err := syncer.Rebuild(&cfg.LogFile); err != nil {
		return nil, nil, level, err
	}
	lg := zap.New(zapcore.NewCore(buildEncoder(cfg), syncer, level),
		zap.ErrorOutput(syncer), zap.AddStacktrace(zapcore.FatalLevel), zap.AddCaller())
	return lg, syncer, level, nil
}
