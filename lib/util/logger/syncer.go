// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"os"
	"sync"

	"github.com/pingcap/shardproxy/lib/config"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogMaxSize = 300 // MB
)

var _ zapcore.WriteSyncer = (*AtomicWriteSyncer)(nil)

// lumberjack.Logger needs to be closed, stdout does not.
type closableSyncer interface {
	zapcore.WriteSyncer
	Close() error
}

type rotateLogger struct {
	*lumberjack.Logger
}

func (lg *rotateLogger) Sync() error {
	return nil
}

type stdoutLogger struct {
	zapcore.WriteSyncer
}

func (lg *stdoutLogger) Close() error {
	return nil
}

// AtomicWriteSyncer is a WriteSyncer whose output can be replaced online.
type AtomicWriteSyncer struct {
	sync.RWMutex
	output closableSyncer
}

// Rebuild writes to a rotated file if the file name is set, otherwise to stdout.
func (ws *AtomicWriteSyncer) Rebuild(cfg *config.LogFile) error {
	var output closableSyncer
	if len(cfg.Filename) > 0 {
		if st, err := os.Stat(cfg.Filename); err == nil && st.IsDir() {
			return errors.New("can't use directory as log file name")
		}
		maxSize := cfg.MaxSize
		if maxSize == 0 {
			maxSize = defaultLogMaxSize
		}
		output = &rotateLogger{&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxDays,
			LocalTime:  true,
		}}
	} else {
		stdout, _, err := zap.Open("stdout")
		if err != nil {
			return errors.WithStack(err)
		}
		output = &stdoutLogger{stdout}
	}
	return ws.setOutput(output)
}

func (ws *AtomicWriteSyncer) Write(p []byte) (n int, err error) {
	ws.RLock()
	if ws.output != nil {
		n, err = ws.output.Write(p)
	}
	ws.RUnlock()
	return
}

func (ws *AtomicWriteSyncer) Sync() error {
	var err error
	ws.RLock()
	if ws.output != nil {
		err = ws.output.Sync()
	}
	ws.RUnlock()
	return err
}

func (ws *AtomicWriteSyncer) setOutput(output closableSyncer) error {
	var err error
	ws.Lock()
	if ws.output != nil {
		err = ws.output.Close()
	}
	ws.output = output
	ws.Unlock()
	return err
}

func (ws *AtomicWriteSyncer) Close() error {
	return ws.setOutput(nil)
}
