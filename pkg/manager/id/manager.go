// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package id

import "go.uber.org/atomic"

// IDManager generates unique IDs concurrently.
// Client connections and their prepared statements take IDs from different managers.
type IDManager struct {
	id atomic.Uint64
}

func NewIDManager() *IDManager {
	return &IDManager{}
}

// NewIDManagerFrom returns a manager whose first ID is start+1.
func NewIDManagerFrom(start uint64) *IDManager {
	m := &IDManager{}
	m.id.Store(start)
	return m
}

func (m *IDManager) NewID() uint64 {
	return m.id.Inc()
}

// LastID is the last allocated ID, or the start if nothing is allocated.
func (m *IDManager) LastID() uint64 {
	return m.id.Load()
}
