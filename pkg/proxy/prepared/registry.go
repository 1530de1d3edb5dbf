// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package prepared

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry tracks the ids of the statements prepared on a connection so that they can be closed
// when the connection closes.
type Registry struct {
	ids *xsync.MapOf[uint64, struct{}]
}

func NewRegistry() *Registry {
	return &Registry{
		ids: xsync.NewMapOf[uint64, struct{}](),
	}
}

func (r *Registry) Track(id uint64) {
	r.ids.Store(id, struct{}{})
}

// Untrack returns false if the id is not tracked, e.g. it's already drained.
func (r *Registry) Untrack(id uint64) bool {
	_, ok := r.ids.LoadAndDelete(id)
	return ok
}

func (r *Registry) Contains(id uint64) bool {
	_, ok := r.ids.Load(id)
	return ok
}

func (r *Registry) Len() int {
	return r.ids.Size()
}

// DrainAndClose removes every tracked id and calls closeFn on it. Each id is removed either by
// Untrack or by a drain but never both, so closeFn is never called on an id that is already
// closed by the client. Ids tracked after the drain starts may be left over.
// It returns the number of closed ids.
func (r *Registry) DrainAndClose(closeFn func(id uint64)) int {
	drained := make([]uint64, 0, r.ids.Size())
	r.ids.Range(func(id uint64, _ struct{}) bool {
		if _, ok := r.ids.LoadAndDelete(id); ok {
			drained = append(drained, id)
		}
		return true
	})
	if closeFn != nil {
		for _, id := range drained {
			closeFn(id)
		}
	}
	return len(drained)
}
