// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package execqueue

import (
	"sync"

	glist "github.com/bahlo/generic-list-go"
	"github.com/pingcap/shardproxy/pkg/proxy/route"
	"github.com/pingcap/shardproxy/pkg/proxy/stmt"
)

// Entry is a routed statement waiting for execution.
type Entry struct {
	SQL   string
	Type  stmt.Type
	Route *route.Result
}

// Decision tells the submitter whether it should dispatch the entry itself.
type Decision int

const (
	// ExecuteNow means the queue was empty and the submitter must dispatch the entry.
	ExecuteNow Decision = iota
	// Queued means another entry is in flight and the completion of the entries ahead
	// will dispatch it.
	Queued
)

func (d Decision) String() string {
	if d == ExecuteNow {
		return "execute-now"
	}
	return "queued"
}

// Queue serializes the statements of a connection. The head of the list is the entry in flight,
// so at most one entry is executing at any time and entries are executed in the submitting order.
// Neither Submit nor OnCompleted waits for the execution.
type Queue struct {
	mu      sync.Mutex
	entries *glist.List[Entry]
}

func NewQueue() *Queue {
	return &Queue{
		entries: glist.New[Entry](),
	}
}

// Submit appends the entry. The caller must dispatch it if the decision is ExecuteNow.
func (q *Queue) Submit(entry Entry) Decision {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries.PushBack(entry)
	if q.entries.Len() == 1 {
		return ExecuteNow
	}
	return Queued
}

// OnCompleted removes the entry in flight and returns the next one, which the caller must dispatch.
// It's a no-op on an empty queue, which happens when the queue is drained before the completion.
func (q *Queue) OnCompleted() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if head := q.entries.Front(); head != nil {
		q.entries.Remove(head)
	}
	if next := q.entries.Front(); next != nil {
		return next.Value, true
	}
	return Entry{}, false
}

// Len includes the entry in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// Drain discards all the entries and returns how many are discarded.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.entries.Len()
	q.entries.Init()
	return n
}
