// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"math/bits"

	"github.com/blueos-go/kernelcore/object"
	"github.com/blueos-go/kernelcore/thread"
)

// maxPriorities is the ceiling on PRIO_MAX (spec.md §3): one bit per
// priority level in the group bitmap, so a single uint64 covers every
// configuration this port supports.
const maxPriorities = 64

// priorityTable is one CPU's set of Ready-thread run queues, one
// object.List per priority level plus a bitmap of non-empty levels
// (spec.md §4.2 "Priority table"). Finding the highest-priority
// non-empty level is a single trailing-zero-count, not a scan.
type priorityTable struct {
	prioMax uint8
	lists   []object.List
	group   uint64
}

func newPriorityTable(prioMax uint8) *priorityTable {
	if int(prioMax) > maxPriorities {
		panic("sched: prioMax exceeds the bitmap's supported range")
	}
	pt := &priorityTable{
		prioMax: prioMax,
		lists:   make([]object.List, prioMax),
	}
	for i := range pt.lists {
		pt.lists[i].Init()
	}
	return pt
}

// insert adds t to its current-priority run. Threads with a pending
// yield hint go to the tail of their run; everyone else goes to the
// head, matching spec.md §4.2's fairness rule for otherwise-equal
// priority threads.
func (pt *priorityTable) insert(t *thread.Thread) {
	p := t.Priority.Current
	list := &pt.lists[p]
	if t.YieldPending() {
		list.PushBack(t.SchedNode())
	} else {
		list.PushFront(t.SchedNode())
	}
	t.SetYieldPending(false)
	pt.group |= 1 << p
}

// remove unlinks t from whichever run it currently occupies. p is the
// priority it was inserted under (callers must pass the value recorded
// at insert time, since Priority.Current may have since changed).
func (pt *priorityTable) remove(t *thread.Thread, p uint8) {
	list := &pt.lists[p]
	list.Remove(t.SchedNode())
	if list.Empty() {
		pt.group &^= 1 << p
	}
}

// highest returns the lowest numeric (highest logical) non-empty
// priority level and true, or (0, false) if every run is empty.
func (pt *priorityTable) highest() (uint8, bool) {
	if pt.group == 0 {
		return 0, false
	}
	return uint8(bits.TrailingZeros64(pt.group)), true
}

// peek returns the head thread of the highest non-empty run without
// removing it, or nil.
func (pt *priorityTable) peek() *thread.Thread {
	p, ok := pt.highest()
	if !ok {
		return nil
	}
	n := pt.lists[p].Front()
	if n == nil {
		return nil
	}
	return n.Owner.(*thread.Thread)
}
