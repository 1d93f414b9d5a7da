// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wait implements the ordered queue of blocked threads used
// by every synchronization primitive (spec.md §3 "Wait list", §4.3).
// A List does not itself touch the scheduler's ready tables or arm
// timers: it only tracks residency and ordering. The broader blocking
// contract (arm a timeout, release the primitive's lock, call
// do_schedule, reacquire) is implemented once, generically, in
// package sched, which is the only code that needs both a List and a
// Scheduler.
//
// Grounded on the nsync CV/waiter queue (other_examples' nsync
// cv.go/waiter.go): a small doubly-linked list of waiters ordered
// either by arrival (FIFO) or by priority, with Insert/Remove/Head
// primitives and nothing else.
package wait

import (
	"github.com/blueos-go/kernelcore/object"
	"github.com/blueos-go/kernelcore/thread"
)

// Mode selects a List's wake-order discipline (spec.md §3).
type Mode int

const (
	FIFO Mode = iota
	Priority
)

// List is an ordered queue of blocked threads.
type List struct {
	mode  Mode
	items object.List
}

// New returns an empty List using the given ordering mode.
func New(mode Mode) *List {
	l := &List{mode: mode}
	l.items.Init()
	return l
}

// Empty reports whether any thread is queued.
func (l *List) Empty() bool {
	return l.items.Empty()
}

// Len returns the number of queued threads.
func (l *List) Len() int {
	return l.items.Len()
}

// Insert transitions t to Suspended with the given substate and
// enqueues it according to l's ordering mode: FIFO appends: Priority
// inserts before the first thread with a strictly lower current
// priority (numerically greater), keeping ties in arrival order,
// matching spec.md §3 "ordered...by thread's current priority".
func (l *List) Insert(t *thread.Thread, reason thread.SuspendReason) {
	t.SetState(thread.Suspended, reason)
	node := t.SchedNode()

	if l.mode == FIFO {
		l.items.PushBack(node)
		return
	}

	var mark *object.Node
	l.items.Each(func(n *object.Node) bool {
		other := n.Owner.(*thread.Thread)
		if other.Priority.Current > t.Priority.Current {
			mark = n
			return false
		}
		return true
	})
	if mark != nil {
		l.items.InsertBefore(node, mark)
	} else {
		l.items.PushBack(node)
	}
}

// Remove unlinks t from the list, if present. It is always safe to
// call even if t is not currently queued (e.g. a timeout callback
// racing a wakeup).
func (l *List) Remove(t *thread.Thread) {
	if l.Contains(t) {
		l.items.Remove(t.SchedNode())
	}
}

// Contains reports whether t is currently queued on l.
func (l *List) Contains(t *thread.Thread) bool {
	node := t.SchedNode()
	found := false
	l.items.Each(func(n *object.Node) bool {
		if n == node {
			found = true
			return false
		}
		return true
	})
	return found
}

// Head returns the first thread in wake order, or nil if empty.
func (l *List) Head() *thread.Thread {
	n := l.items.Front()
	if n == nil {
		return nil
	}
	return n.Owner.(*thread.Thread)
}

// PopFront removes and returns the first thread in wake order, or nil
// if empty. This is the "wake_one" primitive building block; callers
// are responsible for making the returned thread Ready via the
// scheduler.
func (l *List) PopFront() *thread.Thread {
	t := l.Head()
	if t == nil {
		return nil
	}
	l.Remove(t)
	return t
}

// PopAll removes and returns every queued thread, in wake order.
func (l *List) PopAll() []*thread.Thread {
	var out []*thread.Thread
	for {
		t := l.PopFront()
		if t == nil {
			return out
		}
		out = append(out, t)
	}
}

// RemoveWhere unlinks and returns every queued thread for which pred
// reports true, in wake order. Used by primitives that may need to
// wake more than just the head waiter at once, e.g. an event whose
// newly-set bits satisfy several different AND/OR wait masks
// simultaneously (spec.md §4.5).
func (l *List) RemoveWhere(pred func(*thread.Thread) bool) []*thread.Thread {
	var match []*object.Node
	l.items.Each(func(n *object.Node) bool {
		if pred(n.Owner.(*thread.Thread)) {
			match = append(match, n)
		}
		return true
	})
	out := make([]*thread.Thread, 0, len(match))
	for _, n := range match {
		l.items.Remove(n)
		out = append(out, n.Owner.(*thread.Thread))
	}
	return out
}

// HighestPriority re-derives the list's notion of "highest waiter
// priority", used by the mutex's priority-inheritance cache (spec.md
// §4.4). Returns 0xFF if empty.
func (l *List) HighestPriority() uint8 {
	h := l.Head()
	if h == nil {
		return 0xFF
	}
	if l.mode == Priority {
		return h.Priority.Current
	}
	best := uint8(0xFF)
	l.items.Each(func(n *object.Node) bool {
		p := n.Owner.(*thread.Thread).Priority.Current
		if p < best {
			best = p
		}
		return true
	})
	return best
}
