// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mutex implements the kernel's priority-inheritance mutex
// (spec.md §4.4): recursive (nested) acquisition by the owner up to a
// configurable cap, single-hop priority inheritance from the highest
// waiter to the current owner, and an optional priority ceiling that
// raises the owner on acquisition, applied in addition to inheritance.
//
// Grounded on spec.md §4.4's description of mutex_info.taken_list /
// pending_to living on the Thread (package thread), and on the
// donor's nodefs.Inode locking discipline of "one spinlock guards one
// small struct, never call out to user code while holding it" — here
// the context switch inside sched.Block happens with the mutex's own
// lock released, for the same reason.
package mutex

import (
	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/internal/kspin"
	"github.com/blueos-go/kernelcore/object"
	"github.com/blueos-go/kernelcore/sched"
	"github.com/blueos-go/kernelcore/thread"
	"github.com/blueos-go/kernelcore/timer"
	"github.com/blueos-go/kernelcore/wait"
)

// NoCeiling marks a Mutex as using plain priority inheritance rather
// than the priority-ceiling protocol.
const NoCeiling uint8 = 0xFF

// DefaultMaxNest bounds how many times the owner may recursively
// re-acquire a mutex it already holds (spec.md §4.4).
const DefaultMaxNest = 255

// Mutex is a priority-inheritance (or, with SetCeiling, priority
// ceiling) mutual-exclusion lock.
type Mutex struct {
	object.Header

	mu kspin.Lock

	owner   *thread.Thread
	depth   int
	maxNest int
	ceiling uint8

	waiters *wait.List
	node    object.Node // links into owner's Mutexes.TakenList while held

	sch   *sched.Scheduler
	wheel *timer.Wheel // hard wheel, used to time LockTimed waits
}

// New constructs an unowned Mutex. sch and wheel back LockTimed's
// blocking contract; maxNest caps recursive acquisition (0 means
// DefaultMaxNest).
func New(sch *sched.Scheduler, wheel *timer.Wheel, maxNest uint8) *Mutex {
	if maxNest == 0 {
		maxNest = DefaultMaxNest
	}
	m := &Mutex{
		maxNest: int(maxNest),
		ceiling: NoCeiling,
		waiters: wait.New(wait.Priority),
		sch:     sch,
		wheel:   wheel,
	}
	m.node.Owner = m
	return m
}

// SetCeiling switches m to the priority-ceiling protocol: every
// acquisition immediately raises the owner's current priority to
// ceiling (if that outranks its existing priority), instead of
// inheriting only from whoever happens to contend for m. Pass
// NoCeiling to return to plain inheritance. Returns errs.EINVAL,
// leaving the ceiling unchanged, if m is currently owned.
func (m *Mutex) SetCeiling(ceiling uint8) errs.Status {
	m.mu.Acquire()
	defer m.mu.Release()
	if m.owner != nil {
		return errs.EINVAL
	}
	m.ceiling = ceiling
	return errs.OK
}

// Lock blocks the calling thread until it owns m (spec.md §4.4).
func (m *Mutex) Lock(t *thread.Thread) errs.Status {
	return m.LockTimed(t, thread.Forever)
}

// TryLock acquires m without blocking, returning errs.EAGAIN if m is
// held by another thread.
func (m *Mutex) TryLock(t *thread.Thread) errs.Status {
	m.mu.Acquire()
	defer m.mu.Release()

	if m.owner == nil {
		m.acquireLocked(t)
		return errs.OK
	}
	if m.owner == t {
		return m.recurseLocked()
	}
	return errs.EAGAIN
}

// LockTimed blocks up to timeoutTicks (thread.Forever for no limit)
// trying to acquire m, boosting the current owner's priority if the
// calling thread outranks it (spec.md §4.4's single-hop inheritance).
func (m *Mutex) LockTimed(t *thread.Thread, timeoutTicks uint32) errs.Status {
	m.mu.Acquire()

	if m.owner == nil {
		m.acquireLocked(t)
		m.mu.Release()
		return errs.OK
	}
	if m.owner == t {
		status := m.recurseLocked()
		m.mu.Release()
		return status
	}

	t.Mutexes.PendingTo = m
	reason := thread.SuspendWait
	if timeoutTicks != thread.Forever {
		reason = thread.SuspendTimedWait
	}

	// Compute the boost before Block enqueues t, since Block owns
	// m.waiters' insertion itself.
	m.boostOwnerLocked(t.Priority.Current)

	status := sched.Block(m.sch, m.waiters, t, reason, thread.Uninterruptible, timeoutTicks, m.wheel, &m.mu)
	t.Mutexes.PendingTo = nil

	// On success ownership was handed directly to t by Unlock,
	// which already performed acquireLocked(t); nothing left to do. On
	// timeout/EINTR, t is already removed from m.waiters by Block/the
	// timeout callback, and the previous owner's boost may now be
	// higher than necessary: recompute it to the remaining waiters.
	if status != errs.OK {
		m.recomputeOwnerBoostLocked()
	}

	m.mu.Release()
	return status
}

// Unlock releases m, restoring the caller's own priority and handing
// ownership directly to the highest-priority waiter, if any (spec.md
// §4.4). Returns errs.EPERM if the calling thread does not own m.
func (m *Mutex) Unlock(t *thread.Thread) errs.Status {
	m.mu.Acquire()

	if m.owner != t {
		m.mu.Release()
		return errs.EPERM
	}
	if m.depth > 1 {
		m.depth--
		m.mu.Release()
		return errs.OK
	}

	t.Mutexes.TakenList.Remove(&m.node)
	m.owner = nil
	m.depth = 0
	m.restoreOwnPriorityLocked(t)

	var handedTo *thread.Thread
	if !m.waiters.Empty() {
		handedTo = sched.WakeOne(m.sch, m.waiters, errs.OK)
		m.acquireLocked(handedTo)
		m.recomputeOwnerBoostLocked()
	}

	callerCPU := t.CurrentCPU
	m.mu.Release()

	if handedTo != nil {
		m.sch.RequestPreempt(callerCPU)
	}
	return errs.OK
}

// Detach unregisters m from the kernel object registry without
// requiring it be unowned, mirroring object.Registry.Detach's "remove
// from the catalog, caller is responsible for quiescing users" model.
// Any thread blocked in LockTimed is woken with errs.EINTR (spec.md
// §4.4/§7: detach/delete of a primitive with active waiters wakes each
// with EINTR, callers must check), and if m is currently held, its
// node is unlinked from the owner's Mutexes.TakenList so Unlock/
// restoreOwnPriorityLocked never walks a dangling entry.
func (m *Mutex) Detach(reg *object.Registry) {
	m.mu.Acquire()
	if m.owner != nil {
		m.owner.Mutexes.TakenList.Remove(&m.node)
		m.owner = nil
		m.depth = 0
	}
	woken := sched.WakeAll(m.sch, m.waiters, errs.EINTR)
	m.mu.Release()

	for _, t := range woken {
		m.sch.RequestPreempt(t.CurrentCPU)
	}
	reg.Detach(&m.Header)
}

// Delete detaches m (waking any waiters, per Detach) and reports
// errs.EPERM if it was registered static (spec.md's "static objects
// cannot be deleted at runtime").
func (m *Mutex) Delete(reg *object.Registry) errs.Status {
	m.mu.Acquire()
	if m.owner != nil {
		m.owner.Mutexes.TakenList.Remove(&m.node)
		m.owner = nil
		m.depth = 0
	}
	woken := sched.WakeAll(m.sch, m.waiters, errs.EINTR)
	m.mu.Release()

	for _, t := range woken {
		m.sch.RequestPreempt(t.CurrentCPU)
	}
	return reg.Delete(&m.Header)
}

// acquireLocked makes t the owner of an unowned m, depth 1, linked
// into t's taken-mutex list.
func (m *Mutex) acquireLocked(t *thread.Thread) {
	m.owner = t
	m.depth = 1
	t.Mutexes.TakenList.PushBack(&m.node)
	if m.ceiling != NoCeiling && m.ceiling < t.Priority.Current {
		m.sch.ChangePriority(t, m.ceiling)
	}
}

// recurseLocked handles a nested Lock/TryLock by the current owner.
func (m *Mutex) recurseLocked() errs.Status {
	if m.depth >= m.maxNest {
		return errs.ENOSPC
	}
	m.depth++
	return errs.OK
}

// boostOwnerLocked raises m.owner's current priority to match
// newWaiterPrio — the priority of a thread about to be enqueued on
// m.waiters — if that outranks both the owner's own current priority
// and every already-queued waiter (spec.md §4.4 "single-hop
// propagation": a mutex only ever boosts its direct owner, never
// walks a chain of mutexes beyond that one hop). Called before the
// new waiter is actually inserted.
func (m *Mutex) boostOwnerLocked(newWaiterPrio uint8) {
	if m.owner == nil {
		return
	}
	hp := newWaiterPrio
	if !m.waiters.Empty() {
		if existing := m.waiters.HighestPriority(); existing < hp {
			hp = existing
		}
	}
	if hp < m.owner.Priority.Current {
		m.sch.ChangePriority(m.owner, hp)
	}
}

// recomputeOwnerBoostLocked re-derives the current owner's inherited
// priority from whoever is still waiting, used after a waiter leaves
// m.waiters without m changing hands (timeout, signal) or right after
// a handoff hands m to a new owner who may still have other waiters
// behind it.
func (m *Mutex) recomputeOwnerBoostLocked() {
	if m.owner == nil {
		return
	}
	target := m.owner.Priority.Base
	if !m.waiters.Empty() {
		if hp := m.waiters.HighestPriority(); hp < target {
			target = hp
		}
	}
	if target != m.owner.Priority.Current {
		m.sch.ChangePriority(m.owner, target)
	}
}

// restoreOwnPriorityLocked recomputes t's priority once it no longer
// owns m: the floor is base ceilinged by whatever mutexes remain in
// t.Mutexes.TakenList (spec.md §4.4 Unlock: "recompute owner's
// priority from base ∪ max priority of remaining taken mutexes"), not
// a bare reset to base. Membership in TakenList is exclusive to t (no
// other thread can simultaneously own, and therefore scan, any mutex
// in it), so acquiring each remaining mutex's own lock here to read
// its ceiling/waiters cannot race against a reverse-order acquisition
// elsewhere.
func (m *Mutex) restoreOwnPriorityLocked(t *thread.Thread) {
	target := t.Priority.Base
	t.Mutexes.TakenList.Each(func(n *object.Node) bool {
		other, ok := n.Owner.(*Mutex)
		if !ok || other == m {
			return true
		}
		other.mu.Acquire()
		if other.ceiling != NoCeiling && other.ceiling < target {
			target = other.ceiling
		}
		if !other.waiters.Empty() {
			if hp := other.waiters.HighestPriority(); hp < target {
				target = hp
			}
		}
		other.mu.Release()
		return true
	})
	if target != t.Priority.Current {
		m.sch.ChangePriority(t, target)
	}
}
