// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/internal/kspin"
	"github.com/blueos-go/kernelcore/thread"
	"github.com/blueos-go/kernelcore/timer"
	"github.com/blueos-go/kernelcore/wait"
)

// Block implements the blocking contract shared by every
// synchronization primitive (spec.md §4.3): arm an optional timeout,
// enqueue the calling thread on wl, release the primitive's lock,
// context-switch away, and on return reacquire the lock and report why
// the thread woke. Primitives call this instead of reimplementing the
// arm/release/switch/reacquire dance themselves; they only ever touch
// wl and t, never the scheduler's run queues directly.
//
// The caller must hold lock at entry and must not touch t or wl again
// until Block returns (lock reacquired). lock is also the lock the
// timeout callback below acquires before touching wl, since that
// callback runs from the wheel's tick path rather than from the
// blocked thread's own goroutine: Block does not own the primitive,
// and this is the one point it must reach back into the primitive's
// locking rather than the wait list's.
//
// hardWheel is the timer wheel timeoutTicks is armed against; pass nil
// with timeoutTicks==thread.Forever for an untimed wait. reason is the
// Suspended substate recorded for diagnostics; flag is the
// cancellation policy checked both before blocking and (by future
// signal-delivery code) while blocked.
func Block(
	sch *Scheduler,
	wl *wait.List,
	t *thread.Thread,
	reason thread.SuspendReason,
	flag thread.SuspendFlag,
	timeoutTicks uint32,
	hardWheel *timer.Wheel,
	lock *kspin.Lock,
) errs.Status {
	t.SetSuspendFlag(flag)
	if flag != thread.Uninterruptible && t.ConsumeSignal() {
		return errs.EINTR
	}

	// spec.md §4.3 boundary B1: a zero timeout on an unsatisfied wait
	// reports ETIMEOUT synchronously, without ever touching wl or the
	// wheel. This also sidesteps a real deadlock: timer.Wheel.Insert
	// with initTicks==0 runs the timeout callback inline, and that
	// callback re-acquires lock — which the caller is still holding.
	if timeoutTicks == 0 {
		return errs.ETIMEOUT
	}

	wl.Insert(t, reason)

	var tm *timer.Timer
	if timeoutTicks != thread.Forever {
		tm = timer.New(func(param any) {
			waking := param.(*thread.Thread)
			lock.Acquire()
			woke := false
			if wl.Contains(waking) {
				wl.Remove(waking)
				waking.SetErr(errs.ETIMEOUT)
				sch.QueueReady(waking)
				woke = true
			}
			lock.Release()
			if woke {
				sch.RequestPreempt(waking.CurrentCPU)
			}
		}, t, false)
		hardWheel.Insert(tm, timeoutTicks)
	}

	lock.Release()
	sch.DoSchedule(t.CurrentCPU)
	lock.Acquire()

	status := t.Err()
	if tm != nil {
		hardWheel.Stop(tm)
	}
	return status
}

// WakeOne pops the highest-priority (or longest-waiting, depending on
// wl's mode) thread off wl, records status as its wake reason, and
// makes it Ready (spec.md §4.3's "wake" half of the contract: give,
// set, send, signal). Returns the woken thread, or nil if wl was
// empty. WakeOne never itself triggers a reschedule: the caller (a
// give/signal/send operation) knows its own CPU and must call
// Scheduler.RequestPreempt on it afterward if an immediate preemption
// check is wanted.
func WakeOne(sch *Scheduler, wl *wait.List, status errs.Status) *thread.Thread {
	t := wl.PopFront()
	if t == nil {
		return nil
	}
	t.SetErr(status)
	sch.QueueReady(t)
	return t
}

// WakeAll pops every thread off wl, in wake order, recording status as
// the wake reason for each and making each Ready. Used by every
// primitive's Detach/Delete path to flush its waiters.
func WakeAll(sch *Scheduler, wl *wait.List, status errs.Status) []*thread.Thread {
	woken := wl.PopAll()
	for _, t := range woken {
		t.SetErr(status)
		sch.QueueReady(t)
	}
	return woken
}
