// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ipc implements the counting semaphore, event flag group,
// mailbox, and message queue primitives (spec.md §4.5): every one of
// them shares the same give/take shape and the generic sched.Block
// contract, differing only in what "available" means for each.
//
// Grounded on spec.md §4.5's description of these four primitives as
// variations on one wait/wake pattern, and on the donor's style of a
// small struct guarded by exactly one spinlock with no blocking calls
// made while that lock is held (nodefs.Inode, fuse/lockme.go).
package ipc

import (
	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/internal/kspin"
	"github.com/blueos-go/kernelcore/object"
	"github.com/blueos-go/kernelcore/sched"
	"github.com/blueos-go/kernelcore/thread"
	"github.com/blueos-go/kernelcore/timer"
	"github.com/blueos-go/kernelcore/wait"
)

// Semaphore is a counting semaphore with an optional upper bound.
type Semaphore struct {
	object.Header

	mu      kspin.Lock
	count   int32
	max     int32 // 0 means unbounded
	waiters *wait.List

	sch   *sched.Scheduler
	wheel *timer.Wheel
}

// NewSemaphore constructs a Semaphore with the given initial count.
// max bounds Give (0 means unbounded).
func NewSemaphore(sch *sched.Scheduler, wheel *timer.Wheel, initial, max int32) *Semaphore {
	s := &Semaphore{
		count:   initial,
		max:     max,
		waiters: wait.New(wait.Priority),
		sch:     sch,
		wheel:   wheel,
	}
	return s
}

// Take blocks up to timeoutTicks (thread.Forever for no limit) until
// the count is positive, then decrements it.
func (s *Semaphore) Take(t *thread.Thread, timeoutTicks uint32) errs.Status {
	s.mu.Acquire()
	if s.count > 0 {
		s.count--
		s.mu.Release()
		return errs.OK
	}
	reason := thread.SuspendWait
	if timeoutTicks != thread.Forever {
		reason = thread.SuspendTimedWait
	}
	status := sched.Block(s.sch, s.waiters, t, reason, thread.Uninterruptible, timeoutTicks, s.wheel, &s.mu)
	s.mu.Release()
	return status
}

// Give increments the count, or hands it directly to the
// highest-priority waiter if one is blocked in Take. Returns
// errs.EFULL if max is set and already reached with nobody waiting.
func (s *Semaphore) Give() errs.Status {
	s.mu.Acquire()
	woke := sched.WakeOne(s.sch, s.waiters, errs.OK)
	var status errs.Status
	if woke == nil {
		if s.max > 0 && s.count >= s.max {
			status = errs.EFULL
		} else {
			s.count++
		}
	}
	s.mu.Release()
	if woke != nil {
		s.sch.RequestPreempt(woke.CurrentCPU)
	}
	return status
}

// Count returns the current count.
func (s *Semaphore) Count() int32 {
	s.mu.Acquire()
	defer s.mu.Release()
	return s.count
}

// Detach unregisters s from the object registry, waking any thread
// blocked in Take with errs.EINTR first (spec.md §4.5/§7: detach/
// delete of a primitive with active waiters wakes each with EINTR,
// callers must check).
func (s *Semaphore) Detach(reg *object.Registry) {
	s.mu.Acquire()
	woken := sched.WakeAll(s.sch, s.waiters, errs.EINTR)
	s.mu.Release()

	for _, t := range woken {
		s.sch.RequestPreempt(t.CurrentCPU)
	}
	reg.Detach(&s.Header)
}

// Delete detaches s (waking any waiters, per Detach) and reports
// errs.EPERM if it was registered static.
func (s *Semaphore) Delete(reg *object.Registry) errs.Status {
	s.mu.Acquire()
	woken := sched.WakeAll(s.sch, s.waiters, errs.EINTR)
	s.mu.Release()

	for _, t := range woken {
		s.sch.RequestPreempt(t.CurrentCPU)
	}
	return reg.Delete(&s.Header)
}
