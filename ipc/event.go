// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

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

// WaitMode selects how an Event.Wait request is satisfied against the
// bits it requests (spec.md §4.5: "AND/OR").
type WaitMode uint8

const (
	WaitAny WaitMode = iota // satisfied once any requested bit is set
	WaitAll                 // satisfied only once every requested bit is set
)

// ClearOption controls whether a satisfied Wait consumes the bits it
// matched.
type ClearOption uint8

const (
	NoClear ClearOption = iota
	ClearOnExit
)

// Event is a group of up to 32 sticky flags, waited on with either
// AND or OR semantics and optionally consumed on a successful wait
// (spec.md §4.5's "Event (AND/OR/CLEAR)").
type Event struct {
	object.Header

	mu      kspin.Lock
	flags   uint32
	waiters *wait.List

	sch   *sched.Scheduler
	wheel *timer.Wheel
}

// NewEvent constructs an Event with all flags initially clear.
func NewEvent(sch *sched.Scheduler, wheel *timer.Wheel) *Event {
	return &Event{
		waiters: wait.New(wait.Priority),
		sch:     sch,
		wheel:   wheel,
	}
}

func satisfied(flags, mask uint32, mode WaitMode) bool {
	if mode == WaitAll {
		return flags&mask == mask
	}
	return flags&mask != 0
}

// Wait blocks up to timeoutTicks until mask is satisfied under mode,
// returning the matched bits (mask ∩ flags at the moment of wake) and
// errs.OK, or 0 and a failure status. If clear is ClearOnExit, the
// matched bits are cleared from the event as part of waking.
func (e *Event) Wait(t *thread.Thread, mask uint32, mode WaitMode, clear ClearOption, timeoutTicks uint32) (uint32, errs.Status) {
	e.mu.Acquire()

	if satisfied(e.flags, mask, mode) {
		matched := e.flags & mask
		if clear == ClearOnExit {
			e.flags &^= matched
		}
		e.mu.Release()
		return matched, errs.OK
	}

	t.EventMask = mask
	t.EventMode = uint32(mode)
	t.EventClearOnExit = clear == ClearOnExit

	reason := thread.SuspendWait
	if timeoutTicks != thread.Forever {
		reason = thread.SuspendTimedWait
	}
	status := sched.Block(e.sch, e.waiters, t, reason, thread.Uninterruptible, timeoutTicks, e.wheel, &e.mu)
	matched := t.EventMask // Set overwrites this with the matched bits on wake.
	e.mu.Release()
	if status != errs.OK {
		return 0, status
	}
	return matched, errs.OK
}

// Set ORs setMask into the event's flags and wakes every waiter whose
// request is now satisfied, writing each woken thread's matched bits
// back into its EventMask for Wait to read. Each woken thread's
// matched bits are computed against the flags as they stood for this
// whole walk — a single snapshot taken once setMask is applied — and
// any ClearOnExit bits are accumulated across every woken thread and
// applied to e.flags exactly once, after the walk: otherwise an
// earlier waiter's clear would shrink the flags a later waiter in the
// same Set call matches against (spec.md §4.5). Returns the number
// woken.
func (e *Event) Set(setMask uint32) int {
	e.mu.Acquire()
	e.flags |= setMask
	snapshot := e.flags

	woken := e.waiters.RemoveWhere(func(th *thread.Thread) bool {
		return satisfied(snapshot, th.EventMask, WaitMode(th.EventMode))
	})

	var clearMask uint32
	for _, th := range woken {
		matched := snapshot & th.EventMask
		if th.EventClearOnExit {
			clearMask |= matched
		}
		th.EventMask = matched
		th.SetErr(errs.OK)
		e.sch.QueueReady(th)
	}
	e.flags &^= clearMask
	e.mu.Release()

	for _, th := range woken {
		e.sch.RequestPreempt(th.CurrentCPU)
	}
	return len(woken)
}

// Clear clears clearMask from the event's flags without waking anyone
// (spec.md §4.5's explicit "CLEAR" verb, distinct from a Wait's own
// consume-on-exit).
func (e *Event) Clear(clearMask uint32) {
	e.mu.Acquire()
	e.flags &^= clearMask
	e.mu.Release()
}

// Flags returns the event's current bits.
func (e *Event) Flags() uint32 {
	e.mu.Acquire()
	defer e.mu.Release()
	return e.flags
}

// Detach unregisters e from the object registry, waking any blocked
// Wait callers with errs.EINTR first (spec.md §4.5/§7: detach/delete
// of a primitive with active waiters wakes each with EINTR, callers
// must check).
func (e *Event) Detach(reg *object.Registry) {
	e.mu.Acquire()
	woken := sched.WakeAll(e.sch, e.waiters, errs.EINTR)
	e.mu.Release()

	for _, th := range woken {
		e.sch.RequestPreempt(th.CurrentCPU)
	}
	reg.Detach(&e.Header)
}

// Delete detaches e (waking any waiters, per Detach) and reports
// errs.EPERM if it was registered static.
func (e *Event) Delete(reg *object.Registry) errs.Status {
	e.mu.Acquire()
	woken := sched.WakeAll(e.sch, e.waiters, errs.EINTR)
	e.mu.Release()

	for _, th := range woken {
		e.sch.RequestPreempt(th.CurrentCPU)
	}
	return reg.Delete(&e.Header)
}
