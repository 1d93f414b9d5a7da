// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package thread implements the kernel's TCB (spec.md §3, "Thread
// (TCB)"): the stack region, saved-context pointer, priority pair,
// state machine, and the bookkeeping (mutex taken-list, pending
// mutex, event-wait parameters, last blocking error) every
// synchronization primitive in this kernel reads and writes.
//
// A Thread never schedules itself: every field here is plain data
// plus narrow state-transition helpers. The scheduler (package sched)
// is the only code that decides when a Thread moves between Ready,
// Running, and Suspended; mutex/ipc primitives are the only code that
// touch mutex_info and event_flags_*. This mirrors the donor's
// nodefs.Inode, which is itself just a node in a tree guarded by its
// own mutex with no knowledge of who schedules FUSE request goroutines.
package thread

import (
	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/object"
)

// State is a thread's coarse lifecycle stage (spec.md §3).
type State int

const (
	Init State = iota
	Ready
	Running
	Suspended
	Closed
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Suspended:
		return "Suspended"
	case Closed:
		return "Closed"
	default:
		return "State(?)"
	}
}

// SuspendReason is the Suspended-state substate (spec.md §3: "Suspended
// substates: {TimedWait, Wait, YieldPending}").
type SuspendReason int

const (
	NotSuspended SuspendReason = iota
	SuspendWait
	SuspendTimedWait
	SuspendYieldPending
)

// SuspendFlag controls whether a wait is terminated early by a
// cancellation signal (spec.md §4.3, §5).
type SuspendFlag int

const (
	Uninterruptible SuspendFlag = iota
	Interruptible
	Killable
)

// Forever is the timeout value meaning "block with no timeout".
const Forever uint32 = ^uint32(0)

// AnyCPU is the bind_cpu value meaning the thread may run on any CPU.
const AnyCPU int = -1

// Priority pairs a thread's base (assigned) priority with its current
// (possibly inheritance-raised) priority. Zero is highest; current is
// always <= base (spec.md §3 invariant).
type Priority struct {
	Base    uint8
	Current uint8
}

// MutexInfo tracks the mutexes a thread owns and the one it is
// blocked trying to acquire (spec.md §3). Types are left as `any` to
// avoid a package import cycle between thread and mutex: only the
// mutex package ever type-asserts these back to *mutex.Mutex.
type MutexInfo struct {
	// TakenList holds one object.Node per mutex currently owned by
	// this thread; each Node's Owner is the owning *mutex.Mutex.
	TakenList object.List
	// PendingTo is the mutex this thread is blocked trying to
	// acquire, or nil.
	PendingTo any
}

// Thread is the kernel's TCB.
type Thread struct {
	object.Header

	// stack is a simulated stack region: this hosted port runs
	// thread bodies as goroutines (the Go runtime owns the real
	// stack), so stackBase/stackSize are bookkeeping only, not real
	// memory layout; no stack guard check is performed.
	stackBase uintptrSim
	stackSize int

	Priority Priority
	state    State
	reason   SuspendReason

	BindCPU      int
	CurrentCPU   int
	err          errs.Status
	Mutexes      MutexInfo
	// EventMask/EventMode/EventClearOnExit hold an Event wait's request
	// while blocked (spec.md §4.5); on wakeup the event implementation
	// overwrites EventMask with the actual matched bits, repurposing
	// the field to carry its result back rather than adding a separate
	// out-parameter channel.
	EventMask       uint32
	EventMode       uint32
	EventClearOnExit bool
	yieldPending bool
	cleanup      func(*Thread)

	suspendFlag      SuspendFlag
	interruptPending bool
	killPending      bool

	// schedNode is reused for both ready-queue and wait-list
	// residency: spec.md §3 guarantees a thread is in at most one
	// of those at a time.
	schedNode object.Node

	resumeCh chan struct{}
}

// uintptrSim avoids importing unsafe for a value that is never
// dereferenced; it gives stackBase an address-shaped type.
type uintptrSim uintptr

// New constructs a Thread. stackSize is advisory bookkeeping only (see
// Thread.stackBase). priority is the initial base==current priority.
func New(stackSize int, priority uint8) *Thread {
	t := &Thread{
		stackSize: stackSize,
		Priority:  Priority{Base: priority, Current: priority},
		state:     Init,
		BindCPU:   AnyCPU,
		resumeCh:  make(chan struct{}, 1),
	}
	t.Mutexes.TakenList.Init()
	t.schedNode.Owner = t
	return t
}

// State returns the thread's current lifecycle stage.
func (t *Thread) State() State { return t.state }

// SuspendReason returns the Suspended-state substate, meaningless
// unless State()==Suspended.
func (t *Thread) SuspendReason() SuspendReason { return t.reason }

// SetState forcibly sets state and, for Suspended, its substate. Only
// the scheduler and blocking-contract helpers (package sched) call
// this; it performs no list bookkeeping itself.
func (t *Thread) SetState(s State, reason SuspendReason) {
	t.state = s
	t.reason = reason
}

// SchedNode returns the intrusive node used to link this thread into
// exactly one ready list or wait list.
func (t *Thread) SchedNode() *object.Node { return &t.schedNode }

// Err returns the status recorded by the last blocking call to wake
// this thread (timeout, signal, or success).
func (t *Thread) Err() errs.Status { return t.err }

// SetErr records the outcome of the most recent blocking wakeup.
func (t *Thread) SetErr(s errs.Status) { t.err = s }

// SetCleanup installs the function invoked when the thread terminates.
func (t *Thread) SetCleanup(f func(*Thread)) { t.cleanup = f }

// Cleanup returns the installed cleanup hook, or nil.
func (t *Thread) Cleanup() func(*Thread) { return t.cleanup }

// StackSize returns the advisory stack size passed to New.
func (t *Thread) StackSize() int { return t.stackSize }

// YieldPending reports whether this thread reached Ready via an
// explicit yield (spec.md §4.2: "threads with a yield-pending hint are
// appended to the tail of their priority run, others prepended").
func (t *Thread) YieldPending() bool { return t.yieldPending }

// SetYieldPending sets or clears the yield hint. The scheduler clears
// it the moment it is consulted during queue_ready.
func (t *Thread) SetYieldPending(pending bool) { t.yieldPending = pending }

// SetSuspendFlag records the cancellation policy in effect for the
// wait t is about to enter (spec.md §4.3, §5). Package sched reads
// this to decide whether a pending signal wakes t early.
func (t *Thread) SetSuspendFlag(f SuspendFlag) { t.suspendFlag = f }

// SuspendFlag returns the cancellation policy recorded by the most
// recent SetSuspendFlag call.
func (t *Thread) SuspendFlag() SuspendFlag { return t.suspendFlag }

// RequestInterrupt marks an interrupt signal pending against t. Taken
// into account the next time t is consulted via ConsumeSignal, either
// before it blocks or (if a future delivery path supports it) while
// already blocked Interruptible.
func (t *Thread) RequestInterrupt() { t.interruptPending = true }

// RequestKill marks a kill signal pending against t. A kill also
// satisfies a plain interrupt check.
func (t *Thread) RequestKill() {
	t.killPending = true
	t.interruptPending = true
}

// ConsumeSignal reports whether a signal satisfying t's current
// SuspendFlag is pending, clearing it if so (spec.md §4.3's early-EINTR
// check and wake-on-signal rule). Uninterruptible never reports a
// pending signal; Killable only wakes for RequestKill; Interruptible
// wakes for either.
func (t *Thread) ConsumeSignal() bool {
	switch t.suspendFlag {
	case Killable:
		if t.killPending {
			t.killPending = false
			t.interruptPending = false
			return true
		}
	case Interruptible:
		if t.interruptPending {
			t.interruptPending = false
			t.killPending = false
			return true
		}
	}
	return false
}

// Park blocks the calling goroutine until some other goroutine calls
// Resume on the same Thread. This is the hosted stand-in for
// context_switch: the outgoing thread's goroutine parks here, and the
// scheduler's context-switch tail resumes the incoming thread by
// calling its Resume.
func (t *Thread) Park() {
	<-t.resumeCh
}

// Resume lets a parked Thread's goroutine proceed. Safe to call
// whether or not the thread is currently parked (idempotent, mirrors
// a binary semaphore's V()).
func (t *Thread) Resume() {
	select {
	case t.resumeCh <- struct{}{}:
	default:
	}
}
