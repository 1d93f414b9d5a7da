// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements the per-CPU priority scheduler (spec.md
// §4.2) and the generic blocking contract every synchronization
// primitive builds on (spec.md §4.3).
//
// This hosted port has no real context switch: a Thread's body runs as
// a goroutine, and "switching to" a thread means letting its goroutine
// proceed past a Park() call while the outgoing thread's goroutine
// enters its own Park(). The scheduler's job is therefore exactly what
// it is on real hardware minus the register/stack save: decide, under
// one lock, which thread is allowed to be the one whose goroutine is
// not parked, and hand off to it. Grounded on the toysched and nsync
// examples' use of a per-thread binary semaphore to model context
// switch as a token handoff between goroutines.
package sched

import (
	"github.com/blueos-go/kernelcore/internal/kspin"
	"github.com/blueos-go/kernelcore/thread"
)

// SwitchHook, if installed, is called synchronously on every context
// switch decision (including boot), with old possibly nil. Used by
// package kernel for tracing/logging; never called with any kernel
// lock held.
type SwitchHook func(old, next *thread.Thread)

// cpuState is one CPU's scheduling state (spec.md §4.2: "current
// thread pointer, priority table, preempt-disable depth, need-resched
// flag").
type cpuState struct {
	table        *priorityTable
	current      *thread.Thread
	preemptDepth int32
	needResched  bool

	// readyLevel records the priority level each thread currently
	// occupies in table, so that change_priority (including a mutex
	// priority-inheritance boost of a Ready owner) knows which run to
	// pull a thread out of before re-inserting it.
	readyLevel map[*thread.Thread]uint8
}

// Scheduler is one kernel-wide instance owning every CPU's priority
// table (spec.md §4.2). IRQContext, if set, lets do_schedule detect
// that it was entered from interrupt context and defer instead of
// switching (spec.md §4.3 step 2); it is injected rather than imported
// to keep package sched free of any dependency on package archport.
type Scheduler struct {
	mu      kspin.Lock
	prioMax uint8
	cpus    []cpuState
	started bool

	irqContext func() bool
	hook       SwitchHook
}

// New returns a Scheduler configured for cpuCount CPUs, each with its
// own run-queue set of prioMax priority levels.
func New(cpuCount int, prioMax uint8) *Scheduler {
	if cpuCount < 1 {
		cpuCount = 1
	}
	s := &Scheduler{
		prioMax: prioMax,
		cpus:    make([]cpuState, cpuCount),
	}
	for i := range s.cpus {
		s.cpus[i].table = newPriorityTable(prioMax)
		s.cpus[i].readyLevel = make(map[*thread.Thread]uint8)
	}
	return s
}

// SetIRQContext installs the callback do_schedule uses to detect
// interrupt context (spec.md §4.3 step 2, §5 "allowed from ISR").
func (s *Scheduler) SetIRQContext(f func() bool) { s.irqContext = f }

// SetSwitchHook installs a trace/logging callback for context-switch
// decisions.
func (s *Scheduler) SetSwitchHook(h SwitchHook) { s.hook = h }

// CPUCount returns the number of per-CPU run-queue sets.
func (s *Scheduler) CPUCount() int { return len(s.cpus) }

// resolveCPU maps a thread's bind_cpu to a concrete CPU index. Threads
// not pinned to a specific CPU land on CPU 0: spec.md does not mandate
// a load-balancing algorithm, and its Non-goals already exclude
// dynamic scheduling policy beyond strict priority plus inheritance, so
// this hosted port picks the simplest rule that is still fully
// deterministic (documented in DESIGN.md).
func (s *Scheduler) resolveCPU(t *thread.Thread) int {
	if t.BindCPU == thread.AnyCPU {
		return 0
	}
	return t.BindCPU
}

// Start boots CPU cpuIndex: it picks the highest-priority Ready thread
// on that CPU's table, makes it Running, and resumes its goroutine.
// Called once per CPU at kernel boot, CPU 0 first (spec.md §9).
func (s *Scheduler) Start(cpuIndex int) {
	s.mu.Acquire()
	cpu := &s.cpus[cpuIndex]
	next := cpu.table.peek()
	if next != nil {
		cpu.table.remove(next, cpu.readyLevel[next])
		delete(cpu.readyLevel, next)
		next.SetState(thread.Running, thread.NotSuspended)
		next.CurrentCPU = cpuIndex
		cpu.current = next
	}
	s.started = true
	hook := s.hook
	s.mu.Release()

	if next != nil {
		if hook != nil {
			hook(nil, next)
		}
		next.Resume()
	}
}

// QueueReady makes t Ready and enqueues it on its resolved CPU's
// priority table (spec.md §4.2 "queue_ready"). Callers must not hold
// t's previous container's lock across this call beyond what's needed
// to decide it should become Ready.
func (s *Scheduler) QueueReady(t *thread.Thread) {
	s.mu.Acquire()
	cpuIndex := s.resolveCPU(t)
	t.CurrentCPU = cpuIndex
	t.SetState(thread.Ready, thread.NotSuspended)
	cpu := &s.cpus[cpuIndex]
	level := t.Priority.Current
	cpu.table.insert(t)
	cpu.readyLevel[t] = level
	s.mu.Release()
}

// RemoveReady pulls t out of its CPU's ready table without making it
// Running (spec.md §4.2 "remove_ready"), e.g. when a thread is deleted
// while still Ready.
func (s *Scheduler) RemoveReady(t *thread.Thread) {
	s.mu.Acquire()
	cpu := &s.cpus[t.CurrentCPU]
	if level, ok := cpu.readyLevel[t]; ok {
		cpu.table.remove(t, level)
		delete(cpu.readyLevel, t)
	}
	s.mu.Release()
}

// ChangePriority updates t's current priority, re-homing it within its
// CPU's ready table if it is currently Ready (spec.md §4.2
// "change_priority"); used both for explicit priority-set calls and
// for mutex priority-inheritance boosts/restores (spec.md §4.4).
func (s *Scheduler) ChangePriority(t *thread.Thread, newPrio uint8) {
	s.mu.Acquire()
	if t.State() == thread.Ready {
		cpu := &s.cpus[t.CurrentCPU]
		if level, ok := cpu.readyLevel[t]; ok {
			cpu.table.remove(t, level)
			delete(cpu.readyLevel, t)
		}
		t.Priority.Current = newPrio
		cpu.table.insert(t)
		cpu.readyLevel[t] = newPrio
	} else {
		t.Priority.Current = newPrio
	}
	s.mu.Release()
}

// YieldMe marks the calling thread (which must be the CPU's current
// Running thread) as yield-pending and invokes do_schedule, so that if
// it is re-selected it goes to the tail of its priority run rather than
// preempting whoever else is now head (spec.md §4.2 "yield_me").
func (s *Scheduler) YieldMe(t *thread.Thread) {
	t.SetYieldPending(true)
	s.DoSchedule(t.CurrentCPU)
}

// PreemptDisable increments cpuIndex's preempt-disable depth (spec.md
// §4.2). While depth > 0, DoSchedule still runs when called directly,
// but callers that only conditionally want to reschedule (e.g. the
// tick ISR) should check NeedResched/consult this depth themselves
// before calling DoSchedule; PreemptEnable does that check for the
// "drops to zero" transition automatically.
func (s *Scheduler) PreemptDisable(cpuIndex int) {
	s.mu.Acquire()
	s.cpus[cpuIndex].preemptDepth++
	s.mu.Release()
}

// PreemptEnable decrements cpuIndex's preempt-disable depth and, if it
// reaches zero while need_resched is set, invokes do_schedule (spec.md
// §4.2's deferred-preemption rule).
func (s *Scheduler) PreemptEnable(cpuIndex int) {
	s.mu.Acquire()
	cpu := &s.cpus[cpuIndex]
	cpu.preemptDepth--
	fire := cpu.preemptDepth == 0 && cpu.needResched
	if fire {
		cpu.needResched = false
	}
	s.mu.Release()
	if fire {
		s.DoSchedule(cpuIndex)
	}
}

// RequestPreempt asks for a reschedule on cpuIndex: if preemption is
// currently disabled there, it only raises need_resched for
// PreemptEnable to act on later; otherwise it calls DoSchedule
// immediately. This is the entry point ISR-safe "wake a higher
// priority thread" paths should use instead of calling DoSchedule
// directly, since those paths don't know whether they preempted a
// critical section (spec.md §4.2's deferred-preemption rule). A thread
// voluntarily blocking or yielding always calls DoSchedule directly:
// it has no running work left regardless of preempt-disable depth.
func (s *Scheduler) RequestPreempt(cpuIndex int) {
	s.mu.Acquire()
	cpu := &s.cpus[cpuIndex]
	if cpu.preemptDepth > 0 {
		cpu.needResched = true
		s.mu.Release()
		return
	}
	s.mu.Release()
	s.DoSchedule(cpuIndex)
}

// NeedResched reports cpuIndex's need-resched flag.
func (s *Scheduler) NeedResched(cpuIndex int) bool {
	s.mu.Acquire()
	defer s.mu.Release()
	return s.cpus[cpuIndex].needResched
}

// DoSchedule is do_schedule() from spec.md §4.2/§4.3: if called from
// interrupt context it only sets need_resched and returns; otherwise,
// under the scheduler lock, it picks the highest-priority Ready
// thread, compares it against the CPU's current thread, and commits
// whichever of them should be Running. The actual goroutine handoff
// happens after the lock is released (see package doc): this hosted
// port's "context switch" is a channel send/receive, which carries no
// scheduler state, so releasing the lock first does not risk any
// other CPU observing an inconsistent ready table.
func (s *Scheduler) DoSchedule(cpuIndex int) {
	s.mu.Acquire()
	if !s.started {
		s.mu.Release()
		return
	}
	if s.irqContext != nil && s.irqContext() {
		s.cpus[cpuIndex].needResched = true
		s.mu.Release()
		return
	}

	cpu := &s.cpus[cpuIndex]
	cur := cpu.current
	next := cpu.table.peek()

	switched := false
	var oldThread, newThread *thread.Thread

	switch {
	case next == nil && (cur == nil || cur.State() == thread.Running):
		// Nothing else runnable; cur (if any) keeps running.
		if cur != nil {
			cur.SetYieldPending(false)
		}
	case next == nil:
		// cur already left Running (e.g. just blocked) and there is
		// nothing to replace it with: the CPU goes idle. cur's
		// goroutine still must park, since it is no longer the thread
		// allowed to proceed.
		cpu.current = nil
		oldThread, switched = cur, true
	case cur == nil:
		cpu.table.remove(next, cpu.readyLevel[next])
		delete(cpu.readyLevel, next)
		next.SetState(thread.Running, thread.NotSuspended)
		cpu.current = next
		oldThread, newThread, switched = nil, next, true
	case cur.State() != thread.Running:
		// cur already left Running (blocked/suspended/closed
		// elsewhere); always switch to next.
		cpu.table.remove(next, cpu.readyLevel[next])
		delete(cpu.readyLevel, next)
		next.SetState(thread.Running, thread.NotSuspended)
		cpu.current = next
		oldThread, newThread, switched = cur, next, true
	case next.Priority.Current < cur.Priority.Current,
		next.Priority.Current == cur.Priority.Current && cur.YieldPending():
		cpu.table.remove(next, cpu.readyLevel[next])
		delete(cpu.readyLevel, next)
		cur.SetState(thread.Ready, thread.NotSuspended)
		cpu.table.insert(cur)
		cpu.readyLevel[cur] = cur.Priority.Current
		next.SetState(thread.Running, thread.NotSuspended)
		cpu.current = next
		oldThread, newThread, switched = cur, next, true
	default:
		// cur keeps running; clear any stale yield hint.
		cur.SetYieldPending(false)
	}

	hook := s.hook
	s.mu.Release()

	if !switched || oldThread == newThread {
		return
	}
	if hook != nil {
		hook(oldThread, newThread)
	}
	if newThread != nil {
		newThread.Resume()
	}
	if oldThread != nil {
		oldThread.Park()
	}
}

// Exit retires the calling thread (which must already be Closed, and
// whose goroutine is about to return rather than park) from cpuIndex,
// dispatching whatever is next Ready. Unlike DoSchedule, the outgoing
// thread is never Parked: its goroutine is ending, not merely
// yielding, so there will be no future Resume to wake it. This is the
// scheduler-side half of a thread's natural termination (package
// kernel's CreateThread wraps every thread body so this runs right
// before the body's goroutine returns).
func (s *Scheduler) Exit(cpuIndex int, exiting *thread.Thread) {
	s.mu.Acquire()
	if !s.started {
		s.mu.Release()
		return
	}
	cpu := &s.cpus[cpuIndex]
	if cpu.current == exiting {
		cpu.current = nil
	}
	next := cpu.table.peek()
	var newThread *thread.Thread
	if next != nil {
		cpu.table.remove(next, cpu.readyLevel[next])
		delete(cpu.readyLevel, next)
		next.SetState(thread.Running, thread.NotSuspended)
		cpu.current = next
		newThread = next
	}
	hook := s.hook
	s.mu.Release()

	if newThread != nil {
		if hook != nil {
			hook(exiting, newThread)
		}
		newThread.Resume()
	}
}
