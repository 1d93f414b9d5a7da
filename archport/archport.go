// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archport defines the external interfaces spec.md §6 says the
// core consumes rather than implements (architecture port, clock
// source, allocator), plus a hosted implementation of each so the rest
// of this repository can run as an ordinary Go program. A bare-metal
// build would replace Port and Clock with real MMIO/interrupt-table
// code and keep the same interfaces; Allocator stays the same shape
// either way.
//
// Grounded on go-fuse's raw/ package boundary: raw.FileSystem is the
// external contract the core (fuse.Server) consumes without knowing
// whether it's backed by the kernel or a test double, the same
// relationship archport.Port has to sched.Scheduler here.
package archport

import "sync/atomic"

// IRQState is the token returned by DisableIRQ, opaque to callers,
// mirroring spec.md §6's disable_irq()->level / enable_irq(level).
type IRQState struct {
	depth uint32
}

// Port is the architecture port spec.md §6 names: interrupt masking,
// interrupt-context detection, and the raw context-switch primitives
// a real scheduler dispatches through. On the hosted target, switching
// is done by the caller via thread.Thread.Park/Resume (goroutine
// parking stands in for a saved-register context switch); Port's
// StartThread/ContextSwitch methods exist to satisfy the external
// interface named in the spec but are no-ops here — see HostPort's
// doc comment.
type Port interface {
	// DisableIRQ masks interrupts on the calling CPU and returns a
	// token that restores the prior state when passed to EnableIRQ.
	DisableIRQ() IRQState
	// EnableIRQ restores the interrupt state DisableIRQ captured.
	EnableIRQ(level IRQState)

	// IsInIRQ reports whether the calling goroutine is running a
	// registered tick/interrupt handler.
	IsInIRQ() bool
	// IRQNestCount returns the current interrupt nesting depth.
	IRQNestCount() int32

	// ContextSwitchTo and ContextSwitch are named for parity with
	// spec.md §6; on the hosted port actual switching happens via
	// thread.Thread.Park/Resume driven by sched.Scheduler, so these
	// are intentionally no-ops (see HostPort).
	ContextSwitchTo(newSP uintptr)
	ContextSwitch(oldSP *uintptr, newSP uintptr)
	StartThread(newSP uintptr)

	// StackInit lays out a saved context that, when switched to,
	// invokes entry(arg) and, on return, exit(retval). The hosted
	// port has no real stack to lay out; it returns a sentinel value
	// and expects the caller (thread.Thread) to run entry/exit on its
	// own goroutine instead.
	StackInit(stackTop uintptr, entry func(arg any), arg any, exit func(retval int)) uintptr
}

// HostPort is the hosted (goroutine-backed) Port implementation. There
// is no real interrupt controller: "interrupt context" is instead a
// cooperative marker set by whatever goroutine is driving the
// simulated tick ISR (see HostClock), and IRQ disable/enable only
// tracks nesting depth for the "forbidden in ISR" assertions spec.md
// §5 describes — it does not actually block any goroutine.
type HostPort struct {
	depth   uint32
	inIRQ   int32 // atomic bool, set by whichever goroutine is inside the simulated tick ISR
	nestIRQ int32 // atomic
}

// NewHostPort constructs a HostPort with interrupts enabled and no
// nested IRQ context.
func NewHostPort() *HostPort {
	return &HostPort{}
}

func (p *HostPort) DisableIRQ() IRQState {
	d := atomic.AddUint32(&p.depth, 1)
	return IRQState{depth: d}
}

func (p *HostPort) EnableIRQ(level IRQState) {
	atomic.StoreUint32(&p.depth, level.depth-1)
}

func (p *HostPort) IsInIRQ() bool {
	return atomic.LoadInt32(&p.inIRQ) > 0
}

func (p *HostPort) IRQNestCount() int32 {
	return atomic.LoadInt32(&p.nestIRQ)
}

// EnterIRQ and LeaveIRQ bracket the hosted tick ISR's body (see
// HostClock.runTicks); exported so a test harness can simulate an
// interrupt arriving mid-operation without going through HostClock.
func (p *HostPort) EnterIRQ() {
	atomic.AddInt32(&p.nestIRQ, 1)
	atomic.StoreInt32(&p.inIRQ, 1)
}

func (p *HostPort) LeaveIRQ() {
	if atomic.AddInt32(&p.nestIRQ, -1) == 0 {
		atomic.StoreInt32(&p.inIRQ, 0)
	}
}

func (p *HostPort) ContextSwitchTo(newSP uintptr)              {}
func (p *HostPort) ContextSwitch(oldSP *uintptr, newSP uintptr) {}
func (p *HostPort) StartThread(newSP uintptr)                   {}

func (p *HostPort) StackInit(stackTop uintptr, entry func(arg any), arg any, exit func(retval int)) uintptr {
	return stackTop
}
