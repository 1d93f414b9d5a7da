// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"time"

	"github.com/blueos-go/kernelcore/archport"
	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/mutex"
	"github.com/blueos-go/kernelcore/object"
	"github.com/blueos-go/kernelcore/sched"
	"github.com/blueos-go/kernelcore/thread"
	"github.com/blueos-go/kernelcore/timer"
	"github.com/blueos-go/kernelcore/wait"
)

// Kernel is the top-level wiring of every package in this module into
// the single collaborator spec.md §6 describes external code as
// consuming: one object registry, one scheduler, a hard and a soft
// timer wheel, and the architecture port/clock that drive them.
type Kernel struct {
	cfg Config

	Registry  *object.Registry
	Sched     *sched.Scheduler
	HardWheel *timer.Wheel
	SoftWheel *timer.Wheel

	Port  *archport.HostPort
	Clock *archport.HostClock
	Alloc archport.Allocator

	logger Logger

	softTimer        *thread.Thread
	explicitSuspends *wait.List
	idleStop         chan struct{}
}

// New wires a Kernel from cfg. The scheduler, registry, and both
// wheels are constructed and cross-wired (registry/scheduler IRQ
// detection routed through port.IsInIRQ, spec.md §4.1/§4.2's
// "must not be called from interrupt context" assertions), but no
// goroutine runs and no clock tick is delivered until Boot.
func New(cfg Config, logger Logger) *Kernel {
	port := archport.NewHostPort()
	reg := object.NewRegistry()
	reg.SetIRQCheck(port.IsInIRQ)

	s := sched.New(cfg.CPUCount, cfg.PrioMax)
	s.SetIRQContext(port.IsInIRQ)

	k := &Kernel{
		cfg:       cfg,
		Registry:  reg,
		Sched:     s,
		HardWheel: timer.NewWheel(cfg.TimerWheelSize),
		SoftWheel: timer.NewWheel(cfg.TimerWheelSize),
		Port:      port,
		Clock:     archport.NewHostClock(port),
		Alloc:     archport.HostAllocator{},
		logger:    logOrNop(logger),
	}
	k.explicitSuspends = wait.New(wait.FIFO)
	k.idleStop = make(chan struct{})
	return k
}

// Boot starts every CPU (CPU 0 first, per spec.md §9's worked
// examples, which always bring up CPU 0 before any other), starts the
// soft-timer thread, and begins delivering ticks at tickPeriod. Each
// CPU's idle thread is queued before that CPU is started, so no CPU
// starts with an empty ready table.
func (k *Kernel) Boot(tickPeriod time.Duration) {
	for cpu := 0; cpu < k.Sched.CPUCount(); cpu++ {
		k.startIdleThread(cpu)
	}
	k.startSoftTimerThread()

	for cpu := 0; cpu < k.Sched.CPUCount(); cpu++ {
		k.Sched.Start(cpu)
	}

	k.Clock.Start(tickPeriod, func(now uint32) {
		k.HardWheel.Tick(now)
		// spec.md §4.2 do_schedule step 2: called while IsInIRQ is
		// true (HostClock brackets onTick with EnterIRQ/LeaveIRQ), so
		// this only marks need_resched and returns — the actual
		// switch happens the next time the running thread's own
		// goroutine calls RequestPreempt/DoSchedule/YieldMe, or the
		// next PreemptEnable that drops the counter to zero.
		k.Sched.DoSchedule(0)
	})
}

// Shutdown halts tick delivery and signals every CPU's idle thread to
// stop looping. Other threads already running continue to run;
// spec.md names no broader shutdown sequence.
func (k *Kernel) Shutdown() {
	k.Clock.Stop()
	close(k.idleStop)
}

// NewMutex constructs a priority-inheritance Mutex using k's hard
// wheel for its timed-lock timeouts and cfg.MaxMutexNest as the
// default recursion cap.
func (k *Kernel) NewMutex() *mutex.Mutex {
	return mutex.New(k.Sched, k.HardWheel, k.cfg.MaxMutexNest)
}

// Logger returns the Kernel's logger (never nil).
func (k *Kernel) Logger() Logger { return k.logger }
