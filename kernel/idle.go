// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"time"

	"github.com/blueos-go/kernelcore/object"
	"github.com/blueos-go/kernelcore/thread"
)

// idlePollInterval bounds how long the idle thread's tight yield loop
// sleeps in real wall-clock time between attempts. A real architecture
// port's idle loop executes a wait-for-interrupt instruction instead;
// the hosted port has no such instruction, so it settles for not
// pegging a host CPU core while logically idle.
const idlePollInterval = time.Millisecond

// startIdleThread creates and starts the lowest-priority thread bound
// to cpuIndex. Without it, a CPU with nothing else Ready has no
// Running thread at all (cpu.current == nil): a tick-driven wakeup
// arriving in that state would defer to need_resched per spec.md
// §4.2 step 2, but with no Running thread's own goroutine left to
// later notice and act on that flag, the woken thread would never
// actually be dispatched. A dedicated idle thread — the same fix real
// RTOSes use — keeps a CPU's "current" thread non-nil whenever the
// CPU has booted, so DoSchedule's ordinary preemption path (not the
// ISR-deferred one) is what notices and dispatches newly-Ready work.
func (k *Kernel) startIdleThread(cpuIndex int) *thread.Thread {
	idle := thread.New(0, k.cfg.PrioMax-1)
	idle.BindCPU = cpuIndex
	k.Registry.InitDynamic(&idle.Header, object.KindThread, fmt.Sprintf("idle/%d", cpuIndex), idle)

	stop := k.idleStop
	go func() {
		idle.Park()
		for {
			select {
			case <-stop:
				return
			default:
			}
			k.Yield(idle)
			time.Sleep(idlePollInterval)
		}
	}()

	k.Sched.QueueReady(idle)
	return idle
}
