// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"context"

	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/internal/kspin"
	"github.com/blueos-go/kernelcore/object"
	"github.com/blueos-go/kernelcore/sched"
	"github.com/blueos-go/kernelcore/thread"
	"github.com/blueos-go/kernelcore/wait"
)

type selfKey struct{}

// WithThread returns a context carrying t, for Self to retrieve from
// inside a thread's own entry function. This is this hosted port's
// stand-in for spec.md §6's self(): a real kernel reads the current
// CPU's TCB pointer; a goroutine has no such register, so the entry
// function's own context carries it instead (every CreateThread entry
// is invoked with exactly this context already installed).
func WithThread(ctx context.Context, t *thread.Thread) context.Context {
	return context.WithValue(ctx, selfKey{}, t)
}

// Self returns the Thread bound to ctx by WithThread, or nil if none.
func Self(ctx context.Context) *thread.Thread {
	t, _ := ctx.Value(selfKey{}).(*thread.Thread)
	return t
}

// CreateThread registers a new Thread (Init state, not yet Ready) and
// starts the goroutine that will run entry once StartThread is
// called. entry receives a context.Context with Self already bound.
// name is a diagnostic label; stackSize is advisory bookkeeping only
// (see thread.Thread's doc comment).
func (k *Kernel) CreateThread(name string, stackSize int, priority uint8, entry func(ctx context.Context)) *thread.Thread {
	t := thread.New(stackSize, priority)
	k.Registry.InitDynamic(&t.Header, object.KindThread, name, t)

	go func() {
		t.Park()
		ctx := WithThread(context.Background(), t)
		entry(ctx)
		cpu := t.CurrentCPU
		k.DeleteThread(t)
		k.Sched.Exit(cpu, t)
	}()
	return t
}

// StartThread makes t Ready. If called from t2's own entry goroutine
// (the common case — one thread starting another), a newly-higher-
// priority t may preempt t2 immediately via RequestPreempt; if called
// before Boot (no CPU running yet), the thread simply waits in the
// ready table for Boot's initial sched.Start.
func (k *Kernel) StartThread(t *thread.Thread) {
	k.Sched.QueueReady(t)
	k.Sched.RequestPreempt(t.CurrentCPU)
}

// DeleteThread detaches t from the registry. Waiters blocked on a
// mutex/ipc primitive t owns are not automatically woken; spec.md
// names no implicit cleanup of resources a deleted thread held.
func (k *Kernel) DeleteThread(t *thread.Thread) {
	t.SetState(thread.Closed, thread.NotSuspended)
	k.Registry.Detach(&t.Header)
	if cb := t.Cleanup(); cb != nil {
		cb(t)
	}
}

// SuspendThread forces t out of Ready into Suspended, independent of
// any wait primitive. Only a Ready thread can be force-suspended this
// way: the hosted port has no means to preempt a thread that is
// already Running on some CPU from outside that CPU's own goroutine
// (a real architecture port would raise an inter-processor interrupt;
// this one cannot), so SuspendThread on a Running thread returns
// errs.EINVAL. Already-Suspended or Closed threads are a no-op.
func (k *Kernel) SuspendThread(t *thread.Thread) errs.Status {
	switch t.State() {
	case thread.Suspended, thread.Closed:
		return errs.OK
	case thread.Ready:
		k.Sched.RemoveReady(t)
		k.suspendList().Insert(t, thread.SuspendWait)
		return errs.OK
	default:
		return errs.EINVAL
	}
}

// ResumeThread makes an explicitly-suspended t Ready again. A no-op if
// t is not currently held on the explicit-suspend list (e.g. it is
// instead blocked on a mutex/ipc primitive, which has its own wake
// path).
func (k *Kernel) ResumeThread(t *thread.Thread) {
	sl := k.suspendList()
	if !sl.Contains(t) {
		return
	}
	sl.Remove(t)
	k.Sched.QueueReady(t)
	k.Sched.RequestPreempt(t.CurrentCPU)
}

// Sleep blocks the calling thread (which must be its own goroutine;
// see sched.Block's calling contract) for ticks hard-wheel ticks.
// ticks==0 returns immediately. A normal sleep completion surfaces as
// errs.OK, not errs.ETIMEOUT, since expiry is sleep's success path
// rather than a failure; a cancellation under Interruptible/Killable
// still surfaces errs.EINTR.
func (k *Kernel) Sleep(t *thread.Thread, ticks uint32, flag thread.SuspendFlag) errs.Status {
	if ticks == 0 {
		return errs.OK
	}
	wl := wait.New(wait.FIFO)
	var lock kspin.Lock
	lock.Acquire()
	status := sched.Block(k.Sched, wl, t, thread.SuspendTimedWait, flag, ticks, k.HardWheel, &lock)
	lock.Release()
	if status == errs.ETIMEOUT {
		return errs.OK
	}
	return status
}

// Yield relinquishes t's CPU to any other Ready thread of equal or
// higher priority, per spec.md §4.2's yield_me.
func (k *Kernel) Yield(t *thread.Thread) {
	k.Sched.YieldMe(t)
}

// SetPriority changes t's base priority. If t is not currently
// inheritance-boosted (current == base), current moves with it,
// re-queuing t via the scheduler if it is Ready so the ready table's
// per-priority grouping invariant (I3) holds. A boosted thread's
// current priority is left alone; it will fall back to the new base
// the next time its holding mutex's owner-priority restore runs
// (spec.md §4.4).
func (k *Kernel) SetPriority(t *thread.Thread, newBase uint8) {
	boosted := t.Priority.Current < t.Priority.Base
	t.Priority.Base = newBase
	if !boosted {
		k.Sched.ChangePriority(t, newBase)
	}
}

// Join blocks the calling thread until target reaches Closed,
// returning errs.OK once it has. Grounded on spec.md §6's join()
// alongside create/delete: implemented as a poll loop backed by Sleep
// rather than a dedicated wait list, since a thread's own termination
// is not one of the primitives spec.md §4 lists as waitable (only
// mutex/semaphore/event/mailbox/message-queue are).
func (k *Kernel) Join(caller, target *thread.Thread, pollTicks uint32) errs.Status {
	for target.State() != thread.Closed {
		if status := k.Sleep(caller, pollTicks, thread.Uninterruptible); status != errs.OK {
			return status
		}
	}
	return errs.OK
}

func (k *Kernel) suspendList() *wait.List {
	return k.explicitSuspends
}
