// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"testing"
	"time"

	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/internal/kspin"
	"github.com/blueos-go/kernelcore/thread"
	"github.com/blueos-go/kernelcore/timer"
	"github.com/blueos-go/kernelcore/wait"
)

// TestBlockWakeOneSucceeds exercises the "give" half of the contract:
// a waiter blocks Forever and the test, playing the waking thread,
// wakes it with errs.OK once the waiter has registered on wl.
func TestBlockWakeOneSucceeds(t *testing.T) {
	sch := New(1, 8)
	wl := wait.New(wait.FIFO)
	var mu kspin.Lock

	waiter := thread.New(0, 5)
	statusCh := make(chan errs.Status, 1)

	run(waiter, func() {
		mu.Acquire()
		status := Block(sch, wl, waiter, thread.SuspendWait, thread.Uninterruptible, thread.Forever, nil, &mu)
		mu.Release()
		statusCh <- status
	})

	sch.QueueReady(waiter)
	sch.Start(0) // waiter runs, calls Block, inserts itself on wl.

	// Handshake: Block only releases mu after wl.Insert completes, so
	// seeing the waiter on wl while holding mu proves it is registered.
	mu.Acquire()
	for !wl.Contains(waiter) {
		mu.Release()
		time.Sleep(time.Millisecond)
		mu.Acquire()
	}
	WakeOne(sch, wl, errs.OK)
	mu.Release()
	sch.DoSchedule(0)

	select {
	case got := <-statusCh:
		if got != errs.OK {
			t.Fatalf("status = %v, want OK", got)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}

// TestBlockTimesOut exercises the timer-arm half of the contract:
// a waiter with a finite timeout and no waker gets errs.ETIMEOUT once
// the hard wheel ticks past its deadline.
func TestBlockTimesOut(t *testing.T) {
	sch := New(1, 8)
	wl := wait.New(wait.FIFO)
	wheel := timer.NewWheel(32)
	var mu kspin.Lock

	waiter := thread.New(0, 5)
	statusCh := make(chan errs.Status, 1)

	run(waiter, func() {
		mu.Acquire()
		status := Block(sch, wl, waiter, thread.SuspendTimedWait, thread.Uninterruptible, 3, wheel, &mu)
		mu.Release()
		statusCh <- status
	})

	sch.QueueReady(waiter)
	sch.Start(0)

	// Handshake: Block inserts on wl and arms the wheel before
	// releasing mu, so seeing the waiter on wl while holding mu proves
	// the timer is armed against tick 0.
	mu.Acquire()
	for !wl.Contains(waiter) {
		mu.Release()
		time.Sleep(time.Millisecond)
		mu.Acquire()
	}
	mu.Release()

	for now := uint32(1); now <= 3; now++ {
		wheel.Tick(now)
	}

	select {
	case got := <-statusCh:
		if got != errs.ETIMEOUT {
			t.Fatalf("status = %v, want ETIMEOUT", got)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never timed out")
	}
}

// TestBlockSignaledBeforeEntry confirms a Killable wait entered with a
// kill signal already pending returns errs.EINTR at once, without
// enqueuing the thread.
func TestBlockSignaledBeforeEntry(t *testing.T) {
	sch := New(1, 8)
	wl := wait.New(wait.FIFO)
	var mu kspin.Lock

	waiter := thread.New(0, 5)
	waiter.RequestKill()
	statusCh := make(chan errs.Status, 1)

	run(waiter, func() {
		mu.Acquire()
		status := Block(sch, wl, waiter, thread.SuspendWait, thread.Killable, thread.Forever, nil, &mu)
		mu.Release()
		statusCh <- status
	})

	sch.QueueReady(waiter)
	sch.Start(0)

	select {
	case got := <-statusCh:
		if got != errs.EINTR {
			t.Fatalf("status = %v, want EINTR", got)
		}
		if wl.Contains(waiter) {
			t.Fatal("signaled waiter should never have been enqueued")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never returned")
	}
}
