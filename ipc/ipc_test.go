// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipc

import (
	"testing"
	"time"

	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/sched"
	"github.com/blueos-go/kernelcore/thread"
	"github.com/blueos-go/kernelcore/timer"
)

func run(t *thread.Thread, body func()) {
	go func() {
		t.Park()
		body()
	}()
}

func TestSemaphoreTakeBlocksUntilGive(t *testing.T) {
	sch := sched.New(1, 8)
	wheel := timer.NewWheel(32)
	s := NewSemaphore(sch, wheel, 0, 0)

	waiter := thread.New(0, 5)
	statusCh := make(chan errs.Status, 1)

	run(waiter, func() {
		statusCh <- s.Take(waiter, thread.Forever)
	})

	sch.QueueReady(waiter)
	sch.Start(0)

	select {
	case <-statusCh:
		t.Fatal("Take returned before Give")
	case <-time.After(50 * time.Millisecond):
	}

	if status := s.Give(); status != errs.OK {
		t.Fatalf("Give = %v, want OK", status)
	}

	select {
	case got := <-statusCh:
		if got != errs.OK {
			t.Fatalf("Take = %v, want OK", got)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Give")
	}
}

func TestSemaphoreTakeTimesOut(t *testing.T) {
	sch := sched.New(1, 8)
	wheel := timer.NewWheel(32)
	s := NewSemaphore(sch, wheel, 0, 0)

	waiter := thread.New(0, 5)
	statusCh := make(chan errs.Status, 1)

	run(waiter, func() {
		statusCh <- s.Take(waiter, 3)
	})

	sch.QueueReady(waiter)
	sch.Start(0)

	// Tick only once the waiter is queued: Take arms its timeout
	// against tick 0 before releasing s.mu.
	s.mu.Acquire()
	for !s.waiters.Contains(waiter) {
		s.mu.Release()
		time.Sleep(time.Millisecond)
		s.mu.Acquire()
	}
	s.mu.Release()

	for now := uint32(1); now <= 3; now++ {
		wheel.Tick(now)
	}

	select {
	case got := <-statusCh:
		if got != errs.ETIMEOUT {
			t.Fatalf("Take = %v, want ETIMEOUT", got)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never timed out")
	}
}

func TestEventWaitAllRequiresEveryBit(t *testing.T) {
	sch := sched.New(1, 8)
	wheel := timer.NewWheel(32)
	e := NewEvent(sch, wheel)

	waiter := thread.New(0, 5)
	type result struct {
		matched uint32
		status  errs.Status
	}
	resultCh := make(chan result, 1)

	run(waiter, func() {
		m, s := e.Wait(waiter, 0b011, WaitAll, ClearOnExit, thread.Forever)
		resultCh <- result{m, s}
	})

	sch.QueueReady(waiter)
	sch.Start(0)

	if woken := e.Set(0b001); woken != 0 {
		t.Fatalf("Set partial mask woke %d waiters, want 0", woken)
	}
	select {
	case <-resultCh:
		t.Fatal("AND wait satisfied by a partial mask")
	case <-time.After(50 * time.Millisecond):
	}

	if woken := e.Set(0b010); woken != 1 {
		t.Fatalf("Set completing mask woke %d waiters, want 1", woken)
	}

	select {
	case r := <-resultCh:
		if r.status != errs.OK || r.matched != 0b011 {
			t.Fatalf("result = %+v, want {0b011 OK}", r)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke once mask satisfied")
	}

	if e.Flags() != 0 {
		t.Fatalf("Flags() = %b, want 0 after ClearOnExit", e.Flags())
	}
}

func TestMailboxProducerConsumer(t *testing.T) {
	sch := sched.New(1, 8)
	wheel := timer.NewWheel(32)
	mb := NewMailbox(sch, wheel, 1)

	consumer := thread.New(0, 5)
	producer := thread.New(0, 5)

	recvCh := make(chan any, 1)
	sendStatus := make(chan errs.Status, 1)

	run(consumer, func() {
		msg, status := mb.Receive(consumer, thread.Forever)
		if status == errs.OK {
			recvCh <- msg
		}
	})
	run(producer, func() {
		sendStatus <- mb.Send(producer, "hello", false, thread.Forever)
		sch.YieldMe(producer) // hand the CPU to the woken, equal-priority consumer
	})

	sch.QueueReady(consumer)
	sch.Start(0)
	sch.QueueReady(producer)
	sch.DoSchedule(0)

	select {
	case got := <-recvCh:
		if got != "hello" {
			t.Fatalf("received %v, want hello", got)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer never received a message")
	}
	select {
	case status := <-sendStatus:
		if status != errs.OK {
			t.Fatalf("Send = %v, want OK", status)
		}
	case <-time.After(time.Second):
		t.Fatal("producer's Send never returned")
	}
}
