// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/ipc"
	"github.com/blueos-go/kernelcore/thread"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PrioMax = 8
	cfg.TimerWheelSize = 16
	return cfg
}

func TestBootRunsHighestPriorityThreadFirst(t *testing.T) {
	k := New(testConfig(), nil)
	order := make(chan string, 2)

	low := k.CreateThread("low", 0, 5, func(ctx context.Context) {
		order <- "low"
	})
	high := k.CreateThread("high", 0, 2, func(ctx context.Context) {
		order <- "high"
	})
	k.StartThread(low)
	k.StartThread(high)

	k.Boot(5 * time.Millisecond)
	defer k.Shutdown()

	select {
	case first := <-order:
		if first != "high" {
			t.Fatalf("first thread to run = %q, want %q", first, "high")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first thread to run")
	}

	select {
	case second := <-order:
		if second != "low" {
			t.Fatalf("second thread to run = %q, want %q", second, "low")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second thread to run")
	}
}

func TestSleepCompletesAfterTicks(t *testing.T) {
	k := New(testConfig(), nil)
	done := make(chan errs.Status, 1)

	worker := k.CreateThread("sleeper", 0, 4, func(ctx context.Context) {
		self := Self(ctx)
		done <- k.Sleep(self, 3, thread.Uninterruptible)
	})
	k.StartThread(worker)

	k.Boot(5 * time.Millisecond)
	defer k.Shutdown()

	select {
	case status := <-done:
		if status != errs.OK {
			t.Fatalf("Sleep returned %v, want errs.OK", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sleep to complete")
	}
}

func TestSuspendAndResumeThread(t *testing.T) {
	k := New(testConfig(), nil)
	entered := make(chan struct{})
	resumed := make(chan struct{})

	worker := k.CreateThread("worker", 0, 5, func(ctx context.Context) {
		close(entered)
		self := Self(ctx)
		k.Sleep(self, thread.Forever, thread.Uninterruptible)
		close(resumed)
	})
	k.StartThread(worker)

	if status := k.SuspendThread(worker); status != errs.OK {
		t.Fatalf("SuspendThread on Ready thread = %v, want OK", status)
	}
	if worker.State() != thread.Suspended {
		t.Fatalf("worker state = %v, want Suspended", worker.State())
	}

	k.ResumeThread(worker)
	k.Boot(5 * time.Millisecond)
	defer k.Shutdown()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resumed worker to run")
	}

	select {
	case <-resumed:
		t.Fatal("worker should still be blocked on Forever sleep")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSuspendThreadRejectsRunning(t *testing.T) {
	k := New(testConfig(), nil)
	started := make(chan struct{})
	release := make(chan struct{})

	worker := k.CreateThread("worker", 0, 0, func(ctx context.Context) {
		close(started)
		<-release
	})
	k.StartThread(worker)
	k.Boot(5 * time.Millisecond)
	defer k.Shutdown()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for worker to start running")
	}
	if status := k.SuspendThread(worker); status != errs.EINVAL {
		t.Fatalf("SuspendThread on Running thread = %v, want EINVAL", status)
	}
	close(release)
}

func TestSetPriorityMovesReadyThread(t *testing.T) {
	k := New(testConfig(), nil)
	t1 := k.CreateThread("t1", 0, 5, func(ctx context.Context) {
		self := Self(ctx)
		k.Sleep(self, thread.Forever, thread.Uninterruptible)
	})
	k.StartThread(t1)

	if t1.State() != thread.Ready {
		t.Fatalf("t1 state = %v, want Ready before boot", t1.State())
	}

	k.SetPriority(t1, 2)
	if t1.Priority.Base != 2 || t1.Priority.Current != 2 {
		t.Fatalf("t1 priority = %+v, want base=current=2", t1.Priority)
	}
}

func TestJoinWaitsForTargetClose(t *testing.T) {
	k := New(testConfig(), nil)
	joined := make(chan errs.Status, 1)

	target := k.CreateThread("target", 0, 5, func(ctx context.Context) {
		self := Self(ctx)
		k.Sleep(self, 2, thread.Uninterruptible)
	})

	joiner := k.CreateThread("joiner", 0, 6, func(ctx context.Context) {
		self := Self(ctx)
		joined <- k.Join(self, target, 1)
	})

	k.StartThread(target)
	k.StartThread(joiner)
	k.Boot(5 * time.Millisecond)
	defer k.Shutdown()

	select {
	case status := <-joined:
		if status != errs.OK {
			t.Fatalf("Join returned %v, want OK", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Join to observe target close")
	}
}

func TestNewMutexLockUnlock(t *testing.T) {
	k := New(testConfig(), nil)
	m := k.NewMutex()
	acquired := make(chan errs.Status, 1)

	owner := k.CreateThread("owner", 0, 3, func(ctx context.Context) {
		self := Self(ctx)
		acquired <- m.Lock(self)
		m.Unlock(self)
	})
	k.StartThread(owner)
	k.Boot(5 * time.Millisecond)
	defer k.Shutdown()

	select {
	case status := <-acquired:
		if status != errs.OK {
			t.Fatalf("Lock returned %v, want OK", status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mutex to be acquired")
	}
}

// TestMailboxHandlesConcurrentProducersAndConsumers hammers a
// capacity-1 Mailbox with several producer and consumer kernel
// threads at once, checking that every sent message is received
// exactly once with no deadlock. Host-side fan-out/fan-in uses
// errgroup rather than a hand-rolled WaitGroup plus error channel.
func TestMailboxHandlesConcurrentProducersAndConsumers(t *testing.T) {
	k := New(testConfig(), nil)
	mb := ipc.NewMailbox(k.Sched, k.HardWheel, 1)

	const n = 5
	received := make(chan int, n)

	for i := 0; i < n; i++ {
		i := i
		producer := k.CreateThread(fmt.Sprintf("producer-%d", i), 0, 4, func(ctx context.Context) {
			self := Self(ctx)
			if status := mb.Send(self, i, false, thread.Forever); status != errs.OK {
				t.Errorf("producer %d: Send = %v, want OK", i, status)
			}
		})
		k.StartThread(producer)
	}
	for i := 0; i < n; i++ {
		consumer := k.CreateThread(fmt.Sprintf("consumer-%d", i), 0, 4, func(ctx context.Context) {
			self := Self(ctx)
			msg, status := mb.Receive(self, thread.Forever)
			if status != errs.OK {
				t.Errorf("consumer: Receive = %v, want OK", status)
				return
			}
			received <- msg.(int)
		})
		k.StartThread(consumer)
	}

	k.Boot(5 * time.Millisecond)
	defer k.Shutdown()

	var g errgroup.Group
	seen := make(map[int]bool)
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		g.Go(func() error {
			select {
			case msg := <-received:
				mu.Lock()
				defer mu.Unlock()
				if seen[msg] {
					return fmt.Errorf("message %d received more than once", msg)
				}
				seen[msg] = true
				return nil
			case <-time.After(2 * time.Second):
				return fmt.Errorf("timed out waiting for a mailbox message")
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(seen) != n {
		t.Fatalf("received %d distinct messages, want %d", len(seen), n)
	}
}
