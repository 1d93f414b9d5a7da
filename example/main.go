// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command kerneldemo boots the kernel and walks through the worked
// examples spec.md §8 and §9 describe: priority inheritance recovering
// a low-priority owner that blocks a high-priority waiter, a mailbox
// producer/consumer handoff, an event wait that only wakes once every
// requested bit has arrived, and a timed wait that gives up once its
// deadline passes.
//
// This is a demo harness, not a test: each scenario prints its outcome
// and the program exits once every scenario's goroutine has reported
// in, coordinated host-side with golang.org/x/sync/errgroup rather than
// a bespoke WaitGroup/channel fan-in.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/ipc"
	"github.com/blueos-go/kernelcore/kernel"
	"github.com/blueos-go/kernelcore/thread"
)

func main() {
	tick := flag.Duration("tick", 2*time.Millisecond, "hardware tick period")
	flag.Parse()

	logger := log.New(os.Stdout, "kerneldemo: ", log.Lmicroseconds)
	k := kernel.New(kernel.DefaultConfig(), logger)
	k.Boot(*tick)
	defer k.Shutdown()

	var g errgroup.Group
	g.Go(func() error { return priorityInheritanceDemo(k) })
	g.Go(func() error { return mailboxDemo(k) })
	g.Go(func() error { return eventAndDemo(k) })
	g.Go(func() error { return timedWaitDemo(k) })

	if err := g.Wait(); err != nil {
		logger.Fatalf("demo failed: %v", err)
	}
	logger.Println("all scenarios completed")
}

// priorityInheritanceDemo mirrors spec.md §8's worked example: a
// low-priority thread takes a mutex, a high-priority thread blocks on
// it and boosts the owner's priority, and release restores the owner
// to its base priority.
func priorityInheritanceDemo(k *kernel.Kernel) error {
	m := k.NewMutex()
	result := make(chan string, 2)

	low := k.CreateThread("low-owner", 0, 6, func(ctx context.Context) {
		self := kernel.Self(ctx)
		if status := m.Lock(self); status != errs.OK {
			result <- fmt.Sprintf("low: lock failed: %v", status)
			return
		}
		k.Sleep(self, 5, thread.Uninterruptible)
		result <- fmt.Sprintf("low: released at priority %d", self.Priority.Current)
		m.Unlock(self)
	})

	high := k.CreateThread("high-waiter", 0, 1, func(ctx context.Context) {
		self := kernel.Self(ctx)
		k.Sleep(self, 1, thread.Uninterruptible)
		status := m.Lock(self)
		result <- fmt.Sprintf("high: acquired mutex, status=%v", status)
		m.Unlock(self)
	})

	k.StartThread(low)
	k.StartThread(high)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-result:
			log.Println(msg)
		case <-time.After(2 * time.Second):
			return fmt.Errorf("priority inheritance demo timed out")
		}
	}
	return nil
}

// mailboxDemo hands a single message from a producer thread to a
// consumer thread through an ipc.Mailbox.
func mailboxDemo(k *kernel.Kernel) error {
	mb := ipc.NewMailbox(k.Sched, k.HardWheel, 1)
	done := make(chan string, 1)

	consumer := k.CreateThread("mailbox-consumer", 0, 4, func(ctx context.Context) {
		self := kernel.Self(ctx)
		msg, status := mb.Receive(self, thread.Forever)
		done <- fmt.Sprintf("consumer: received %q, status=%v", msg, status)
	})
	producer := k.CreateThread("mailbox-producer", 0, 4, func(ctx context.Context) {
		self := kernel.Self(ctx)
		mb.Send(self, "hello from producer", false, thread.Forever)
	})

	k.StartThread(consumer)
	k.StartThread(producer)

	select {
	case msg := <-done:
		log.Println(msg)
	case <-time.After(2 * time.Second):
		return fmt.Errorf("mailbox demo timed out")
	}
	return nil
}

// eventAndDemo shows an event.Wait that requires every requested bit
// (WaitAll) rather than any one of them: the waiter only wakes once
// both setter threads have contributed their bit.
func eventAndDemo(k *kernel.Kernel) error {
	ev := ipc.NewEvent(k.Sched, k.HardWheel)
	done := make(chan string, 1)

	const bitA, bitB = 0b01, 0b10

	waiter := k.CreateThread("event-waiter", 0, 4, func(ctx context.Context) {
		self := kernel.Self(ctx)
		matched, status := ev.Wait(self, bitA|bitB, ipc.WaitAll, ipc.ClearOnExit, thread.Forever)
		done <- fmt.Sprintf("waiter: matched=%#b status=%v", matched, status)
	})
	setterA := k.CreateThread("event-setter-a", 0, 5, func(ctx context.Context) {
		self := kernel.Self(ctx)
		k.Sleep(self, 1, thread.Uninterruptible)
		ev.Set(bitA)
	})
	setterB := k.CreateThread("event-setter-b", 0, 5, func(ctx context.Context) {
		self := kernel.Self(ctx)
		k.Sleep(self, 2, thread.Uninterruptible)
		ev.Set(bitB)
	})

	k.StartThread(waiter)
	k.StartThread(setterA)
	k.StartThread(setterB)

	select {
	case msg := <-done:
		log.Println(msg)
	case <-time.After(2 * time.Second):
		return fmt.Errorf("event AND demo timed out")
	}
	return nil
}

// timedWaitDemo takes a semaphore nobody ever gives, so the waiter's
// timeout is the only way out.
func timedWaitDemo(k *kernel.Kernel) error {
	sem := ipc.NewSemaphore(k.Sched, k.HardWheel, 0, 1)
	done := make(chan string, 1)

	waiter := k.CreateThread("sem-waiter", 0, 4, func(ctx context.Context) {
		self := kernel.Self(ctx)
		status := sem.Take(self, 5)
		done <- fmt.Sprintf("waiter: status=%v", status)
	})
	k.StartThread(waiter)

	select {
	case msg := <-done:
		log.Println(msg)
	case <-time.After(2 * time.Second):
		return fmt.Errorf("timed wait demo timed out")
	}
	return nil
}
