// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipc

import (
	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/internal/kspin"
	"github.com/blueos-go/kernelcore/object"
	"github.com/blueos-go/kernelcore/sched"
	"github.com/blueos-go/kernelcore/thread"
	"github.com/blueos-go/kernelcore/timer"
	"github.com/blueos-go/kernelcore/wait"
)

// Mailbox is a fixed-capacity ring of pointer-sized messages (spec.md
// §4.5), with one wait list for blocked senders and one for blocked
// receivers. Urgent sends prepend instead of appending.
type Mailbox struct {
	object.Header

	mu        kspin.Lock
	buf       []any
	head      int
	count     int
	senders   *wait.List
	receivers *wait.List

	sch   *sched.Scheduler
	wheel *timer.Wheel
}

// NewMailbox constructs an empty Mailbox holding up to capacity
// messages.
func NewMailbox(sch *sched.Scheduler, wheel *timer.Wheel, capacity int) *Mailbox {
	return &Mailbox{
		buf:       make([]any, capacity),
		senders:   wait.New(wait.Priority),
		receivers: wait.New(wait.Priority),
		sch:       sch,
		wheel:     wheel,
	}
}

// Send enqueues msg, blocking up to timeoutTicks while the mailbox is
// full. An urgent send is placed at the front of the queue instead of
// the back (spec.md §C.3's priority/urgent prepend).
func (mb *Mailbox) Send(t *thread.Thread, msg any, urgent bool, timeoutTicks uint32) errs.Status {
	mb.mu.Acquire()
	for mb.count == len(mb.buf) {
		reason := thread.SuspendWait
		if timeoutTicks != thread.Forever {
			reason = thread.SuspendTimedWait
		}
		status := sched.Block(mb.sch, mb.senders, t, reason, thread.Uninterruptible, timeoutTicks, mb.wheel, &mb.mu)
		if status != errs.OK {
			mb.mu.Release()
			return status
		}
	}

	if urgent {
		mb.head = (mb.head - 1 + len(mb.buf)) % len(mb.buf)
		mb.buf[mb.head] = msg
	} else {
		mb.buf[(mb.head+mb.count)%len(mb.buf)] = msg
	}
	mb.count++

	woke := sched.WakeOne(mb.sch, mb.receivers, errs.OK)
	mb.mu.Release()
	if woke != nil {
		mb.sch.RequestPreempt(woke.CurrentCPU)
	}
	return errs.OK
}

// Receive dequeues the oldest message, blocking up to timeoutTicks
// while the mailbox is empty.
func (mb *Mailbox) Receive(t *thread.Thread, timeoutTicks uint32) (any, errs.Status) {
	mb.mu.Acquire()
	for mb.count == 0 {
		reason := thread.SuspendWait
		if timeoutTicks != thread.Forever {
			reason = thread.SuspendTimedWait
		}
		status := sched.Block(mb.sch, mb.receivers, t, reason, thread.Uninterruptible, timeoutTicks, mb.wheel, &mb.mu)
		if status != errs.OK {
			mb.mu.Release()
			return nil, status
		}
	}

	msg := mb.buf[mb.head]
	mb.buf[mb.head] = nil
	mb.head = (mb.head + 1) % len(mb.buf)
	mb.count--

	woke := sched.WakeOne(mb.sch, mb.senders, errs.OK)
	mb.mu.Release()
	if woke != nil {
		mb.sch.RequestPreempt(woke.CurrentCPU)
	}
	return msg, errs.OK
}

// Len returns the number of queued messages.
func (mb *Mailbox) Len() int {
	mb.mu.Acquire()
	defer mb.mu.Release()
	return mb.count
}

// Detach unregisters mb from the object registry, waking any blocked
// senders and receivers with errs.EINTR first (spec.md §4.5/§7:
// detach/delete of a primitive with active waiters wakes each with
// EINTR, callers must check).
func (mb *Mailbox) Detach(reg *object.Registry) {
	mb.mu.Acquire()
	woken := append(sched.WakeAll(mb.sch, mb.senders, errs.EINTR), sched.WakeAll(mb.sch, mb.receivers, errs.EINTR)...)
	mb.mu.Release()

	for _, t := range woken {
		mb.sch.RequestPreempt(t.CurrentCPU)
	}
	reg.Detach(&mb.Header)
}

// Delete detaches mb (waking any waiters, per Detach) and reports
// errs.EPERM if it was registered static.
func (mb *Mailbox) Delete(reg *object.Registry) errs.Status {
	mb.mu.Acquire()
	woken := append(sched.WakeAll(mb.sch, mb.senders, errs.EINTR), sched.WakeAll(mb.sch, mb.receivers, errs.EINTR)...)
	mb.mu.Release()

	for _, t := range woken {
		mb.sch.RequestPreempt(t.CurrentCPU)
	}
	return reg.Delete(&mb.Header)
}
