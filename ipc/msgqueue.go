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

// MessageQueue is a fixed-capacity ring of fixed-size byte messages
// (spec.md §4.5), distinct from Mailbox's pointer-sized slots: every
// message is a copy into/out of a pre-allocated slot, matching the
// original source's Rust queue of [u8; MSG_SIZE] buffers
// (SPEC_FULL.md §C.3).
type MessageQueue struct {
	object.Header

	mu        kspin.Lock
	slots     [][]byte
	msgSize   int
	head      int
	count     int
	senders   *wait.List
	receivers *wait.List

	sch   *sched.Scheduler
	wheel *timer.Wheel
}

// NewMessageQueue constructs an empty MessageQueue of capacity slots,
// each msgSize bytes.
func NewMessageQueue(sch *sched.Scheduler, wheel *timer.Wheel, capacity, msgSize int) *MessageQueue {
	slots := make([][]byte, capacity)
	for i := range slots {
		slots[i] = make([]byte, msgSize)
	}
	return &MessageQueue{
		slots:     slots,
		msgSize:   msgSize,
		senders:   wait.New(wait.Priority),
		receivers: wait.New(wait.Priority),
		sch:       sch,
		wheel:     wheel,
	}
}

// Send copies msg (which must be exactly msgSize bytes) into the
// queue, blocking up to timeoutTicks while full. An urgent send is
// placed at the front of the queue (spec.md §C.3).
func (q *MessageQueue) Send(t *thread.Thread, msg []byte, urgent bool, timeoutTicks uint32) errs.Status {
	if len(msg) != q.msgSize {
		return errs.EINVAL
	}

	q.mu.Acquire()
	for q.count == len(q.slots) {
		reason := thread.SuspendWait
		if timeoutTicks != thread.Forever {
			reason = thread.SuspendTimedWait
		}
		status := sched.Block(q.sch, q.senders, t, reason, thread.Uninterruptible, timeoutTicks, q.wheel, &q.mu)
		if status != errs.OK {
			q.mu.Release()
			return status
		}
	}

	var idx int
	if urgent {
		q.head = (q.head - 1 + len(q.slots)) % len(q.slots)
		idx = q.head
	} else {
		idx = (q.head + q.count) % len(q.slots)
	}
	copy(q.slots[idx], msg)
	q.count++

	woke := sched.WakeOne(q.sch, q.receivers, errs.OK)
	q.mu.Release()
	if woke != nil {
		q.sch.RequestPreempt(woke.CurrentCPU)
	}
	return errs.OK
}

// Receive copies the oldest message into dst (which must be exactly
// msgSize bytes), blocking up to timeoutTicks while empty.
func (q *MessageQueue) Receive(t *thread.Thread, dst []byte, timeoutTicks uint32) errs.Status {
	if len(dst) != q.msgSize {
		return errs.EINVAL
	}

	q.mu.Acquire()
	for q.count == 0 {
		reason := thread.SuspendWait
		if timeoutTicks != thread.Forever {
			reason = thread.SuspendTimedWait
		}
		status := sched.Block(q.sch, q.receivers, t, reason, thread.Uninterruptible, timeoutTicks, q.wheel, &q.mu)
		if status != errs.OK {
			q.mu.Release()
			return status
		}
	}

	copy(dst, q.slots[q.head])
	q.head = (q.head + 1) % len(q.slots)
	q.count--

	woke := sched.WakeOne(q.sch, q.senders, errs.OK)
	q.mu.Release()
	if woke != nil {
		q.sch.RequestPreempt(woke.CurrentCPU)
	}
	return errs.OK
}

// Len returns the number of queued messages.
func (q *MessageQueue) Len() int {
	q.mu.Acquire()
	defer q.mu.Release()
	return q.count
}

// Detach unregisters q from the object registry, waking any blocked
// senders and receivers with errs.EINTR first (spec.md §4.5/§7:
// detach/delete of a primitive with active waiters wakes each with
// EINTR, callers must check).
func (q *MessageQueue) Detach(reg *object.Registry) {
	q.mu.Acquire()
	woken := append(sched.WakeAll(q.sch, q.senders, errs.EINTR), sched.WakeAll(q.sch, q.receivers, errs.EINTR)...)
	q.mu.Release()

	for _, t := range woken {
		q.sch.RequestPreempt(t.CurrentCPU)
	}
	reg.Detach(&q.Header)
}

// Delete detaches q (waking any waiters, per Detach) and reports
// errs.EPERM if it was registered static.
func (q *MessageQueue) Delete(reg *object.Registry) errs.Status {
	q.mu.Acquire()
	woken := append(sched.WakeAll(q.sch, q.senders, errs.EINTR), sched.WakeAll(q.sch, q.receivers, errs.EINTR)...)
	q.mu.Release()

	for _, t := range woken {
		q.sch.RequestPreempt(t.CurrentCPU)
	}
	return reg.Delete(&q.Header)
}
