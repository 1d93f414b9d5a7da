// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kspin provides the single spinlock type shared by every
// kernel primitive (object registry, scheduler, mutex,
// semaphore, event, mailbox, message queue, timer wheel), grounded on
// the original source's infra/src/spinarc.rs and tinyarc.rs: one small
// wrapper type in front of the real mutual-exclusion primitive, so the
// "never block while holding a spinlock" and "forbidden from
// interrupt context" contracts of spec.md §5 have exactly one place to
// live instead of being reimplemented per primitive.
//
// On the hosted target this type is backed by sync.Mutex; on bare
// metal an arch port would instead disable interrupts for its
// critical sections, but the contract seen by callers is identical.
package kspin

import "sync"

// Lock is a leaf spinlock. Critical sections guarded by a Lock must be
// short and must not block; the timer wheel lock in particular is
// released across user callback invocation (spec.md §4.6) precisely
// because callbacks may do more than a leaf lock permits.
type Lock struct {
	mu sync.Mutex
}

// Acquire locks l. Matches the naming used throughout the donor corpus
// for explicit (non-deferred) critical sections.
func (l *Lock) Acquire() {
	l.mu.Lock()
}

// Release unlocks l.
func (l *Lock) Release() {
	l.mu.Unlock()
}

// IRQState is an opaque token type mirroring the architecture port's
// disable_irq()/enable_irq(level) contract from spec.md §6. Nothing in
// this module constructs or checks an IRQState; the hosted port has
// no real interrupt controller.
type IRQState struct {
	depth uint32
}

// Guard acquires l and returns a function that releases it, for the
// common "acquire primitive spinlock, do a few checks, maybe release
// early" shape used by every primitive in §4.3's blocking contract.
func (l *Lock) Guard() func() {
	l.Acquire()
	return l.Release
}
