// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"context"

	"github.com/blueos-go/kernelcore/thread"
)

// softTimerPriority is the base priority given to the dedicated
// soft-timer thread: high enough that a due soft timer's callback (a
// thread-context operation, unlike a hard timer's ISR-context one) is
// dispatched promptly, but spec.md names no specific value, so this
// picks one near the top of the range without claiming PRIO 0 for
// itself, leaving that free for truly latency-critical user threads.
const softTimerPriority = 1

// startSoftTimerThread creates and starts the dedicated kernel thread
// spec.md §4.6's "Soft tick" describes: it loops forever, sleeping
// until the soft wheel's next due tick (or for a fixed polling
// interval if nothing is armed or a timer is already due), then
// advances the soft wheel to the current hard-wheel tick.
func (k *Kernel) startSoftTimerThread() {
	const idlePollTicks = 16

	k.softTimer = k.CreateThread("softtimer", 0, softTimerPriority, func(ctx context.Context) {
		self := Self(ctx)
		for {
			now := k.HardWheel.Now()
			delta, ok := k.SoftWheel.NextDue(now)
			if !ok || delta == 0 {
				delta = idlePollTicks
			}
			k.Sleep(self, delta, thread.Uninterruptible)
			k.SoftWheel.SetBusy(true)
			k.SoftWheel.Tick(k.HardWheel.Now())
			k.SoftWheel.SetBusy(false)
		}
	})
	k.StartThread(k.softTimer)
}
