// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timer

import (
	"github.com/blueos-go/kernelcore/internal/kspin"
	"github.com/blueos-go/kernelcore/object"
)

// DefaultWheelSize is TIMER_WHEEL_SIZE from spec.md §3: a power of two,
// default 32.
const DefaultWheelSize = 32

// Wheel is a hashed timer wheel (spec.md §3, §4.6). Two instances
// exist process-wide: the hard wheel, ticked from the tick ISR path,
// and the soft wheel, ticked by the dedicated soft-timer thread.
type Wheel struct {
	mu      kspin.Lock
	size    uint32
	mask    uint32
	buckets []object.List
	cursor  uint32
	now     uint32

	// busy is set while the soft-timer thread is running callbacks
	// and is reported by Busy (spec.md §4.6). Insert does not consult
	// it and never wakes the soft-timer thread itself.
	busy bool
}

// NewWheel returns an empty wheel with size buckets. size must be a
// power of two; NewWheel rounds up if it is not.
func NewWheel(size uint32) *Wheel {
	if size == 0 {
		size = DefaultWheelSize
	}
	size = nextPow2(size)
	w := &Wheel{
		size:    size,
		mask:    size - 1,
		buckets: make([]object.List, size),
	}
	for i := range w.buckets {
		w.buckets[i].Init()
	}
	return w
}

func nextPow2(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

// Now returns the wheel's last observed absolute tick value.
func (w *Wheel) Now() uint32 {
	w.mu.Acquire()
	defer w.mu.Release()
	return w.now
}

// SetBusy marks whether the soft-timer thread is currently inside its
// expiry walk; only meaningful for the soft wheel.
func (w *Wheel) SetBusy(busy bool) {
	w.mu.Acquire()
	w.busy = busy
	w.mu.Release()
}

// Busy reports the soft-busy flag (spec.md §4.6).
func (w *Wheel) Busy() bool {
	w.mu.Acquire()
	defer w.mu.Release()
	return w.busy
}

// Insert arms tm to fire initTicks ticks from now (the wheel's
// current absolute tick, as of the last Tick call). A zero initTicks
// causes an immediate synchronous dispatch with no wheel insertion
// (spec.md §4.6 "Failure semantics"), invoked through runCallback
// before Insert returns.
func (w *Wheel) Insert(tm *Timer, initTicks uint32) {
	if initTicks == 0 {
		runCallback(tm)
		if tm.IsPeriodic() {
			w.Insert(tm, tm.initTicks)
		}
		return
	}

	w.mu.Acquire()
	tm.mu.Acquire()

	tm.initTicks = initTicks
	tm.deadline = w.now + initTicks
	tm.wheel = w
	tm.flags |= FlagActivated

	bucket := (w.cursor + initTicks) & w.mask
	tm.bucket = bucket
	w.insertSortedLocked(bucket, tm)

	tm.mu.Release()
	w.mu.Release()
}

// insertSortedLocked inserts tm's wheelNode into bucket, keeping the
// bucket ascending by absolute deadline (spec.md §4.6).
func (w *Wheel) insertSortedLocked(bucket uint32, tm *Timer) {
	list := &w.buckets[bucket]
	var mark *object.Node
	list.Each(func(n *object.Node) bool {
		other := n.Owner.(*Timer)
		if diffU32(other.deadline, tm.deadline) > 0 {
			mark = n
			return false
		}
		return true
	})
	if mark != nil {
		list.InsertBefore(&tm.wheelNode, mark)
	} else {
		list.PushBack(&tm.wheelNode)
	}
}

// Stop removes tm from the wheel if armed. Idempotent (spec.md §4.6).
func (w *Wheel) Stop(tm *Timer) {
	w.mu.Acquire()
	defer w.mu.Release()
	w.stopLocked(tm)
}

func (w *Wheel) stopLocked(tm *Timer) {
	tm.mu.Acquire()
	defer tm.mu.Release()
	if tm.flags&FlagActivated == 0 {
		return
	}
	w.buckets[tm.bucket].Remove(&tm.wheelNode)
	tm.flags &^= FlagActivated
	tm.wheel = nil
}

// diffU32 returns the signed distance from b to a, b-relative,
// treating both as points on a wrapping uint32 clock: positive means
// a is "after" b.
func diffU32(a, b uint32) int32 {
	return int32(a - b)
}

// due reports whether deadline is due-or-overdue relative to now:
// spec.md §4.6's "less than half the tick-count modulus" rule, which
// substitutes for an explicit per-timer round counter in this
// single-level wheel.
func due(deadline, now uint32) bool {
	return now-deadline < 1<<31
}

// Tick advances the wheel to absolute tick `now` (monotonically
// increasing, wrapping uint32) and dispatches every timer in the
// newly-current bucket whose deadline is due or overdue. Callbacks
// run with the wheel lock released (spec.md §5: "the wheel lock is
// released across callback invocation"); periodic timers are
// re-inserted using the snapshot of `cursor`/`now` taken at the start
// of this Tick, resolving SPEC_FULL.md §D's stale-cursor question.
func (w *Wheel) Tick(now uint32) {
	w.mu.Acquire()
	w.now = now
	w.cursor = now & w.mask
	cursorSnapshot := w.cursor
	nowSnapshot := now

	bucket := &w.buckets[w.cursor]
	var due_ []*Timer
	var again []*object.Node
	bucket.Each(func(n *object.Node) bool {
		tm := n.Owner.(*Timer)
		if due(tm.deadline, nowSnapshot) {
			again = append(again, n)
		}
		return true
	})
	for _, n := range again {
		bucket.Remove(n)
		tm := n.Owner.(*Timer)
		tm.mu.Acquire()
		tm.flags &^= FlagActivated
		tm.wheel = nil
		tm.mu.Release()
		due_ = append(due_, tm)
	}
	w.mu.Release()

	for _, tm := range due_ {
		runCallback(tm)
		if tm.IsPeriodic() {
			w.reinsertFromSnapshot(tm, cursorSnapshot, nowSnapshot)
		}
	}
}

// reinsertFromSnapshot re-arms a periodic timer using the cursor/now
// pair captured at the start of the Tick that just fired it, even
// though other goroutines may have advanced the wheel further while
// the callback ran.
func (w *Wheel) reinsertFromSnapshot(tm *Timer, cursorSnapshot, nowSnapshot uint32) {
	w.mu.Acquire()
	tm.mu.Acquire()
	tm.deadline = nowSnapshot + tm.initTicks
	tm.wheel = w
	tm.flags |= FlagActivated
	bucket := (cursorSnapshot + tm.initTicks) & w.mask
	tm.bucket = bucket
	w.insertSortedLocked(bucket, tm)
	tm.mu.Release()
	w.mu.Release()
}

func runCallback(tm *Timer) {
	tm.mu.Acquire()
	cb, param := tm.callback, tm.param
	tm.mu.Release()
	if cb != nil {
		cb(param)
	}
}

// NextDue scans every bucket for the smallest due-tick among armed
// timers, returning (delta, ok). Used by the soft-timer thread to
// decide how long to sleep (spec.md §4.6 "Soft tick"). delta is the
// number of ticks from `now` until the nearest deadline; 0 if a timer
// is already due.
func (w *Wheel) NextDue(now uint32) (delta uint32, ok bool) {
	w.mu.Acquire()
	defer w.mu.Release()

	found := false
	var best uint32
	for i := range w.buckets {
		w.buckets[i].Each(func(n *object.Node) bool {
			tm := n.Owner.(*Timer)
			d := tm.deadline - now
			if int32(d) < 0 {
				d = 0
			}
			if !found || d < best {
				best = d
				found = true
			}
			return true
		})
	}
	return best, found
}
