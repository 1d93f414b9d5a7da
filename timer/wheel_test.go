// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timer

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

// TestTimerExpiryOrdering is scenario 2 from spec.md §8: three
// one-shot timers started at t=0 with ticks 5, 3, 7 must fire in the
// order T3@3, T5@5, T7@7.
func TestTimerExpiryOrdering(t *testing.T) {
	w := NewWheel(32)

	var order []string
	mk := func(name string) *Timer {
		return New(func(param any) { order = append(order, param.(string)) }, name, false)
	}

	t5 := mk("T5")
	t3 := mk("T3")
	t7 := mk("T7")

	w.Insert(t5, 5)
	w.Insert(t3, 3)
	w.Insert(t7, 7)

	for now := uint32(1); now <= 7; now++ {
		w.Tick(now)
	}

	want := []string{"T3", "T5", "T7"}
	if diff := pretty.Compare(order, want); diff != "" {
		t.Fatalf("expiry order mismatch (-got +want):\n%s", diff)
	}
}

// TestStartStopNeverFires is R4 from spec.md §8.
func TestStartStopNeverFires(t *testing.T) {
	w := NewWheel(32)
	fired := false
	tm := New(func(any) { fired = true }, nil, false)

	w.Insert(tm, 5)
	w.Stop(tm)

	for now := uint32(1); now <= 10; now++ {
		w.Tick(now)
	}
	if fired {
		t.Fatal("callback ran after Stop")
	}
}

// TestStopIdempotent exercises spec.md §4.6 "stop is idempotent".
func TestStopIdempotent(t *testing.T) {
	w := NewWheel(32)
	tm := New(func(any) {}, nil, false)
	w.Insert(tm, 5)
	w.Stop(tm)
	w.Stop(tm) // must not panic or double-remove
}

// TestPeriodicRearms is B3 from spec.md §8: a periodic timer with
// init_ticks=1 fires at least once per tick and is re-armed before
// the next dispatch.
func TestPeriodicRearms(t *testing.T) {
	w := NewWheel(8)
	count := 0
	tm := New(func(any) { count++ }, nil, false)
	tm.SetPeriodic(true)

	w.Insert(tm, 1)
	for now := uint32(1); now <= 5; now++ {
		w.Tick(now)
	}
	if count != 5 {
		t.Fatalf("periodic timer fired %d times in 5 ticks, want 5", count)
	}
	if !tm.IsActivated() {
		t.Fatal("periodic timer should remain armed after firing")
	}
}

// TestImmediateZeroTicks is spec.md §4.6's "inserting a timer with
// init_ticks=0 causes an immediate synchronous callback dispatch".
func TestImmediateZeroTicks(t *testing.T) {
	w := NewWheel(32)
	fired := false
	tm := New(func(any) { fired = true }, nil, false)
	w.Insert(tm, 0)
	if !fired {
		t.Fatal("zero-tick insert did not dispatch synchronously")
	}
	if tm.IsActivated() {
		t.Fatal("zero-tick insert should not leave the timer armed")
	}
}

func TestNextDue(t *testing.T) {
	w := NewWheel(32)
	w.Tick(0)
	a := New(func(any) {}, nil, true)
	b := New(func(any) {}, nil, true)
	w.Insert(a, 10)
	w.Insert(b, 3)

	delta, ok := w.NextDue(0)
	if !ok || delta != 3 {
		t.Fatalf("NextDue = (%d, %v), want (3, true)", delta, ok)
	}
}
