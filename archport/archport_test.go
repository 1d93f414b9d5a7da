// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package archport

import (
	"testing"
	"time"
)

func TestHostPortIRQNesting(t *testing.T) {
	p := NewHostPort()
	if p.IsInIRQ() {
		t.Fatal("IsInIRQ true before any EnterIRQ")
	}
	p.EnterIRQ()
	if !p.IsInIRQ() || p.IRQNestCount() != 1 {
		t.Fatalf("after one EnterIRQ: inIRQ=%v nest=%d, want true 1", p.IsInIRQ(), p.IRQNestCount())
	}
	p.EnterIRQ()
	if p.IRQNestCount() != 2 {
		t.Fatalf("nest = %d, want 2", p.IRQNestCount())
	}
	p.LeaveIRQ()
	if !p.IsInIRQ() {
		t.Fatal("IsInIRQ false after only one of two LeaveIRQ calls")
	}
	p.LeaveIRQ()
	if p.IsInIRQ() {
		t.Fatal("IsInIRQ true after matching LeaveIRQ calls")
	}
}

func TestHostPortDisableEnableIRQRestoresDepth(t *testing.T) {
	p := NewHostPort()
	lvl1 := p.DisableIRQ()
	lvl2 := p.DisableIRQ()
	p.EnableIRQ(lvl2)
	p.EnableIRQ(lvl1)
	if p.depth != 0 {
		t.Fatalf("depth = %d, want 0 after matching enable/disable pairs", p.depth)
	}
}

func TestHostClockDeliversTicksAndBracketsIRQ(t *testing.T) {
	port := NewHostPort()
	clk := NewHostClock(port)

	sawIRQ := make(chan bool, 8)
	clk.Start(5*time.Millisecond, func(now uint32) {
		sawIRQ <- port.IsInIRQ()
	})
	defer clk.Stop()

	select {
	case in := <-sawIRQ:
		if !in {
			t.Fatal("onTick ran without IsInIRQ reporting true")
		}
	case <-time.After(time.Second):
		t.Fatal("HostClock never delivered a tick")
	}

	if port.IsInIRQ() {
		t.Fatal("IsInIRQ still true after onTick returned")
	}
	if clk.TickGet() == 0 {
		t.Fatal("TickGet still 0 after at least one delivered tick")
	}
}

func TestHostAllocatorAllocIsZeroed(t *testing.T) {
	var a HostAllocator
	buf := a.Alloc(16)
	if len(buf) != 16 {
		t.Fatalf("len(buf) = %d, want 16", len(buf))
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %d, want 0", i, b)
		}
	}
	a.Free(buf)
}
