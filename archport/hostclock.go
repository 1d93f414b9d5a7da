// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package archport

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Clock is the clock source spec.md §6 names: a wrapping tick counter
// plus a periodic tick ISR that drives the scheduler's own tick
// handler and the hard timer wheel's tick handler.
type Clock interface {
	// TickGet returns the current tick count (wraps at 2^32).
	TickGet() uint32
	// Start begins delivering a tick every period, invoking onTick
	// from the simulated ISR context after each one. Start is
	// idempotent; calling it twice without an intervening Stop has no
	// effect.
	Start(period time.Duration, onTick func(now uint32))
	// Stop halts tick delivery. Safe to call even if never started.
	Stop()
}

// HostClock is the hosted Clock implementation. It reads
// CLOCK_MONOTONIC via golang.org/x/sys/unix rather than time.Now(),
// matching the donor corpus's preference for talking to the OS
// through x/sys instead of higher-level stdlib wrappers (fuse/utimens
// and splice/utils.go both take this route rather than wrapping
// time.Time). The tick counter itself is a free-running count of
// ticks delivered, independent of wall-clock jitter.
type HostClock struct {
	port *HostPort

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	ticks uint32 // atomic
}

// NewHostClock constructs a HostClock that brackets each delivered
// tick with port.EnterIRQ/LeaveIRQ so archport.Port.IsInIRQ reports
// true for the duration of onTick, matching spec.md §6's "periodic
// tick ISR".
func NewHostClock(port *HostPort) *HostClock {
	return &HostClock{port: port}
}

// TickGet returns the monotonic tick count. It does not itself read
// CLOCK_MONOTONIC; Now reports the OS clock for diagnostics, TickGet
// reports the number of simulated ticks actually delivered.
func (c *HostClock) TickGet() uint32 {
	return atomic.LoadUint32(&c.ticks)
}

// Now returns the current CLOCK_MONOTONIC time, used only for
// diagnostics (e.g. measuring drift between wall-clock time and
// delivered ticks); the scheduler and timer wheel never consult it
// directly, only TickGet.
func (c *HostClock) Now() (unix.Timespec, error) {
	var ts unix.Timespec
	err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return ts, err
}

func (c *HostClock) Start(period time.Duration, onTick func(now uint32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	go c.run(period, onTick, stopCh)
}

func (c *HostClock) run(period time.Duration, onTick func(now uint32), stopCh chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			now := atomic.AddUint32(&c.ticks, 1)
			if c.port != nil {
				c.port.EnterIRQ()
			}
			onTick(now)
			if c.port != nil {
				c.port.LeaveIRQ()
			}
		}
	}
}

func (c *HostClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
}
