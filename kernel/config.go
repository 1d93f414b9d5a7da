// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel wires the object registry, scheduler, mutex/ipc
// primitives, and timer wheels into the top-level Kernel named in
// spec.md §6's external-interfaces boundary, and exposes the
// user-visible Thread surface (create, start, delete, suspend, resume,
// sleep, yield, self, set_priority, join) spec.md §6 names.
//
// Grounded on fuse.MountOptions/fuse.NewServer: a single config struct
// passed by value at construction time, no environment variables, no
// flags package, matching SPEC_FULL.md §A.3.
package kernel

// Config holds the compile-time-ish tunables spec.md's examples fix at
// boot (PRIO_MAX=32, TIMER_WHEEL_SIZE=32, MAX_NEST=255), grounded on
// the original source's Kconfig-style constants
// (bluekernel_kconfig::THREAD_PRIORITY_MAX).
type Config struct {
	// PrioMax is the number of distinct priority levels, 0 (highest)
	// through PrioMax-1 (lowest).
	PrioMax uint8
	// CPUCount is the number of simulated CPUs the scheduler manages.
	CPUCount int
	// TimerWheelSize is the bucket count shared by the hard and soft
	// wheels; rounded up to a power of two.
	TimerWheelSize uint32
	// MaxMutexNest bounds recursive Mutex.Lock depth.
	MaxMutexNest uint8
}

// DefaultConfig returns the tunables spec.md's worked examples assume.
func DefaultConfig() Config {
	return Config{
		PrioMax:        32,
		CPUCount:       1,
		TimerWheelSize: 32,
		MaxMutexNest:   255,
	}
}
