// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package archport

// Allocator is the dynamic memory source spec.md §6 names for the
// object registry's dynamic create paths (as opposed to the static
// `Init` paths, which take caller-owned storage). Expected to be
// thread-safe and callable without blocking, since some callers run
// with interrupts disabled.
type Allocator interface {
	// Alloc returns size bytes of zeroed storage, or nil if
	// exhausted. Never blocks.
	Alloc(size int) []byte
	// Free releases storage previously returned by Alloc. A no-op
	// implementation is valid for an allocator backed by a garbage
	// collector.
	Free(buf []byte)
}

// HostAllocator is the hosted Allocator: every Alloc is an ordinary Go
// make(), and Free is a no-op left to the garbage collector. This
// satisfies the interface's "thread-safe, non-blocking" contract
// trivially, the same way the donor's zipfs package leans on Go's
// allocator rather than implementing its own arena (zipfs/zipfs.go
// never pools or recycles node storage).
type HostAllocator struct{}

func (HostAllocator) Alloc(size int) []byte {
	return make([]byte, size)
}

func (HostAllocator) Free(buf []byte) {}
