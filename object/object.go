// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package object implements the kernel object registry (spec.md §3,
// §4.1): the common header every schedulable or waitable entity
// embeds, the intrusive list type used to link objects without a
// per-node heap allocation, and the per-kind registry that gives
// uniform identity, lifecycle, and enumeration to threads, mutexes,
// semaphores, events, mailboxes, message queues, timers, and memory
// pools.
package object

import (
	"github.com/blueos-go/kernelcore/errs"
	"github.com/blueos-go/kernelcore/internal/kspin"
)

// Kind tags what a kernel object is. Uninit is the zero value: an
// object not (or no longer) registered.
type Kind uint8

const (
	Uninit Kind = iota
	KindThread
	KindSemaphore
	KindMutex
	KindEvent
	KindMailbox
	KindMessageQueue
	KindTimer
	KindMemPool
	KindDevice
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Uninit:
		return "Uninit"
	case KindThread:
		return "Thread"
	case KindSemaphore:
		return "Semaphore"
	case KindMutex:
		return "Mutex"
	case KindEvent:
		return "Event"
	case KindMailbox:
		return "Mailbox"
	case KindMessageQueue:
		return "MessageQueue"
	case KindTimer:
		return "Timer"
	case KindMemPool:
		return "MemPool"
	case KindDevice:
		return "Device"
	default:
		return "Kind(?)"
	}
}

// NameLen is the maximum length of a kernel object's diagnostic name
// (spec.md §3: "short fixed-length identifier (≤8 bytes)").
const NameLen = 8

// Header is the common object header embedded by every kernel object.
// It carries identity (name, kind), lifecycle (static bit), and the
// intrusive node linking it into its kind's registry list.
type Header struct {
	name   [NameLen]byte
	kind   Kind
	static bool

	// Owner points back at the concrete object embedding this
	// Header (Thread, Mutex, Semaphore, ...), the Go analogue of
	// the original's container_of-based field access.
	Owner any

	regNode Node
}

// Name returns the object's diagnostic name, trimmed of trailing NULs.
func (h *Header) Name() string {
	n := 0
	for n < len(h.name) && h.name[n] != 0 {
		n++
	}
	return string(h.name[:n])
}

// Kind returns the object's current kind tag. Uninit means detached
// or deleted.
func (h *Header) Kind() Kind {
	return h.kind
}

// IsStatic reports whether the object's storage is externally owned.
func (h *Header) IsStatic() bool {
	return h.static
}

func (h *Header) setName(name string) {
	var buf [NameLen]byte
	copy(buf[:], name)
	h.name = buf
}

// Registry is the process-wide singleton tracking every live kernel
// object, grouped by Kind. Grounded on fuse/handle.go's HandleMap: a
// single spinlock-guarded table giving uniform register/lookup/forget
// operations over otherwise-unrelated concrete types.
type Registry struct {
	mu    kspin.Lock
	lists [numKinds]List

	// irqCheck, when non-nil, reports whether the caller is
	// currently in interrupt context. Allocate/Delete-equivalent
	// operations assert against it per spec.md §4.1 ("must not be
	// called from interrupt context").
	irqCheck func() bool
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.lists {
		r.lists[i].Init()
	}
	return r
}

// SetIRQCheck installs the predicate used to guard against calling
// interrupt-unsafe registry operations from interrupt context.
func (r *Registry) SetIRQCheck(f func() bool) {
	r.irqCheck = f
}

func (r *Registry) assertNotInIRQ(op string) {
	if r.irqCheck != nil && r.irqCheck() {
		panic("object: " + op + " called from interrupt context")
	}
}

// Init sets h's header fields and links it into the registry list for
// kind, matching spec.md's init(obj, kind, name): marks the object
// static. Panics (debug-build assertion) if h is already registered.
func (r *Registry) Init(h *Header, kind Kind, name string, owner any) {
	r.mu.Acquire()
	defer r.mu.Release()

	if h.kind != Uninit {
		panic("object: init called on an already-registered object")
	}
	h.setName(name)
	h.kind = kind
	h.static = true
	h.Owner = owner
	h.regNode.Owner = h
	r.lists[kind].PushBack(&h.regNode)
}

// InitDynamic is Init's counterpart for heap-allocated objects
// (spec.md's allocate(kind, name)): identical linking, but the static
// bit is left clear and the call is rejected from interrupt context.
func (r *Registry) InitDynamic(h *Header, kind Kind, name string, owner any) {
	r.assertNotInIRQ("allocate")

	r.mu.Acquire()
	defer r.mu.Release()

	if h.kind != Uninit {
		panic("object: init called on an already-registered object")
	}
	h.setName(name)
	h.kind = kind
	h.static = false
	h.Owner = owner
	h.regNode.Owner = h
	r.lists[kind].PushBack(&h.regNode)
}

// Detach removes h from the registry and marks it Uninit. Storage is
// retained; safe to call from any context including interrupt
// context, matching spec.md's "storage retained" semantics.
func (r *Registry) Detach(h *Header) {
	r.mu.Acquire()
	defer r.mu.Release()
	r.detachLocked(h)
}

func (r *Registry) detachLocked(h *Header) {
	if h.kind == Uninit {
		return
	}
	r.lists[h.kind].Remove(&h.regNode)
	h.kind = Uninit
}

// Delete detaches h and releases its storage ownership. Preconditions
// (spec.md §4.1): h must not be static, and Delete must not be called
// from interrupt context. Returns EPERM if h is static.
func (r *Registry) Delete(h *Header) errs.Status {
	r.assertNotInIRQ("delete")

	r.mu.Acquire()
	defer r.mu.Release()

	if h.static {
		return errs.EPERM
	}
	r.detachLocked(h)
	return errs.OK
}

// Find performs a linear scan of kind's list for the first object
// named name, under the registry spinlock.
func (r *Registry) Find(kind Kind, name string) *Header {
	r.mu.Acquire()
	defer r.mu.Release()

	var found *Header
	r.lists[kind].Each(func(n *Node) bool {
		h := n.Owner.(*Header)
		if h.Name() == name {
			found = h
			return false
		}
		return true
	})
	return found
}

// ForEach applies f to every object of kind under the registry
// spinlock. f must not block (spec.md §5: "callbacks must not
// block"); f returning false stops the iteration early.
func (r *Registry) ForEach(kind Kind, f func(*Header) bool) {
	r.mu.Acquire()
	defer r.mu.Release()

	r.lists[kind].Each(func(n *Node) bool {
		return f(n.Owner.(*Header))
	})
}

// Len returns the number of live objects of kind.
func (r *Registry) Len(kind Kind) int {
	r.mu.Acquire()
	defer r.mu.Release()
	return r.lists[kind].Len()
}

// Pointers copies up to len(out) object headers of kind into out,
// returning the number copied, matching spec.md §6's
// get_pointers(kind, out[], max).
func (r *Registry) Pointers(kind Kind, out []*Header) int {
	r.mu.Acquire()
	defer r.mu.Release()

	i := 0
	r.lists[kind].Each(func(n *Node) bool {
		if i >= len(out) {
			return false
		}
		out[i] = n.Owner.(*Header)
		i++
		return true
	})
	return i
}
