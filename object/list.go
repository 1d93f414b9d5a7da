// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

// Node is an intrusive doubly-linked list element. Kernel objects
// embed one Node per list they may simultaneously belong to (e.g. a
// Thread has one Node for registry residency and one shared Node for
// ready-queue or wait-list residency, since it is never in both at
// once), so that linking never requires
// a heap allocation on the hot path. Owner points back at the
// embedding object; it is the Go stand-in for the C "container_of"
// pattern the original source relies on (blue_infra::list::doubly_linked_list).
//
// Grounded on the nsync waiter dll type: a circular doubly-linked list
// with a sentinel, InsertAfter/Remove/IsEmpty semantics.
type Node struct {
	next, prev *Node
	Owner      any
}

// Init makes n an empty, self-linked node. Every List's head must be
// initialized this way before use.
func (n *Node) Init() {
	n.next = n
	n.prev = n
}

// Linked reports whether n is currently part of some list.
func (n *Node) Linked() bool {
	return n.next != nil
}

func (n *Node) insertAfter(p *Node) {
	n.next = p.next
	n.prev = p
	n.next.prev = n
	n.prev.next = n
}

func (n *Node) remove() {
	n.next.prev = n.prev
	n.prev.next = n.next
	n.next = nil
	n.prev = nil
}

// List is a circular, intrusive, doubly-linked list with a sentinel
// head node. The zero value is not ready to use; call Init first.
type List struct {
	head Node
}

// NewList returns an initialized, empty List.
func NewList() *List {
	l := &List{}
	l.Init()
	return l
}

// Init (re)initializes l to the empty list.
func (l *List) Init() {
	l.head.next = &l.head
	l.head.prev = &l.head
}

// Empty reports whether l has no elements.
func (l *List) Empty() bool {
	return l.head.next == &l.head
}

// PushFront inserts n as the new first element.
func (l *List) PushFront(n *Node) {
	n.insertAfter(&l.head)
}

// PushBack inserts n as the new last element.
func (l *List) PushBack(n *Node) {
	n.insertAfter(l.head.prev)
}

// InsertBefore inserts n immediately before mark, which must already
// be linked into l.
func (l *List) InsertBefore(n, mark *Node) {
	n.insertAfter(mark.prev)
}

// Remove unlinks n from whichever list it is in. A no-op if n is not
// currently linked.
func (l *List) Remove(n *Node) {
	if n.Linked() {
		n.remove()
	}
}

// Front returns the first element, or nil if l is empty.
func (l *List) Front() *Node {
	if l.Empty() {
		return nil
	}
	return l.head.next
}

// Back returns the last element, or nil if l is empty.
func (l *List) Back() *Node {
	if l.Empty() {
		return nil
	}
	return l.head.prev
}

// Next returns the element following n, or nil if n is the last
// element of the list it belongs to (Node does not know which list it
// is in, so callers iterate via the List's Each or by comparing
// against a remembered head).
func (l *List) Next(n *Node) *Node {
	if n.next == &l.head {
		return nil
	}
	return n.next
}

// Each calls f for every element from front to back. f returning
// false stops the iteration early. Each does not itself take any
// lock; callers hold the owning primitive's spinlock as required by
// spec.md §5.
func (l *List) Each(f func(*Node) bool) {
	for n := l.head.next; n != &l.head; n = n.next {
		if !f(n) {
			return
		}
	}
}

// Len walks the list and counts its elements. Registry/wait lists in
// this kernel are expected to be short (bounded by thread count), so
// an O(n) length is acceptable and avoids a separate counter to keep
// in sync.
func (l *List) Len() int {
	n := 0
	l.Each(func(*Node) bool { n++; return true })
	return n
}
