// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import (
	"strings"
	"testing"

	"github.com/blueos-go/kernelcore/errs"
	"github.com/kylelemons/godebug/pretty"
)

func markSeen(t *testing.T, substr string) {
	if r := recover(); r != nil {
		s, ok := r.(string)
		if !ok || !strings.Contains(s, substr) {
			panic(r)
		}
		t.Logf("expected recovery from: %v", r)
	} else {
		t.Errorf("expected a panic containing %q", substr)
	}
}

func TestRegistryInitAndFind(t *testing.T) {
	r := NewRegistry()
	var h1, h2 Header
	r.Init(&h1, KindSemaphore, "sem0", nil)
	r.Init(&h2, KindSemaphore, "sem1", nil)

	if got := r.Len(KindSemaphore); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	if r.Find(KindSemaphore, "sem1") != &h2 {
		t.Fatal("Find did not return sem1's header")
	}
	if r.Find(KindSemaphore, "missing") != nil {
		t.Fatal("Find found a nonexistent object")
	}
}

func TestRegistryDoubleInitPanics(t *testing.T) {
	defer markSeen(t, "already-registered")
	r := NewRegistry()
	var h Header
	r.Init(&h, KindMutex, "m", nil)
	r.Init(&h, KindMutex, "m", nil)
}

func TestRegistryDetachRemovesFromList(t *testing.T) {
	r := NewRegistry()
	var h Header
	r.Init(&h, KindTimer, "t0", nil)
	r.Detach(&h)

	if h.Kind() != Uninit {
		t.Fatalf("Kind after detach = %v, want Uninit", h.Kind())
	}
	if got := r.Len(KindTimer); got != 0 {
		t.Fatalf("Len after detach = %d, want 0", got)
	}
}

func TestRegistryDeleteRejectsStatic(t *testing.T) {
	r := NewRegistry()
	var h Header
	r.Init(&h, KindMailbox, "mb", nil) // Init marks static.

	if got := r.Delete(&h); got != errs.EPERM {
		t.Fatalf("Delete on static object = %v, want EPERM", got)
	}
}

func TestRegistryDeleteDynamic(t *testing.T) {
	r := NewRegistry()
	var h Header
	r.InitDynamic(&h, KindMailbox, "mb", nil)

	if got := r.Delete(&h); got != errs.OK {
		t.Fatalf("Delete on dynamic object = %v, want OK", got)
	}
	if h.Kind() != Uninit {
		t.Fatal("dynamic delete left kind set")
	}
}

func TestRegistryAllocateRejectsIRQContext(t *testing.T) {
	r := NewRegistry()
	inIRQ := true
	r.SetIRQCheck(func() bool { return inIRQ })

	defer markSeen(t, "interrupt context")
	var h Header
	r.InitDynamic(&h, KindTimer, "tmr", nil)
}

func TestRegistryPointersAndForEach(t *testing.T) {
	r := NewRegistry()
	var hs [3]Header
	names := []string{"a", "b", "c"}
	for i := range hs {
		r.Init(&hs[i], KindEvent, names[i], i)
	}

	out := make([]*Header, 2)
	n := r.Pointers(KindEvent, out)
	if n != 2 {
		t.Fatalf("Pointers copied %d, want 2 (truncated by out len)", n)
	}

	var seen []string
	r.ForEach(KindEvent, func(h *Header) bool {
		seen = append(seen, h.Name())
		return true
	})
	want := []string{"a", "b", "c"}
	if diff := pretty.Compare(seen, want); diff != "" {
		t.Fatalf("ForEach order mismatch (-got +want):\n%s", diff)
	}
}

func TestNameTruncationAndOwner(t *testing.T) {
	r := NewRegistry()
	var h Header
	r.Init(&h, KindDevice, "a-name-much-longer-than-eight", 42)

	if len(h.Name()) > NameLen {
		t.Fatalf("Name() too long: %q", h.Name())
	}
	if h.Owner.(int) != 42 {
		t.Fatalf("Owner = %v, want 42", h.Owner)
	}
}

func TestListBasic(t *testing.T) {
	l := NewList()
	if !l.Empty() {
		t.Fatal("new list should be empty")
	}
	var a, b, c Node
	a.Owner, b.Owner, c.Owner = "a", "b", "c"
	l.PushBack(&a)
	l.PushBack(&b)
	l.PushFront(&c)

	var order []string
	l.Each(func(n *Node) bool {
		order = append(order, n.Owner.(string))
		return true
	})
	want := []string{"c", "a", "b"}
	if diff := pretty.Compare(order, want); diff != "" {
		t.Fatalf("list order mismatch (-got +want):\n%s", diff)
	}

	l.Remove(&a)
	if l.Len() != 2 {
		t.Fatalf("Len after remove = %d, want 2", l.Len())
	}
}
