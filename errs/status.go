// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs defines the status codes returned by every kernel
// primitive. Kernel code is frequently called from contexts (interrupt
// handlers, the scheduler's own internals) where allocating a wrapped
// Go error is inappropriate, so primitives return a plain integer
// Status instead, the same way fuse.Status is used throughout the
// donor FUSE server. Status also implements the error interface so it
// composes with code that wants ordinary Go error handling.
package errs

import "fmt"

// Status is the result of a kernel operation. Zero value is OK.
type Status int32

const (
	OK Status = 0

	// ETIMEOUT indicates a timeout elapsed before the condition was satisfied.
	ETIMEOUT Status = -(iota)
	// EINTR indicates a wait was terminated by a signal (Interruptible/Killable).
	EINTR
	// EINVAL indicates an argument violates a precondition.
	EINVAL
	// ENOSPC indicates nesting/slot overflow (e.g. mutex nest cap).
	ENOSPC
	// EFULL indicates a producer found a full queue/mailbox.
	EFULL
	// EPERM indicates e.g. unlock attempted by a non-owner.
	EPERM
	// EAGAIN indicates a transient, retryable condition.
	EAGAIN
	// ENOMEM indicates allocator exhaustion on a dynamic create path.
	ENOMEM
	// ERROR is the generic fallback; callers should treat it as fatal-ish.
	ERROR
)

var names = map[Status]string{
	OK:       "OK",
	ETIMEOUT: "ETIMEOUT",
	EINTR:    "EINTR",
	EINVAL:   "EINVAL",
	ENOSPC:   "ENOSPC",
	EFULL:    "EFULL",
	EPERM:    "EPERM",
	EAGAIN:   "EAGAIN",
	ENOMEM:   "ENOMEM",
	ERROR:    "ERROR",
}

// String renders the status the way fuse.Status.String renders Errno
// values: the known name if any, else a raw numeric fallback.
func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Error implements the error interface so a Status can be returned
// from Go-idiomatic call sites that expect one.
func (s Status) Error() string {
	return s.String()
}

// Ok reports whether s is the success status.
func (s Status) Ok() bool {
	return s == OK
}
