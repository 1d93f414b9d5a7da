// Copyright 2024 The blueos-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

// Logger is the minimal interface *log.Logger already satisfies,
// threaded through Kernel exactly the way fuse.Server/fuse.MountState
// carry a Logger field (SPEC_FULL.md §A.1). A nil Logger discards
// output, mirroring go-fuse's nop default.
type Logger interface {
	Println(v ...any)
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Println(v ...any)               {}
func (nopLogger) Printf(format string, v ...any) {}

func logOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
