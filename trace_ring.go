// trace_ring.go - Fixed-size trace rings shared by the device chips
//
// License: GPLv3 or later

package main

import (
	"fmt"
	"io"
)

// TraceRing keeps the most recent formatted trace lines for one device.
// Writes never block and wraparound is silent; the debug monitor dumps
// the ring on demand in chronological order.
type TraceRing struct {
	entries []string
	n       int
}

func NewTraceRing(size int) *TraceRing {
	return &TraceRing{entries: make([]string, size)}
}

// Addf records one formatted trace line.
func (t *TraceRing) Addf(format string, args ...any) {
	t.entries[t.n] = fmt.Sprintf(format, args...)
	t.n++
	if t.n >= len(t.entries) {
		t.n = 0
	}
}

// Dump writes the ring contents oldest-first.
func (t *TraceRing) Dump(w io.Writer) {
	for i := t.n; i < len(t.entries); i++ {
		if t.entries[i] != "" {
			io.WriteString(w, t.entries[i])
		}
	}
	for i := 0; i < t.n; i++ {
		if t.entries[i] != "" {
			io.WriteString(w, t.entries[i])
		}
	}
}
