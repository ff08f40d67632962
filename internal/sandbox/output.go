package sandbox

import (
	"fmt"
	"strings"
	"sync"
)

// boundedWriter accumulates text up to a byte ceiling, then silently
// discards the rest. It backs the sandboxed program's console.log /
// console.error shims, standing in for SANDBOX_MAX_OUTPUT_BYTES capture.
type boundedWriter struct {
	mu        sync.Mutex
	limit     int
	buf       strings.Builder
	truncated bool
}

func newBoundedWriter(limit int) *boundedWriter {
	return &boundedWriter{limit: limit}
}

func (w *boundedWriter) writeArgs(args []interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() >= w.limit {
		w.truncated = true
		return
	}

	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	line := strings.Join(parts, " ") + "\n"

	remaining := w.limit - w.buf.Len()
	if len(line) > remaining {
		line = line[:remaining]
		w.truncated = true
	}
	w.buf.WriteString(line)
}

func (w *boundedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
