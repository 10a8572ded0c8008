// Package procio decodes the line-delimited JSON event protocol spoken
// by the worker processes. Stream reads do not respect line boundaries,
// so incoming bytes are buffered and split on newline with the trailing
// partial line held over to the next write.
package procio

import (
	"bytes"
	"encoding/json"
	"sync"
)

// Event is the union of every line shape the workers emit. Pointer
// fields distinguish "absent" from zero values.
type Event struct {
	Progress      *float64 `json:"progress"`
	Step          string   `json:"step"`
	Detail        string   `json:"detail"`
	ETASeconds    *float64 `json:"eta_seconds"`
	Status        string   `json:"status"`
	Warning       string   `json:"warning"`
	WarningsCount *int     `json:"warnings_count"`
	Warnings      []string `json:"warnings"`
	Error         string   `json:"error"`
	Path          string   `json:"path"`
}

// ParseEvent decodes one complete line. Unparseable lines report ok=false
// and are ignored by callers rather than treated as fatal.
func ParseEvent(line []byte) (Event, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return Event{}, false
	}
	return ev, true
}

// LineDecoder is an io.Writer that re-assembles newline-delimited lines
// from arbitrary stream chunks and hands each complete line to a callback.
// Safe for concurrent writers, so one decoder can serve both the stdout
// and stderr pipes of a process.
type LineDecoder struct {
	mu     sync.Mutex
	onLine func(line []byte)
	buf    []byte
}

// NewLineDecoder creates a decoder invoking onLine per complete line.
func NewLineDecoder(onLine func(line []byte)) *LineDecoder {
	return &LineDecoder{onLine: onLine}
}

// Write buffers p and emits every complete line it closes.
func (d *LineDecoder) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = append(d.buf, p...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return len(p), nil
		}

		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		if d.onLine != nil {
			d.onLine(line)
		}
	}
}

// Flush emits any trailing partial line. Call after the stream closes.
func (d *LineDecoder) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.buf) == 0 {
		return
	}
	line := d.buf
	d.buf = nil
	if d.onLine != nil {
		d.onLine(line)
	}
}
