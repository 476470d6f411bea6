// Package monitoring holds the diagnostic logger shared by the library
// packages. It defaults to log.Printf; tests mute or capture it.
package monitoring

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Logger is a printf-style diagnostic sink.
type Logger func(format string, v ...interface{})

var current atomic.Pointer[Logger]

func init() {
	SetLogger(log.Printf)
}

// Logf writes one diagnostic line through the current logger. It is safe to
// call while another goroutine swaps the logger.
func Logf(format string, v ...interface{}) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the logger and returns the previous one. Passing nil
// installs a no-op logger.
func SetLogger(f Logger) Logger {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	prev := current.Swap(&f)
	if prev == nil {
		return nil
	}
	return *prev
}

// Recorder keeps formatted log lines in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Capture routes Logf to a new Recorder until restore is called.
func Capture() (rec *Recorder, restore func()) {
	rec = &Recorder{}
	prev := SetLogger(rec.Logf)
	return rec, func() { SetLogger(prev) }
}

func (r *Recorder) Logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
