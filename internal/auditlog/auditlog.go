// Package auditlog keeps the most recent raw records received by the ground
// station, newest first, for display and CSV export.
package auditlog

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/banshee-data/groundstation/internal/timeutil"
)

const (
	DefaultCapacity = 10
	DefaultMaxText  = 60
	ellipsis        = "..."
)

// ErrEmpty is returned when exporting a log with no entries.
var ErrEmpty = errors.New("no data to export")

// Entry is one retained record. Text is already truncated for display.
type Entry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Clock returns the entry time as HH:MM:SS in local time.
func (e Entry) Clock() string {
	return e.Time.Local().Format(time.TimeOnly)
}

// Log is a fixed-capacity ring buffer. Appending to a full log evicts the
// oldest entry.
type Log struct {
	clock   timeutil.Clock
	maxText int

	mu    sync.Mutex
	ring  []Entry
	next  int
	size  int
	total uint64
}

// New returns an empty log. Non-positive capacity or maxText use the
// defaults; a nil clock uses the wall clock.
func New(capacity, maxText int, clock timeutil.Clock) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxText <= 0 {
		maxText = DefaultMaxText
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Log{
		clock:   clock,
		maxText: maxText,
		ring:    make([]Entry, capacity),
	}
}

// Truncate shortens text to max runes, marking the cut with an ellipsis.
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i] + ellipsis
		}
		n++
	}
	return text
}

// Append stores raw, truncated, stamped with the current time.
func (l *Log) Append(raw string) Entry {
	e := Entry{Time: l.clock.Now(), Text: Truncate(raw, l.maxText)}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring[l.next] = e
	l.next = (l.next + 1) % len(l.ring)
	if l.size < len(l.ring) {
		l.size++
	}
	l.total++
	return e
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.ring)
	l.next = 0
	l.size = 0
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Capacity returns the maximum number of retained entries.
func (l *Log) Capacity() int {
	return len(l.ring)
}

// Total returns how many records were ever appended, including evicted ones.
func (l *Log) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Snapshot returns the retained entries, newest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, l.size)
	for i := range out {
		idx := (l.next - 1 - i + len(l.ring)) % len(l.ring)
		out[i] = l.ring[idx]
	}
	return out
}

// WriteCSV writes the snapshot as a two column Time,Data table with every
// cell quoted.
func (l *Log) WriteCSV(w io.Writer) error {
	entries := l.Snapshot()
	if len(entries) == 0 {
		return ErrEmpty
	}

	bw := bufio.NewWriter(w)
	bw.WriteString("Time,Data\n")
	for _, e := range entries {
		bw.WriteString(quote(e.Clock()))
		bw.WriteByte(',')
		bw.WriteString(quote(e.Text))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
