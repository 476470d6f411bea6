// Package framer splits an arbitrarily chunked text stream into newline
// delimited records.
package framer

import "strings"

// Framer accumulates chunks and emits complete lines. Content after the last
// line break is carried over to the next Feed. A Framer is owned by a single
// read loop and is not safe for concurrent use.
type Framer struct {
	carry strings.Builder
}

// New returns an empty framer.
func New() *Framer {
	return &Framer{}
}

// Feed appends chunk to the carry-over buffer and returns every complete
// record, trimmed of surrounding whitespace, in arrival order. Empty records
// are dropped. Invalid UTF-8 in a record is replaced rather than rejected.
func (f *Framer) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	last := strings.LastIndexByte(chunk, '\n')
	if last < 0 {
		f.carry.WriteString(chunk)
		return nil
	}

	f.carry.WriteString(chunk[:last])
	complete := f.carry.String()
	f.carry.Reset()
	f.carry.WriteString(chunk[last+1:])

	var records []string
	for _, line := range strings.Split(complete, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		records = append(records, strings.ToValidUTF8(line, "�"))
	}
	return records
}

// Pending returns the unterminated content carried over from previous calls.
func (f *Framer) Pending() string {
	return f.carry.String()
}

// Reset discards any carried-over content, for example when a new transport
// session starts.
func (f *Framer) Reset() {
	f.carry.Reset()
}
