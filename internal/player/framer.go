package player

import (
	"bytes"
	"iter"
)

// Framer splits a byte stream into newline-delimited records. Bytes after the
// last newline stay buffered until a later Feed completes the line.
type Framer struct {
	buf []byte
}

// Feed appends p to the buffer and returns the complete lines it now holds,
// without their terminators. Lines not consumed by the caller remain buffered.
func (f *Framer) Feed(p []byte) iter.Seq[string] {
	f.buf = append(f.buf, p...)
	return func(yield func(string) bool) {
		for {
			i := bytes.IndexByte(f.buf, '\n')
			if i < 0 {
				return
			}
			line := string(f.buf[:i])
			f.buf = f.buf[i+1:]
			if !yield(line) {
				return
			}
		}
	}
}

// Buffered returns the number of bytes waiting for a terminator.
func (f *Framer) Buffered() int { return len(f.buf) }
