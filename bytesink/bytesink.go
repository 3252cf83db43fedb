// Package bytesink provides a growable in-memory output stream.
//
// A Sink accepts sequential writes, positioned writes and seeks, which is
// what encoders that patch headers after the fact need. Writing past the
// end grows the buffer and zero-fills any gap.
package bytesink

import (
	"errors"
	"io"
	"sync"
)

var (
	ErrClosed         = errors.New("bytesink: closed")
	ErrNegativeOffset = errors.New("bytesink: negative offset")
)

// Sink is safe for concurrent use.
type Sink struct {
	mu     sync.Mutex
	buf    []byte
	pos    int64
	closed bool
}

// New returns a Sink with room for size bytes before it reallocates.
func New(size int) *Sink {
	return &Sink{buf: make([]byte, 0, max(size, 0))}
}

func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := s.writeAt(p, s.pos)
	s.pos += int64(n)
	return n, nil
}

// WriteAt writes p at off without moving the stream position.
func (s *Sink) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrNegativeOffset
	}
	return s.writeAt(p, off), nil
}

func (s *Sink) writeAt(p []byte, off int64) int {
	end := off + int64(len(p))
	if end > int64(len(s.buf)) {
		if end > int64(cap(s.buf)) {
			grown := make([]byte, len(s.buf), max(end, 2*int64(cap(s.buf))))
			copy(grown, s.buf)
			s.buf = grown
		}
		old := int64(len(s.buf))
		s.buf = s.buf[:end]
		if off > old {
			clear(s.buf[old:off])
		}
	}
	return copy(s.buf[off:], p)
}

func (s *Sink) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("bytesink: invalid whence")
	}
	if abs < 0 {
		return 0, ErrNegativeOffset
	}
	s.pos = abs
	return abs, nil
}

// Close stops further writes. The contents stay readable.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Bytes returns a copy of the contents.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf...)
}

// Take returns the contents and resets the Sink, avoiding a copy.
func (s *Sink) Take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buf
	s.buf, s.pos = nil, 0
	return b
}
