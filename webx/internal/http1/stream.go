package http1

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
)

var (
	// ErrIncompleteStream reports that the peer closed the connection
	// before the requested bytes arrived.
	ErrIncompleteStream = errors.New("http1: incomplete stream")

	// ErrDelimiterNotFound reports that a bounded delimiter search ran
	// past its limit.
	ErrDelimiterNotFound = errors.New("http1: delimiter not found within limit")
)

const (
	streamFillSize   = 4 << 10
	streamCompactMin = 4 << 10
)

// Stream buffers reads from a connection and exposes the
// delimiter-seeking primitives the request parser is built on.
// It holds a growable buffer with a consumed-offset cursor and drops
// the consumed prefix opportunistically. The Stream itself enforces no
// upper bound; callers impose their own size limits.
//
// Slices returned by reads point into the internal buffer and stay
// valid only until the next call on the Stream.
type Stream struct {
	src io.Reader
	buf []byte
	off int
	err error // sticky read error from src
}

func NewStream(r io.Reader) *Stream {
	return &Stream{src: r}
}

// Buffered returns the number of unconsumed bytes currently held.
func (s *Stream) Buffered() int {
	return len(s.buf) - s.off
}

// ReadUntil returns the bytes up to the next occurrence of delim,
// consuming both. The delimiter is not included in the result. It
// blocks until the delimiter arrives or the stream ends; a stream that
// ends first yields ErrIncompleteStream.
func (s *Stream) ReadUntil(delim []byte) ([]byte, error) {
	return s.ReadUntilLimit(delim, 0)
}

// ReadUntilLimit is ReadUntil with an upper bound on how far it will
// search. If the delimiter does not appear within max bytes it returns
// ErrDelimiterNotFound without consuming anything, so callers can fail
// fast instead of buffering a runaway line. max <= 0 means no bound.
func (s *Stream) ReadUntilLimit(delim []byte, max int) ([]byte, error) {
	// searched counts bytes past the cursor already known not to start
	// the delimiter; it stays valid across fills because compaction
	// preserves cursor-relative positions.
	searched := 0
	for {
		window := s.buf[s.off+searched:]
		if max > 0 {
			if limit := max + len(delim) - searched; limit < len(window) {
				window = window[:limit]
			}
		}
		if i := bytes.Index(window, delim); i >= 0 {
			out := s.buf[s.off : s.off+searched+i]
			s.off += searched + i + len(delim)
			return out, nil
		}
		if max > 0 && s.Buffered() >= max+len(delim) {
			return nil, ErrDelimiterNotFound
		}
		searched = s.Buffered() - len(delim) + 1
		if searched < 0 {
			searched = 0
		}
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
}

// ReadExact returns exactly n bytes, or ErrIncompleteStream if the
// peer closes first.
func (s *Stream) ReadExact(n int) ([]byte, error) {
	for s.Buffered() < n {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
	out := s.buf[s.off : s.off+n]
	s.off += n
	return out, nil
}

// Peek returns the next n bytes without consuming them.
func (s *Stream) Peek(n int) ([]byte, error) {
	for s.Buffered() < n {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
	return s.buf[s.off : s.off+n], nil
}

// Consume discards up to n buffered bytes.
func (s *Stream) Consume(n int) {
	if n > s.Buffered() {
		n = s.Buffered()
	}
	s.off += n
}

func (s *Stream) fill() error {
	if s.err != nil {
		return s.err
	}
	// Compacting here keeps slices handed out by the last read valid
	// until the caller asks for more bytes.
	s.compact()
	chunk := make([]byte, streamFillSize)
	n, err := s.src.Read(chunk)
	if n > 0 {
		s.buf = append(s.buf, chunk[:n]...)
	}
	if err != nil {
		if err == io.EOF {
			err = ErrIncompleteStream
		}
		s.err = err
		if n == 0 {
			return err
		}
	}
	return nil
}

// compact drops the fully consumed prefix once it grows large enough
// to be worth the copy.
func (s *Stream) compact() {
	if s.off < streamCompactMin || s.off < len(s.buf)/2 {
		return
	}
	s.buf = append(s.buf[:0], s.buf[s.off:]...)
	s.off = 0
}
