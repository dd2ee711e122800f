package http1

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// readChunkedBody decodes a Transfer-Encoding: chunked body from the
// stream into one buffer: size-prefixed segments until the zero-size
// terminator, payloads concatenated. maxBody caps the decoded size and
// is checked before each segment is buffered.
func readChunkedBody(s *Stream, maxLine int, maxBody int64) ([]byte, error) {
	var out []byte
	for {
		size, err := readChunkSize(s, maxLine)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			if err := discardTrailers(s, maxLine); err != nil {
				return nil, err
			}
			return out, nil
		}
		if maxBody > 0 && int64(len(out))+size > maxBody {
			return nil, errors.Wrapf(ErrBodyTooLarge, "chunked body beyond %d", maxBody)
		}
		data, err := s.ReadExact(int(size))
		if err != nil {
			if errors.Is(err, ErrIncompleteStream) {
				return nil, ErrIncompleteBody
			}
			return nil, err
		}
		out = append(out, data...)
		if err := expectCRLF(s); err != nil {
			return nil, err
		}
	}
}

func readChunkSize(s *Stream, maxLine int) (int64, error) {
	data, err := s.ReadUntilLimit(crlf, maxLine)
	if err != nil {
		if errors.Is(err, ErrDelimiterNotFound) {
			return 0, ErrMalformedChunk
		}
		return 0, err
	}
	line := string(data)
	// Strip chunk extensions if any: "<hex>;<ext>"
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, errors.Wrap(ErrMalformedChunk, "empty size line")
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(ErrMalformedChunk, "size %q", line)
	}
	return n, nil
}

func expectCRLF(s *Stream) error {
	b, err := s.ReadExact(2)
	if err != nil {
		return err
	}
	if b[0] != '\r' || b[1] != '\n' {
		return errors.Wrapf(ErrMalformedChunk, "expected CRLF after chunk, got %q", b)
	}
	return nil
}

// discardTrailers reads and drops trailer lines until the empty line.
func discardTrailers(s *Stream, maxLine int) error {
	for {
		data, err := s.ReadUntilLimit(crlf, maxLine)
		if err != nil {
			if errors.Is(err, ErrDelimiterNotFound) {
				return ErrMalformedChunk
			}
			return err
		}
		if len(data) == 0 {
			return nil
		}
	}
}
