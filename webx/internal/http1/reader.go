package http1

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrMalformedRequestLine = errors.New("http1: malformed request line")
	ErrMalformedHeader      = errors.New("http1: malformed header")
	ErrMalformedChunk       = errors.New("http1: malformed chunk")
	ErrIncompleteBody       = errors.New("http1: incomplete body")
	ErrHeaderTooLarge       = errors.New("http1: header too large")
	ErrBodyTooLarge         = errors.New("http1: body too large")
)

var crlf = []byte("\r\n")

// RequestHead is the parsed start line and header block of one request.
type RequestHead struct {
	Method     string
	RequestURI string
	Proto      string
	Header     map[string][]string
	// ContentLength is the declared body size, 0 when absent and -1
	// when the body is chunked.
	ContentLength int64
	Chunked       bool
}

// Parser reads HTTP/1.1 requests incrementally from a Stream. The head
// and body are read in two steps so the caller can emit an interim
// 100 Continue between them.
type Parser struct {
	S              *Stream
	MaxHeaderBytes int
	MaxBodyBytes   int64
}

// ReadHead parses the start line and headers up to the empty line.
func (p *Parser) ReadHead() (*RequestHead, error) {
	budget := p.MaxHeaderBytes

	line, err := p.readLine(&budget)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, errors.Wrapf(ErrMalformedRequestLine, "%q", line)
	}
	method, uri, proto := parts[0], parts[1], parts[2]
	if !strings.HasPrefix(proto, "HTTP/1.") {
		return nil, errors.Wrapf(ErrMalformedRequestLine, "unsupported version %q", proto)
	}

	hdr := make(map[string][]string)
	for {
		line, err := p.readLine(&budget)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, errors.Wrapf(ErrMalformedHeader, "%q", line)
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		if k == "" {
			return nil, errors.Wrapf(ErrMalformedHeader, "%q", line)
		}
		addHeader(hdr, k, v)
	}

	h := &RequestHead{
		Method:     method,
		RequestURI: uri,
		Proto:      proto,
		Header:     hdr,
	}
	if hasChunkedTE(hdr) {
		h.Chunked = true
		h.ContentLength = -1
		return h, nil
	}
	if v := getHeader(hdr, "Content-Length"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrMalformedHeader, "content-length %q", v)
		}
		h.ContentLength = n
	}
	return h, nil
}

// ReadBody consumes the request body declared by the head and returns
// it fully buffered. The size limit is checked before buffering, not
// after.
func (p *Parser) ReadBody(h *RequestHead) ([]byte, error) {
	if h.Chunked {
		return readChunkedBody(p.S, p.MaxHeaderBytes, p.MaxBodyBytes)
	}
	if h.ContentLength <= 0 {
		return nil, nil
	}
	if p.MaxBodyBytes > 0 && h.ContentLength > p.MaxBodyBytes {
		return nil, errors.Wrapf(ErrBodyTooLarge, "content-length %d", h.ContentLength)
	}
	data, err := p.S.ReadExact(int(h.ContentLength))
	if err != nil {
		if errors.Is(err, ErrIncompleteStream) {
			return nil, ErrIncompleteBody
		}
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// readLine reads one CRLF-terminated line, charging its size against
// the remaining header budget.
func (p *Parser) readLine(budget *int) (string, error) {
	data, err := p.S.ReadUntilLimit(crlf, p.MaxHeaderBytes)
	if err != nil {
		if errors.Is(err, ErrDelimiterNotFound) {
			return "", ErrHeaderTooLarge
		}
		return "", err
	}
	if p.MaxHeaderBytes > 0 {
		*budget -= len(data) + len(crlf)
		if *budget < 0 {
			return "", ErrHeaderTooLarge
		}
	}
	return string(data), nil
}

func addHeader(h map[string][]string, k, v string) {
	hk := canonicalHeaderKey(k)
	h[hk] = append(h[hk], v)
}

func getHeader(h map[string][]string, k string) string {
	hk := canonicalHeaderKey(k)
	if vv, ok := h[hk]; ok && len(vv) > 0 {
		return vv[0]
	}
	return ""
}

func hasChunkedTE(h map[string][]string) bool {
	hk := canonicalHeaderKey("Transfer-Encoding")
	if vv, ok := h[hk]; ok {
		for _, v := range vv {
			if strings.Contains(strings.ToLower(v), "chunked") {
				return true
			}
		}
	}
	return false
}

// Very small canonicalizer to avoid importing textproto here.
func canonicalHeaderKey(s string) string {
	b := []byte(strings.ToLower(s))
	upper := true
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			if upper {
				b[i] = byte(c - 'a' + 'A')
			}
			upper = false
			continue
		}
		upper = c == '-'
	}
	return string(b)
}
