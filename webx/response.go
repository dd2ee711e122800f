package webx

import (
	"io"
	"time"
)

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyRaw
	bodyJSON
	bodyFile
	bodyRedirect
)

// FileStream describes a streamed file body. Size < 0 means unknown
// and forces chunked transfer encoding on the wire.
type FileStream struct {
	Reader      io.ReadCloser
	Size        int64
	ContentType string
	// Filename, when set, makes the response a download with a
	// Content-Disposition attachment header.
	Filename string
	ModTime  time.Time
}

// Response accumulates the status, headers, cookies and body that
// handlers and middlewares build up. Every setter may be called again
// before the response is written; the last write wins. It is finalized
// exactly once by the connection loop.
type Response struct {
	status  int
	header  Header
	cookies []*SetCookie

	kind        bodyKind
	raw         []byte
	jsonValue   any
	file        *FileStream
	redirectURL string

	committed bool
}

func newResponse() *Response {
	return &Response{header: Header{}}
}

// Status returns the status code set so far, or 0.
func (r *Response) Status() int { return r.status }

// SetStatus records the status code and marks the response produced.
func (r *Response) SetStatus(code int) {
	r.status = code
	r.committed = true
}

// Header returns the mutable response headers. Mutating headers alone
// does not mark the response produced.
func (r *Response) Header() Header { return r.header }

// SetCookie appends one Set-Cookie header. Cookies are emitted in the
// order they were added.
func (r *Response) SetCookie(c *SetCookie) {
	r.cookies = append(r.cookies, c)
}

// SetBody makes the response carry raw bytes.
func (r *Response) SetBody(b []byte) {
	r.kind = bodyRaw
	r.raw = b
	r.committed = true
}

// SetJSON makes the response carry v serialized as JSON, with a
// Content-Type of application/json unless one was set explicitly.
func (r *Response) SetJSON(v any) {
	r.kind = bodyJSON
	r.jsonValue = v
	r.committed = true
}

// SetRedirect makes the response a redirect to url. code must be a
// 3xx status; anything else is coerced to 302.
func (r *Response) SetRedirect(code int, url string) {
	if code < 300 || code > 399 {
		code = 302
	}
	r.status = code
	r.kind = bodyRedirect
	r.redirectURL = url
	r.committed = true
}

// SetFile makes the response stream the given file.
func (r *Response) SetFile(f *FileStream) {
	r.kind = bodyFile
	r.file = f
	r.committed = true
}

// Committed reports whether any handler produced a response.
func (r *Response) Committed() bool { return r.committed }

// reset discards everything built so far. Used when converting an
// uncaught handler failure into an internal error response.
func (r *Response) reset() {
	if r.kind == bodyFile && r.file != nil && r.file.Reader != nil {
		_ = r.file.Reader.Close()
	}
	*r = Response{header: Header{}}
}
