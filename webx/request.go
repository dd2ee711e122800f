package webx

import (
	"encoding/json"
	"mime"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"takumi.dev/go/web/webx/internal/http1"
)

// Request is one parsed HTTP request. It is immutable once the parser
// hands it to the engine; body decodings (JSON, form, multipart,
// cookies) happen lazily on demand and are cached.
type Request struct {
	Method        string
	Path          string // path component, without the query string
	RequestURI    string
	Proto         string
	Header        Header
	RemoteAddr    string
	ContentLength int64

	query url.Values
	body  []byte

	cookies    map[string]string
	form       url.Values
	files      []*FormFile
	formErr    error
	formParsed bool
}

func newRequest(h *http1.RequestHead, body []byte, remoteAddr string) *Request {
	path := h.RequestURI
	rawQuery := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, rawQuery = path[:i], path[i+1:]
	}
	// Best-effort query decode, like parse_qs: keep the pairs that do
	// parse and drop the rest.
	query, _ := url.ParseQuery(rawQuery)
	return &Request{
		Method:        h.Method,
		Path:          path,
		RequestURI:    h.RequestURI,
		Proto:         h.Proto,
		Header:        Header(h.Header),
		RemoteAddr:    remoteAddr,
		ContentLength: h.ContentLength,
		query:         query,
		body:          body,
	}
}

// Body returns the raw request body bytes. Callers must not mutate the
// returned slice.
func (r *Request) Body() []byte { return r.body }

// JSON unmarshals the body into v.
func (r *Request) JSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return errors.Wrap(err, "webx: decode json body")
	}
	return nil
}

// Query returns the decoded query parameters. A key may repeat; values
// accumulate in arrival order.
func (r *Request) Query() url.Values { return r.query }

// QueryParam returns the first value for the named query key.
func (r *Request) QueryParam(name string) string { return r.query.Get(name) }

// Cookies returns the cookies parsed from the Cookie header.
func (r *Request) Cookies() map[string]string {
	if r.cookies == nil {
		r.cookies = parseCookies(r.Header.Get("Cookie"))
	}
	return r.cookies
}

// Cookie returns the named cookie value.
func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.Cookies()[name]
	return v, ok
}

// ContentType returns the media type of the body, without parameters.
func (r *Request) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

// Form returns the decoded form fields from an
// application/x-www-form-urlencoded or multipart/form-data body.
// Repeated keys accumulate in order. Other content types yield an
// empty set.
func (r *Request) Form() (url.Values, error) {
	r.parseForm()
	return r.form, r.formErr
}

// Files returns the uploaded files of a multipart/form-data body.
func (r *Request) Files() ([]*FormFile, error) {
	r.parseForm()
	return r.files, r.formErr
}

func (r *Request) parseForm() {
	if r.formParsed {
		return
	}
	r.formParsed = true
	r.form = url.Values{}

	switch r.ContentType() {
	case "application/x-www-form-urlencoded":
		r.form, r.formErr = parseURLEncoded(r.body)
	case "multipart/form-data":
		boundary, err := multipartBoundary(r.Header.Get("Content-Type"))
		if err != nil {
			r.formErr = err
			return
		}
		r.form, r.files, r.formErr = parseMultipart(r.body, boundary)
	}
}

// Host returns the Host header value.
func (r *Request) Host() string { return r.Header.Get("Host") }
