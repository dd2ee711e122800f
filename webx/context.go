package webx

import "takumi.dev/go/web/webx/internal/http1"

// HandlerFunc handles one request through its Context. Both terminal
// handlers and middlewares have this shape: a middleware calls
// c.Next() to pass control down the chain, while one that produces a
// response without calling c.Next() short-circuits everything below
// it. Either way control returns to the callers above, so outer
// middlewares can run cleanup on every exit path.
type HandlerFunc func(*Context)

// Well-known Context store keys set by the engine and its bundled
// middlewares.
const (
	// RequestIDKey holds the per-request identifier stamped by the
	// connection loop.
	RequestIDKey = "webx.request_id"

	// AuthUserKey holds the username established by BasicAuth.
	AuthUserKey = "webx.auth_user"
)

// Context owns one Request and its in-progress Response for the
// lifetime of a single request-response cycle. It also carries the
// extracted path parameters and a store for application state shared
// across the chain. A Context belongs to exactly one connection
// goroutine and must not outlive its request.
type Context struct {
	req    *Request
	resp   *Response
	params map[string]string
	store  map[string]any

	chain []HandlerFunc
	index int
}

func newContext(req *Request, params map[string]string, chain []HandlerFunc) *Context {
	return &Context{
		req:    req,
		resp:   newResponse(),
		params: params,
		chain:  chain,
		index:  -1,
	}
}

// Request returns the parsed request.
func (c *Context) Request() *Request { return c.req }

// Response returns the in-progress response.
func (c *Context) Response() *Response { return c.resp }

// Param returns the decoded value bound to a :name pattern segment.
func (c *Context) Param(name string) string { return c.params[name] }

// Params returns all bound path parameters.
func (c *Context) Params() map[string]string { return c.params }

// Query returns the first query value for name.
func (c *Context) Query(name string) string { return c.req.QueryParam(name) }

// Set stores a value shared across the middleware chain.
func (c *Context) Set(key string, value any) {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = value
}

// Get returns a value previously stored with Set.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.store[key]
	return v, ok
}

// GetString returns a stored string value, or "" when absent or not a
// string.
func (c *Context) GetString(key string) string {
	if v, ok := c.store[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Next invokes the remaining chain. Middlewares call it to hand
// control to the next middleware or, at the end, the terminal handler.
func (c *Context) Next() {
	c.index++
	for c.index < len(c.chain) {
		c.chain[c.index](c)
		c.index++
	}
}

// abortIndex is far past any real chain position.
const abortIndex = 1 << 30

// Abort prevents any not-yet-started chain step from running. The
// current step finishes normally and control unwinds through the
// already-running outer middlewares.
func (c *Context) Abort() {
	c.index = abortIndex
}

// IsAborted reports whether Abort was called.
func (c *Context) IsAborted() bool { return c.index >= abortIndex }

// Status produces an empty response with the given status code.
func (c *Context) Status(code int) {
	c.resp.SetStatus(code)
}

// Text produces a plain text response.
func (c *Context) Text(code int, body string) {
	c.resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.resp.SetStatus(code)
	c.resp.SetBody([]byte(body))
}

// HTML produces an HTML response.
func (c *Context) HTML(code int, body string) {
	c.resp.Header().Set("Content-Type", "text/html; charset=utf-8")
	c.resp.SetStatus(code)
	c.resp.SetBody([]byte(body))
}

// JSON produces a JSON response.
func (c *Context) JSON(code int, v any) {
	c.resp.SetStatus(code)
	c.resp.SetJSON(v)
}

// Blob produces a raw byte response with an explicit content type.
func (c *Context) Blob(code int, contentType string, body []byte) {
	c.resp.Header().Set("Content-Type", contentType)
	c.resp.SetStatus(code)
	c.resp.SetBody(body)
}

// Redirect produces a 3xx response pointing at url.
func (c *Context) Redirect(code int, url string) {
	c.resp.SetRedirect(code, url)
}

// SetCookie adds a Set-Cookie header to the response.
func (c *Context) SetCookie(cookie *SetCookie) {
	c.resp.SetCookie(cookie)
}

// AbortWithStatus produces an empty response with the given status and
// stops the chain.
func (c *Context) AbortWithStatus(code int) {
	c.resp.SetStatus(code)
	c.Abort()
}

// AbortWithError renders err as a response and stops the chain. The
// status comes from a wrapped *Error when present, 500 otherwise.
func (c *Context) AbortWithError(err error) {
	code := CodeOf(err)
	if code == 0 {
		code = 500
	}
	reason := http1.ReasonPhrase(code)
	if reason == "" {
		reason = "Unknown"
	}
	c.Text(code, reason)
	c.Abort()
}
