package webx

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"takumi.dev/go/web/internal/obs"
	"takumi.dev/go/web/webx/internal/http1"
)

const serverName = "webx"

// ErrServerClosed is returned by Serve and ListenAndServe after
// Shutdown.
var ErrServerClosed = errors.New("webx: server closed")

// errCloseDelimited marks a response whose body end is signaled by
// closing the connection; the loop must not reuse it.
var errCloseDelimited = errors.New("webx: close-delimited body written")

// Server owns the listening sockets and spawns one connection loop
// per accepted connection. Configure and register everything before
// calling Serve; the router and middleware list are immutable once
// the server is accepting.
type Server struct {
	Addr   string
	Router *Router

	// ReadTimeout bounds reading one request once its first bytes
	// arrived; IdleTimeout bounds waiting for the next request on a
	// keep-alive connection.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int64

	Logger obs.Logger
	Meter  obs.Meter

	middlewares []HandlerFunc
	beforeStart []func() error
	afterStop   []func()

	mu         sync.Mutex
	listeners  map[net.Listener]struct{}
	conns      map[net.Conn]struct{}
	connWG     sync.WaitGroup
	inShutdown atomic.Bool
	startOnce  sync.Once
	stopOnce   sync.Once
}

// Use appends global middlewares, applied to every route in
// registration order (first registered is outermost).
func (s *Server) Use(mw ...HandlerFunc) {
	s.middlewares = append(s.middlewares, mw...)
}

// OnBeforeStart registers a listener invoked once before the server
// starts accepting connections. An error aborts startup.
func (s *Server) OnBeforeStart(fn func() error) {
	s.beforeStart = append(s.beforeStart, fn)
}

// OnAfterStop registers a listener invoked once after the last
// connection drained.
func (s *Server) OnAfterStop(fn func()) {
	s.afterStop = append(s.afterStop, fn)
}

func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on l until Shutdown. It may be called for
// several listeners; lifecycle hooks still fire once.
func (s *Server) Serve(l net.Listener) error {
	var startErr error
	s.startOnce.Do(func() {
		for _, fn := range s.beforeStart {
			if err := fn(); err != nil {
				startErr = errors.Wrap(err, "webx: before-start listener")
				return
			}
		}
	})
	if startErr != nil {
		l.Close()
		return startErr
	}

	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = map[net.Listener]struct{}{}
		s.conns = map[net.Conn]struct{}{}
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
		l.Close()
	}()

	for {
		c, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			return err
		}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		s.connWG.Add(1)
		go func() {
			defer func() {
				s.mu.Lock()
				delete(s.conns, c)
				s.mu.Unlock()
				s.connWG.Done()
			}()
			s.serveConn(c)
		}()
	}
}

// Shutdown stops accepting, lets in-flight connection loops drain
// within ctx's deadline, closes stragglers, then fires the after-stop
// listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.mu.Lock()
	for l := range s.listeners {
		l.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		<-done
	}

	s.stopOnce.Do(func() {
		for _, fn := range s.afterStop {
			fn()
		}
	})
	return err
}

func (s *Server) logger() obs.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return obs.NopLogger{}
}

func (s *Server) meter() obs.Meter {
	if s.Meter != nil {
		return s.Meter
	}
	return obs.NopMeter{}
}

func (s *Server) headerLimit() int {
	if s.MaxHeaderBytes <= 0 {
		return 8 << 10
	}
	return s.MaxHeaderBytes
}

func (s *Server) bodyLimit() int64 {
	if s.MaxBodyBytes <= 0 {
		return 8 << 20
	}
	return s.MaxBodyBytes
}

// serveConn drives one connection: parse a request, run the chain,
// write the response, and loop while keep-alive holds.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	log := s.logger()
	stream := http1.NewStream(conn)
	cw := &countingWriter{w: conn}
	bw := bufio.NewWriter(cw)
	parser := &http1.Parser{
		S:              stream,
		MaxHeaderBytes: s.headerLimit(),
		MaxBodyBytes:   s.bodyLimit(),
	}

	for {
		if s.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}

		head, err := parser.ReadHead()
		if err != nil {
			if errors.Is(err, http1.ErrIncompleteStream) && stream.Buffered() == 0 {
				return // peer closed between requests
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return // idle window elapsed, close silently
			}
			status := 400
			if errors.Is(err, http1.ErrHeaderTooLarge) {
				status = 431
			}
			log.Logf(obs.Debug, "parse error from %s: %v", conn.RemoteAddr(), err)
			s.writeError(bw, status, nil)
			return
		}

		if s.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}
		if strings.EqualFold(Header(head.Header).Get("Expect"), "100-continue") {
			_ = http1.WriteContinue(bw)
			_ = bw.Flush()
		}

		body, err := parser.ReadBody(head)
		if err != nil {
			status := 400
			if errors.Is(err, http1.ErrBodyTooLarge) {
				status = 413
			}
			log.Logf(obs.Debug, "body error from %s: %v", conn.RemoteAddr(), err)
			s.writeError(bw, status, nil)
			return
		}

		keepAlive := keepAliveRequested(head)
		if s.inShutdown.Load() {
			keepAlive = false
		}

		req := newRequest(head, body, conn.RemoteAddr().String())
		reqID := genID()
		start := time.Now()
		wroteBefore := cw.n

		resp := s.handle(req, reqID, log)
		// Either side may end the session: a handler that set
		// Connection: close wins over the request's keep-alive.
		if strings.EqualFold(resp.header.Get("Connection"), "close") {
			keepAlive = false
		}

		if s.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		}
		if err := s.writeResponse(bw, req, resp, keepAlive, reqID); err != nil {
			if !errors.Is(err, errCloseDelimited) {
				log.Logf(obs.Debug, "write error to %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		elapsed := time.Since(start)
		s.meter().Counter("webx_requests_total", 1,
			obs.Label{Key: "method", Value: req.Method},
			obs.Label{Key: "status", Value: strconv.Itoa(resp.status)})
		s.meter().Histogram("webx_request_duration_seconds", elapsed.Seconds(),
			obs.Label{Key: "method", Value: req.Method})
		s.meter().Counter("webx_response_bytes_total", float64(cw.n-wroteBefore),
			obs.Label{Key: "method", Value: req.Method})
		log.Logf(obs.Debug, "%s %s -> %d in %s", req.Method, req.Path, resp.status, elapsed)

		if !keepAlive {
			return
		}
	}
}

// handle resolves the route and runs the middleware chain. Routing
// errors become well-formed responses; the connection may stay alive
// for all of them since the body was consumed before dispatch.
func (s *Server) handle(req *Request, reqID string, log obs.Logger) *Response {
	if s.Router == nil {
		return errorResponse(404)
	}
	route, params, err := s.Router.Resolve(req.Method, req.Path)
	if err != nil {
		var mna *MethodNotAllowedError
		if errors.As(err, &mna) {
			resp := errorResponse(405)
			resp.Header().Set("Allow", strings.Join(mna.Allow, ", "))
			return resp
		}
		return errorResponse(404)
	}

	ctx := newContext(req, params, buildChain(s.middlewares, route))
	ctx.Set(RequestIDKey, reqID)
	runChain(ctx, log)
	return ctx.resp
}

func errorResponse(status int) *Response {
	resp := newResponse()
	resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
	resp.SetStatus(status)
	resp.SetBody([]byte(http1.ReasonPhrase(status)))
	return resp
}

// writeError renders a bare error response ahead of closing the
// connection; best-effort, the caller returns regardless.
func (s *Server) writeError(bw *bufio.Writer, status int, hdr Header) {
	resp := errorResponse(status)
	for k, vv := range hdr {
		resp.header[k] = vv
	}
	_ = s.writeResponse(bw, nil, resp, false, "")
}

func keepAliveRequested(head *http1.RequestHead) bool {
	connVal := strings.ToLower(Header(head.Header).Get("Connection"))
	if head.Proto == "HTTP/1.1" {
		return connVal != "close"
	}
	return connVal == "keep-alive"
}

// writeResponse finalizes the accumulated Response and serializes it.
// Every body variant ends up with delimited framing (Content-Length or
// chunked), so keepAlive passes through unchanged unless a transport
// error makes the connection unusable.
func (s *Server) writeResponse(bw *bufio.Writer, req *Request, resp *Response, keepAlive bool, reqID string) error {
	hdr := resp.header.Clone()
	if hdr == nil {
		hdr = Header{}
	}
	hdr.Set("Server", serverName)
	hdr.Set("Date", time.Now().UTC().Format(httpTimeFormat))
	if reqID != "" {
		hdr.Set("X-Request-Id", reqID)
	}
	for _, ck := range resp.cookies {
		hdr.Add("Set-Cookie", ck.String())
	}

	status := resp.status
	if status == 0 {
		status = 200
	}
	reason := http1.ReasonPhrase(status)
	if reason == "" {
		reason = "Unknown"
	}

	isHead := req != nil && req.Method == "HEAD"

	if resp.kind == bodyFile {
		http11 := req == nil || req.Proto == "HTTP/1.1"
		return s.writeFile(bw, resp.file, status, reason, hdr, keepAlive, isHead, http11)
	}

	var body []byte
	switch resp.kind {
	case bodyRaw:
		body = resp.raw
	case bodyJSON:
		b, err := json.Marshal(resp.jsonValue)
		if err != nil {
			s.logger().Logf(obs.Error, "encode json response: %v", err)
			status, reason = 500, "Internal Server Error"
			hdr.Set("Content-Type", "text/plain; charset=utf-8")
			body = []byte("Internal Server Error")
		} else {
			if hdr.Get("Content-Type") == "" {
				hdr.Set("Content-Type", "application/json")
			}
			body = b
		}
	case bodyRedirect:
		hdr.Set("Location", resp.redirectURL)
	}

	if noResponseBody(status) {
		hdr.Del("Content-Length")
		body = nil
	} else {
		hdr.Set("Content-Length", strconv.Itoa(len(body)))
		if isHead {
			body = nil
		}
	}
	if err := http1.WriteResponse(bw, status, reason, hdr, body, keepAlive); err != nil {
		return err
	}
	return bw.Flush()
}

func (s *Server) writeFile(bw *bufio.Writer, f *FileStream, status int, reason string, hdr Header, keepAlive, isHead, http11 bool) error {
	defer func() {
		if f.Reader != nil {
			_ = f.Reader.Close()
		}
	}()

	if hdr.Get("Content-Type") == "" && f.ContentType != "" {
		hdr.Set("Content-Type", f.ContentType)
	}
	if f.Filename != "" {
		hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", url.PathEscape(f.Filename)))
	}

	if f.Size >= 0 {
		hdr.Set("Content-Length", strconv.FormatInt(f.Size, 10))
		if err := http1.StartResponse(bw, status, reason, hdr, false, keepAlive); err != nil {
			return err
		}
		if !isHead {
			if _, err := io.CopyN(bw, f.Reader, f.Size); err != nil {
				// The framing promised Size bytes; a short file leaves
				// the connection unusable.
				return err
			}
		}
		return bw.Flush()
	}

	// Unknown size streams chunked. An HTTP/1.0 peer cannot decode
	// that, so it gets a close-delimited body instead.
	if !http11 {
		if err := http1.StartResponse(bw, status, reason, hdr, false, false); err != nil {
			return err
		}
		if !isHead {
			if _, err := io.Copy(bw, f.Reader); err != nil {
				return err
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return errCloseDelimited
	}
	if err := http1.StartResponse(bw, status, reason, hdr, true, keepAlive); err != nil {
		return err
	}
	if !isHead {
		buf := make([]byte, 32<<10)
		for {
			n, err := f.Reader.Read(buf)
			if n > 0 {
				if _, werr := http1.WriteChunked(bw, buf[:n]); werr != nil {
					return werr
				}
				if werr := bw.Flush(); werr != nil {
					return werr
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
		if err := http1.EndChunked(bw); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// countingWriter tracks bytes flushed to the connection so the loop can
// report response sizes.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func noResponseBody(status int) bool {
	if status >= 100 && status < 200 {
		return true
	}
	return status == 204 || status == 304
}
