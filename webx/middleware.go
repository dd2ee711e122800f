package webx

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"takumi.dev/go/web/internal/obs"
)

// buildChain composes the pipeline for one request: global middlewares
// in registration order (outermost first), then the matched route's
// middlewares, then the handler as the innermost terminal step.
func buildChain(global []HandlerFunc, route *Route) []HandlerFunc {
	chain := make([]HandlerFunc, 0, len(global)+len(route.Middlewares)+1)
	chain = append(chain, global...)
	chain = append(chain, route.Middlewares...)
	chain = append(chain, route.Handler)
	return chain
}

// runChain executes the chain. An uncaught panic anywhere in it is
// converted here, at the chain boundary, into an internal error
// response; a chain that finishes without producing a response is a
// programming defect rendered the same way.
func runChain(c *Context, log obs.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Logf(obs.Error, "handler panic on %s %s: %v", c.req.Method, c.req.Path, rec)
			internalError(c.resp)
		}
	}()
	c.Next()
	if !c.resp.Committed() {
		log.Logf(obs.Error, "%s on %s %s", ErrHandlerIncomplete, c.req.Method, c.req.Path)
		internalError(c.resp)
	}
}

func internalError(resp *Response) {
	resp.reset()
	resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
	resp.SetStatus(500)
	resp.SetBody([]byte("Internal Server Error"))
}

// AccessLog returns a middleware logging one line per request: method,
// path, status and duration.
func AccessLog(log obs.Logger) HandlerFunc {
	return func(c *Context) {
		start := time.Now()
		c.Next()
		log.Logf(obs.Info, "%s %s -> %d (%s)",
			c.req.Method, c.req.Path, c.resp.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// limiterIdleWindow is how long a client bucket may sit unused before a
// sweep reclaims it.
const limiterIdleWindow = 3 * time.Minute

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// sweepLimiters drops buckets not seen within the idle window.
func sweepLimiters(limiters map[string]*clientLimiter, now time.Time) {
	for host, cl := range limiters {
		if now.Sub(cl.seen) > limiterIdleWindow {
			delete(limiters, host)
		}
	}
}

// RateLimit returns a middleware enforcing a token bucket per client
// address; requests beyond the budget are rejected with a 429. Buckets
// of clients idle past the sweep window are reclaimed so the map does
// not grow with every address ever seen.
func RateLimit(limit rate.Limit, burst int) HandlerFunc {
	var (
		mu        sync.Mutex
		limiters  = map[string]*clientLimiter{}
		lastSweep time.Time
	)
	return func(c *Context) {
		host := c.req.RemoteAddr
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		now := time.Now()
		mu.Lock()
		if now.Sub(lastSweep) > limiterIdleWindow {
			sweepLimiters(limiters, now)
			lastSweep = now
		}
		cl, ok := limiters[host]
		if !ok {
			cl = &clientLimiter{lim: rate.NewLimiter(limit, burst)}
			limiters[host] = cl
		}
		cl.seen = now
		mu.Unlock()
		if !cl.lim.Allow() {
			c.resp.Header().Set("Retry-After", "1")
			c.Text(429, "Too Many Requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
