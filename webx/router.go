package webx

import (
	"net/url"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

var knownMethods = []string{
	"CONNECT", "DELETE", "GET", "HEAD", "OPTIONS", "PATCH", "POST", "PUT", "TRACE",
}

// segment is one piece of a route pattern: a literal, or a :name
// parameter that matches any single non-empty path segment.
type segment struct {
	literal string
	param   string
}

// Route binds a (method, pattern) pair to a handler and its
// route-specific middlewares. Routes are registered at startup and
// immutable afterwards.
type Route struct {
	Method      string
	Pattern     string
	Handler     HandlerFunc
	Middlewares []HandlerFunc

	segments []segment
	// shape is the pattern with parameter names erased; two routes of
	// one method may not share a shape.
	shape string
}

// Router maps (method, path) pairs to handlers. Registration happens
// before the server starts; Resolve is then safe for concurrent use
// without locking.
type Router struct {
	routes map[string][]*Route
	static []*staticRoute
}

func NewRouter() *Router {
	return &Router{routes: map[string][]*Route{}}
}

// Register adds a route. It fails with ErrRouteConflict when another
// route of the same method has a structurally identical pattern
// (parameter names do not distinguish patterns).
func (r *Router) Register(method, pattern string, h HandlerFunc, middlewares ...HandlerFunc) error {
	if !lo.Contains(knownMethods, method) {
		return errors.Newf("webx: invalid method %q", method)
	}
	if h == nil {
		return errors.New("webx: nil handler")
	}
	segments, err := parsePattern(pattern)
	if err != nil {
		return err
	}
	shape := patternShape(segments)
	for _, existing := range r.routes[method] {
		if existing.shape == shape {
			return errors.Wrapf(ErrRouteConflict, "%s %s vs %s", method, pattern, existing.Pattern)
		}
	}
	r.routes[method] = append(r.routes[method], &Route{
		Method:      method,
		Pattern:     pattern,
		Handler:     h,
		Middlewares: middlewares,
		segments:    segments,
		shape:       shape,
	})
	return nil
}

// GET and friends are registration sugar over Register; they panic on
// a bad pattern, which is a startup-time programming error.
func (r *Router) GET(pattern string, h HandlerFunc, mw ...HandlerFunc) {
	r.mustRegister("GET", pattern, h, mw)
}
func (r *Router) POST(pattern string, h HandlerFunc, mw ...HandlerFunc) {
	r.mustRegister("POST", pattern, h, mw)
}
func (r *Router) PUT(pattern string, h HandlerFunc, mw ...HandlerFunc) {
	r.mustRegister("PUT", pattern, h, mw)
}
func (r *Router) DELETE(pattern string, h HandlerFunc, mw ...HandlerFunc) {
	r.mustRegister("DELETE", pattern, h, mw)
}
func (r *Router) PATCH(pattern string, h HandlerFunc, mw ...HandlerFunc) {
	r.mustRegister("PATCH", pattern, h, mw)
}
func (r *Router) HEAD(pattern string, h HandlerFunc, mw ...HandlerFunc) {
	r.mustRegister("HEAD", pattern, h, mw)
}

func (r *Router) mustRegister(method, pattern string, h HandlerFunc, mw []HandlerFunc) {
	if err := r.Register(method, pattern, h, mw...); err != nil {
		panic(err)
	}
}

// Resolve finds the route for a concrete (method, path) and binds its
// path parameters, decoded. When no pattern matches it returns
// ErrNotFound; when a pattern matches the path under other methods
// only, a *MethodNotAllowedError listing them.
func (r *Router) Resolve(method, path string) (*Route, map[string]string, error) {
	segs := splitPath(path)

	var (
		best     *Route
		bestMask string
	)
	for _, route := range r.routes[method] {
		if !route.matches(segs) {
			continue
		}
		mask := route.literalMask()
		// Longest-literal-prefix wins: the route whose first differing
		// segment is a literal takes precedence.
		if best == nil || mask > bestMask {
			best, bestMask = route, mask
		}
	}
	if best != nil {
		return best, best.bindParams(segs), nil
	}

	if sr := r.matchStatic(method, path); sr != nil {
		return sr.route, nil, nil
	}

	allow := r.allowedMethods(method, segs)
	if len(allow) > 0 {
		return nil, nil, &MethodNotAllowedError{Allow: allow}
	}
	return nil, nil, errors.Wrapf(ErrNotFound, "%s %s", method, path)
}

// allowedMethods lists the other methods whose patterns match the
// path, for a 405's Allow header.
func (r *Router) allowedMethods(requested string, segs []string) []string {
	var allow []string
	for method, routes := range r.routes {
		if method == requested {
			continue
		}
		for _, route := range routes {
			if route.matches(segs) {
				allow = append(allow, method)
				break
			}
		}
	}
	allow = lo.Uniq(allow)
	sort.Strings(allow)
	return allow
}

func (rt *Route) matches(segs []string) bool {
	if len(segs) != len(rt.segments) {
		return false
	}
	for i, s := range rt.segments {
		if s.param != "" {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if s.literal != segs[i] {
			return false
		}
	}
	return true
}

func (rt *Route) bindParams(segs []string) map[string]string {
	params := map[string]string{}
	for i, s := range rt.segments {
		if s.param != "" {
			params[s.param] = segs[i]
		}
	}
	return params
}

// literalMask encodes per-position literal-vs-parameter as '1'/'0';
// lexicographic comparison of masks implements segment precedence.
func (rt *Route) literalMask() string {
	var b strings.Builder
	for _, s := range rt.segments {
		if s.param == "" {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// splitPath normalizes and splits a concrete request path: the
// trailing slash is insignificant, and each segment is
// percent-decoded.
func splitPath(path string) []string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, p := range parts {
		if dec, err := url.PathUnescape(p); err == nil {
			parts[i] = dec
		}
	}
	return parts
}

func parsePattern(pattern string) ([]segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, errors.Newf("webx: invalid pattern %q: must start with /", pattern)
	}
	trimmed := strings.TrimSuffix(pattern, "/")
	if trimmed == "" {
		return nil, nil
	}
	var segments []segment
	for _, part := range strings.Split(strings.TrimPrefix(trimmed, "/"), "/") {
		switch {
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if name == "" {
				return nil, errors.Newf("webx: invalid pattern %q: unnamed parameter", pattern)
			}
			segments = append(segments, segment{param: name})
		case part == "":
			return nil, errors.Newf("webx: invalid pattern %q: empty segment", pattern)
		default:
			segments = append(segments, segment{literal: part})
		}
	}
	return segments, nil
}

func patternShape(segments []segment) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		if s.param != "" {
			parts[i] = ":"
		} else {
			parts[i] = s.literal
		}
	}
	return "/" + strings.Join(parts, "/")
}
