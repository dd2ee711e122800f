package webx

import (
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// staticRoute serves files from a directory under a URL prefix. It is
// resolved after the exact routes, GET and HEAD only.
type staticRoute struct {
	prefix string
	dir    string
	route  *Route
}

// Static registers a directory-serving route: request paths under
// prefix resolve to files below dir. Paths escaping dir are refused.
func (r *Router) Static(prefix, dir string) error {
	if !strings.HasPrefix(prefix, "/") {
		return errors.Newf("webx: invalid static prefix %q: must start with /", prefix)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrapf(err, "webx: static dir %q", dir)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return errors.Wrapf(err, "webx: static dir %q", dir)
	}
	if !st.IsDir() {
		return errors.Newf("webx: not a directory: %s", dir)
	}
	sr := &staticRoute{
		prefix: strings.TrimSuffix(prefix, "/"),
		dir:    abs,
	}
	sr.route = &Route{
		Method:  "GET",
		Pattern: sr.prefix + "/*",
		Handler: sr.serve,
	}
	r.static = append(r.static, sr)
	return nil
}

func (r *Router) matchStatic(method, path string) *staticRoute {
	if method != "GET" && method != "HEAD" {
		return nil
	}
	path = strings.TrimSuffix(path, "/")
	for _, sr := range r.static {
		if path == sr.prefix || strings.HasPrefix(path, sr.prefix+"/") {
			return sr
		}
	}
	return nil
}

func (sr *staticRoute) serve(c *Context) {
	rel := strings.TrimPrefix(c.Request().Path, sr.prefix)
	if dec, err := url.PathUnescape(rel); err == nil {
		rel = dec
	}
	target := filepath.Join(sr.dir, filepath.FromSlash(rel))
	// filepath.Join cleans the path; anything resolving outside the
	// root is a traversal attempt.
	if target != sr.dir && !strings.HasPrefix(target, sr.dir+string(filepath.Separator)) {
		c.AbortWithError(NewError(404, errors.New("path escapes static root")))
		return
	}
	if err := c.File(target); err != nil {
		c.AbortWithError(err)
	}
}

// File produces a streamed-file response: the file's bytes become the
// body, with Content-Type from the extension and Last-Modified from
// the file. Missing or unreadable files yield a 404 *Error.
func (c *Context) File(path string) error {
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return NewError(404, errors.Newf("no such file: %s", path))
	}
	f, err := os.Open(path)
	if err != nil {
		return NewError(404, errors.Wrapf(err, "open %s", path))
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.resp.Header().Set("Last-Modified", st.ModTime().UTC().Format(httpTimeFormat))
	c.resp.SetStatus(200)
	c.resp.SetFile(&FileStream{
		Reader:      f,
		Size:        st.Size(),
		ContentType: ct,
		ModTime:     st.ModTime(),
	})
	return nil
}

// Download is File with a Content-Disposition attachment: the client
// is told to save the body under filename (the file's base name when
// empty).
func (c *Context) Download(path, filename string) error {
	if err := c.File(path); err != nil {
		return err
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	c.resp.file.Filename = filename
	return nil
}
