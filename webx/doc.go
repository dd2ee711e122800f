// Package webx provides a small, self-contained HTTP/1.1 server
// engine with routing, middleware and request/response helpers,
// aimed at control and embeddability in services and tools.
//
// Highlights
//   - Server: keep-alive connection loop, chunked transfer,
//     Expect: 100-continue, robust parsing with CL/TE validation,
//     header and body size limits, graceful shutdown, lifecycle
//     hooks, logging/metrics bridges.
//   - Router: pattern routes with :param segments, literal-first
//     precedence, 405 with Allow, static file mounts.
//   - Context: per-request store, lazy JSON/form/multipart/cookie
//     decoding, response helpers (Text, HTML, JSON, Redirect,
//     File, Download).
//   - Middleware: gin-style chain with Next/Abort, plus built-in
//     access logging, basic auth and rate limiting.
//
// Quick start:
//
//	r := webx.NewRouter()
//	r.GET("/hello/:name", func(c *webx.Context) {
//	    c.Text(200, "hello "+c.Param("name"))
//	})
//	s := &webx.Server{Addr: ":8080", Router: r}
//	if err := s.ListenAndServe(); err != nil && err != webx.ErrServerClosed {
//	    log.Fatal(err)
//	}
package webx
