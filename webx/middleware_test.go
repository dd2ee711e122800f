package webx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestBuildChain(t *testing.T) {
	var order []string
	tag := func(name string) HandlerFunc {
		return func(c *Context) { order = append(order, name) }
	}
	route := &Route{
		Handler:     func(c *Context) { order = append(order, "h"); c.Status(200) },
		Middlewares: []HandlerFunc{tag("r1"), tag("r2")},
	}
	chain := buildChain([]HandlerFunc{tag("g1"), tag("g2")}, route)
	require.Len(t, chain, 5)

	runTestChain(t, testRequest("GET", "/", nil, nil), chain...)
	require.Equal(t, []string{"g1", "g2", "r1", "r2", "h"}, order)
}

func TestRateLimit(t *testing.T) {
	mw := RateLimit(rate.Limit(0.001), 2) // effectively no refill during the test
	handler := func(c *Context) { c.Status(200) }

	for i := 0; i < 2; i++ {
		c := runTestChain(t, testRequest("GET", "/", nil, nil), mw, handler)
		require.Equal(t, 200, c.Response().Status(), "request %d", i)
	}
	c := runTestChain(t, testRequest("GET", "/", nil, nil), mw, handler)
	require.Equal(t, 429, c.Response().Status())
	require.Equal(t, "1", c.Response().Header().Get("Retry-After"))
	require.True(t, c.IsAborted())
}

func TestRateLimit_PerClient(t *testing.T) {
	mw := RateLimit(rate.Limit(0.001), 1)
	handler := func(c *Context) { c.Status(200) }

	reqA := testRequest("GET", "/", nil, nil)
	reqA.RemoteAddr = "198.51.100.1:1000"
	reqB := testRequest("GET", "/", nil, nil)
	reqB.RemoteAddr = "198.51.100.2:1000"

	require.Equal(t, 200, runTestChain(t, reqA, mw, handler).Response().Status())
	require.Equal(t, 429, runTestChain(t, reqA, mw, handler).Response().Status())
	// A different client has its own bucket.
	require.Equal(t, 200, runTestChain(t, reqB, mw, handler).Response().Status())
}

func TestSweepLimiters(t *testing.T) {
	now := time.Now()
	limiters := map[string]*clientLimiter{
		"stale":  {lim: rate.NewLimiter(1, 1), seen: now.Add(-2 * limiterIdleWindow)},
		"recent": {lim: rate.NewLimiter(1, 1), seen: now.Add(-time.Second)},
	}
	sweepLimiters(limiters, now)
	require.Len(t, limiters, 1)
	require.Contains(t, limiters, "recent")
}
