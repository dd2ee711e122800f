package http1

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	hdr := map[string][]string{
		"Content-Type":   {"text/plain"},
		"Content-Length": {"5"},
	}
	if err := WriteResponse(bw, 200, "OK", hdr, []byte("hello"), true); err != nil {
		t.Fatalf("WriteResponse error: %v", err)
	}
	bw.Flush()
	out := buf.String()
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line wrong: %q", out)
	}
	if !strings.Contains(out, "Connection: keep-alive\r\n") {
		t.Fatalf("missing keep-alive: %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\nhello") {
		t.Fatalf("body framing wrong: %q", out)
	}
}

func TestWriteResponse_ConnectionClose(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := WriteResponse(bw, 204, "", map[string][]string{}, nil, false); err != nil {
		t.Fatalf("WriteResponse error: %v", err)
	}
	bw.Flush()
	out := buf.String()
	if !strings.HasPrefix(out, "HTTP/1.1 204 No Content\r\n") {
		t.Fatalf("status line wrong: %q", out)
	}
	if !strings.Contains(out, "Connection: close\r\n") {
		t.Fatalf("missing close: %q", out)
	}
}

func TestWriteResponse_SkipsUserConnectionHeader(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	hdr := map[string][]string{"Connection": {"upgrade"}}
	if err := WriteResponse(bw, 200, "OK", hdr, nil, true); err != nil {
		t.Fatalf("WriteResponse error: %v", err)
	}
	bw.Flush()
	out := buf.String()
	if strings.Contains(out, "upgrade") {
		t.Fatalf("user Connection header leaked: %q", out)
	}
	if strings.Count(out, "Connection:") != 1 {
		t.Fatalf("Connection emitted more than once: %q", out)
	}
}

func TestStartResponse_ChunkedDropsContentLength(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	hdr := map[string][]string{"Content-Length": {"10"}}
	if err := StartResponse(bw, 200, "OK", hdr, true, true); err != nil {
		t.Fatalf("StartResponse error: %v", err)
	}
	if _, err := WriteChunked(bw, []byte("foo")); err != nil {
		t.Fatalf("WriteChunked error: %v", err)
	}
	if err := EndChunked(bw); err != nil {
		t.Fatalf("EndChunked error: %v", err)
	}
	bw.Flush()
	out := buf.String()
	if strings.Contains(out, "Content-Length") {
		t.Fatalf("Content-Length survived chunked: %q", out)
	}
	if !strings.Contains(out, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("missing TE header: %q", out)
	}
	if !strings.HasSuffix(out, "3\r\nfoo\r\n0\r\n\r\n") {
		t.Fatalf("chunk framing wrong: %q", out)
	}
}

func TestWriteContinue(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := WriteContinue(bw); err != nil {
		t.Fatalf("WriteContinue error: %v", err)
	}
	bw.Flush()
	if got := buf.String(); got != "HTTP/1.1 100 Continue\r\n\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeHeaderValue(t *testing.T) {
	if got := SanitizeHeaderValue("a\r\nb\x00c\td"); got != "abc\td" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeHeaderKey(t *testing.T) {
	if got := SanitizeHeaderKey("X-Good_Key"); got != "X-Good_Key" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeHeaderKey("Bad Key"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
