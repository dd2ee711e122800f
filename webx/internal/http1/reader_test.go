package http1

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func parseReq(t *testing.T, r io.Reader, maxHeader int, maxBody int64) (*RequestHead, []byte, error) {
	t.Helper()
	p := &Parser{S: NewStream(r), MaxHeaderBytes: maxHeader, MaxBodyBytes: maxBody}
	head, err := p.ReadHead()
	if err != nil {
		return nil, nil, err
	}
	body, err := p.ReadBody(head)
	return head, body, err
}

func TestParser_ContentLengthBody(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"
	head, body, err := parseReq(t, strings.NewReader(raw), 8<<10, 1<<20)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if head.Method != "POST" || head.RequestURI != "/submit" || head.Proto != "HTTP/1.1" {
		t.Fatalf("head=%+v", head)
	}
	if head.ContentLength != 5 {
		t.Fatalf("ContentLength=%d", head.ContentLength)
	}
	if string(body) != "hello" {
		t.Fatalf("body=%q", body)
	}
}

func TestParser_ChunkedBody(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nfoo\r\n0\r\n\r\n"
	head, body, err := parseReq(t, strings.NewReader(raw), 8<<10, 1<<20)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if !head.Chunked || head.ContentLength != -1 {
		t.Fatalf("head=%+v", head)
	}
	if string(body) != "foo" {
		t.Fatalf("body=%q", body)
	}
}

func TestParser_ChunkedMultiSegmentWithExtension(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3;name=val\r\nhey\r\n2\r\n!!\r\n0\r\nTrailer: x\r\n\r\n"
	_, body, err := parseReq(t, strings.NewReader(raw), 8<<10, 1<<20)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if string(body) != "hey!!" {
		t.Fatalf("body=%q", body)
	}
}

// The parser must produce identical results whether the bytes arrive in
// one read or one byte at a time.
func TestParser_OneBytePerReadInvariance(t *testing.T) {
	raw := "POST /a/b?q=1 HTTP/1.1\r\nHost: example\r\nX-Multi: one\r\nX-Multi: two\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n4\r\nwxyz\r\n0\r\n\r\n"

	wholeHead, wholeBody, err := parseReq(t, strings.NewReader(raw), 8<<10, 1<<20)
	if err != nil {
		t.Fatalf("whole parse error: %v", err)
	}
	byteHead, byteBody, err := parseReq(t, &oneByteReader{s: raw}, 8<<10, 1<<20)
	if err != nil {
		t.Fatalf("incremental parse error: %v", err)
	}

	if byteHead.Method != wholeHead.Method || byteHead.RequestURI != wholeHead.RequestURI {
		t.Fatalf("heads differ: %+v vs %+v", byteHead, wholeHead)
	}
	if string(byteBody) != string(wholeBody) {
		t.Fatalf("bodies differ: %q vs %q", byteBody, wholeBody)
	}
	if got := byteHead.Header["X-Multi"]; len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("X-Multi=%v", got)
	}
}

func TestParser_MalformedRequestLine(t *testing.T) {
	for _, raw := range []string{
		"GET /\r\n\r\n",
		"GET / SPDY/3\r\n\r\n",
		" / HTTP/1.1\r\n\r\n",
	} {
		if _, _, err := parseReq(t, strings.NewReader(raw), 8<<10, 0); !errors.Is(err, ErrMalformedRequestLine) {
			t.Fatalf("raw=%q err=%v, want ErrMalformedRequestLine", raw, err)
		}
	}
}

func TestParser_MalformedHeader(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nno-colon-here\r\n\r\n"
	if _, _, err := parseReq(t, strings.NewReader(raw), 8<<10, 0); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("err=%v, want ErrMalformedHeader", err)
	}
}

func TestParser_BadContentLength(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: nope\r\n\r\n"
	if _, _, err := parseReq(t, strings.NewReader(raw), 8<<10, 0); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("err=%v, want ErrMalformedHeader", err)
	}
}

func TestParser_HeaderTooLarge(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("a", 100) + "\r\n\r\n"
	if _, _, err := parseReq(t, strings.NewReader(raw), 32, 0); !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("err=%v, want ErrHeaderTooLarge", err)
	}
}

func TestParser_BodyTooLarge(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 100\r\n\r\n" + strings.Repeat("a", 100)
	if _, _, err := parseReq(t, strings.NewReader(raw), 8<<10, 10); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err=%v, want ErrBodyTooLarge", err)
	}
}

func TestParser_ChunkedBodyTooLarge(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"10\r\n0123456789abcdef\r\n0\r\n\r\n"
	if _, _, err := parseReq(t, strings.NewReader(raw), 8<<10, 8); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err=%v, want ErrBodyTooLarge", err)
	}
}

func TestParser_TruncatedBody(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc"
	if _, _, err := parseReq(t, strings.NewReader(raw), 8<<10, 0); !errors.Is(err, ErrIncompleteBody) {
		t.Fatalf("err=%v, want ErrIncompleteBody", err)
	}
}

func TestParser_MalformedChunkSize(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n"
	if _, _, err := parseReq(t, strings.NewReader(raw), 8<<10, 0); !errors.Is(err, ErrMalformedChunk) {
		t.Fatalf("err=%v, want ErrMalformedChunk", err)
	}
}

func TestParser_MissingChunkCRLF(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nfooXX0\r\n\r\n"
	if _, _, err := parseReq(t, strings.NewReader(raw), 8<<10, 0); !errors.Is(err, ErrMalformedChunk) {
		t.Fatalf("err=%v, want ErrMalformedChunk", err)
	}
}

func TestParser_HeadLeavesNextRequestIntact(t *testing.T) {
	raw := "POST /a HTTP/1.1\r\nContent-Length: 2\r\n\r\nokGET /b HTTP/1.1\r\n\r\n"
	s := NewStream(strings.NewReader(raw))
	p := &Parser{S: s, MaxHeaderBytes: 8 << 10}

	head, err := p.ReadHead()
	if err != nil {
		t.Fatalf("first head: %v", err)
	}
	body, err := p.ReadBody(head)
	if err != nil || string(body) != "ok" {
		t.Fatalf("first body=%q err=%v", body, err)
	}

	head, err = p.ReadHead()
	if err != nil {
		t.Fatalf("second head: %v", err)
	}
	if head.Method != "GET" || head.RequestURI != "/b" {
		t.Fatalf("second head=%+v", head)
	}
}

func TestCanonicalHeaderKey(t *testing.T) {
	for in, want := range map[string]string{
		"content-type":      "Content-Type",
		"X-REQUEST-ID":      "X-Request-Id",
		"host":              "Host",
		"tRANSFER-eNCODING": "Transfer-Encoding",
	} {
		if got := canonicalHeaderKey(in); got != want {
			t.Fatalf("canonicalHeaderKey(%q)=%q, want %q", in, got, want)
		}
	}
}
