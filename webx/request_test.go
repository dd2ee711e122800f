package webx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"takumi.dev/go/web/webx/internal/http1"
)

func testRequest(method, uri string, header Header, body []byte) *Request {
	if header == nil {
		header = Header{}
	}
	head := &http1.RequestHead{
		Method:        method,
		RequestURI:    uri,
		Proto:         "HTTP/1.1",
		Header:        map[string][]string(header),
		ContentLength: int64(len(body)),
	}
	return newRequest(head, body, "203.0.113.7:1234")
}

func TestRequest_PathAndQuery(t *testing.T) {
	req := testRequest("GET", "/search?q=go&tag=a&tag=b", nil, nil)
	require.Equal(t, "/search", req.Path)
	require.Equal(t, "/search?q=go&tag=a&tag=b", req.RequestURI)
	require.Equal(t, "go", req.QueryParam("q"))
	require.Equal(t, []string{"a", "b"}, req.Query()["tag"])
}

func TestRequest_JSON(t *testing.T) {
	req := testRequest("POST", "/", Header{"Content-Type": {"application/json"}}, []byte(`{"name":"x","n":3}`))
	var got struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	require.NoError(t, req.JSON(&got))
	require.Equal(t, "x", got.Name)
	require.Equal(t, 3, got.N)

	bad := testRequest("POST", "/", nil, []byte("{nope"))
	require.Error(t, bad.JSON(&got))
}

func TestRequest_FormURLEncoded(t *testing.T) {
	req := testRequest("POST", "/",
		Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		[]byte("a=1&b=2&a=3"))
	form, err := req.Form()
	require.NoError(t, err)
	require.Equal(t, []string{"1", "3"}, form["a"])
	require.Equal(t, []string{"2"}, form["b"])
}

func TestRequest_FormOtherContentType(t *testing.T) {
	req := testRequest("POST", "/", Header{"Content-Type": {"text/plain"}}, []byte("a=1"))
	form, err := req.Form()
	require.NoError(t, err)
	require.Empty(t, form)
}

func TestRequest_Multipart(t *testing.T) {
	body := "--BOUND\r\n" +
		"Content-Disposition: form-data; name=\"field\"\r\n" +
		"\r\n" +
		"value\r\n" +
		"--BOUND\r\n" +
		"Content-Disposition: form-data; name=\"upload\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"file contents\r\n" +
		"--BOUND--\r\n"
	req := testRequest("POST", "/",
		Header{"Content-Type": {`multipart/form-data; boundary=BOUND`}},
		[]byte(body))

	form, err := req.Form()
	require.NoError(t, err)
	require.Equal(t, "value", form.Get("field"))

	files, err := req.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "upload", files[0].FieldName)
	require.Equal(t, "a.txt", files[0].Filename)
	require.Equal(t, "text/plain", files[0].ContentType)
	require.Equal(t, "file contents", string(files[0].Data))
}

func TestRequest_MultipartUnnamedPartSkipped(t *testing.T) {
	body := "--B\r\n" +
		"Content-Disposition: form-data\r\n" +
		"\r\n" +
		"ignored\r\n" +
		"--B\r\n" +
		"Content-Disposition: form-data; name=\"kept\"\r\n" +
		"\r\n" +
		"yes\r\n" +
		"--B--\r\n"
	req := testRequest("POST", "/",
		Header{"Content-Type": {`multipart/form-data; boundary=B`}},
		[]byte(body))
	form, err := req.Form()
	require.NoError(t, err)
	require.Len(t, form, 1)
	require.Equal(t, "yes", form.Get("kept"))
}

func TestRequest_MultipartMissingBoundary(t *testing.T) {
	req := testRequest("POST", "/",
		Header{"Content-Type": {"multipart/form-data"}},
		[]byte("whatever"))
	_, err := req.Form()
	require.ErrorIs(t, err, ErrMalformedForm)
}

func TestRequest_MultipartTruncated(t *testing.T) {
	body := "--B\r\nContent-Disposition: form-data; name=\"x\"\r\n\r\nval"
	req := testRequest("POST", "/",
		Header{"Content-Type": {`multipart/form-data; boundary=B`}},
		[]byte(body))
	_, err := req.Form()
	require.ErrorIs(t, err, ErrMalformedForm)
}

func TestRequest_Cookies(t *testing.T) {
	req := testRequest("GET", "/", Header{"Cookie": {"sid=abc; theme=dark; bare; sid=zzz"}}, nil)
	v, ok := req.Cookie("sid")
	require.True(t, ok)
	require.Equal(t, "abc", v) // first value wins
	v, ok = req.Cookie("theme")
	require.True(t, ok)
	require.Equal(t, "dark", v)
	_, ok = req.Cookie("bare")
	require.False(t, ok)
}

func TestRequest_ContentType(t *testing.T) {
	req := testRequest("POST", "/", Header{"Content-Type": {"application/json; charset=utf-8"}}, nil)
	require.Equal(t, "application/json", req.ContentType())
	require.Empty(t, testRequest("GET", "/", nil, nil).ContentType())
}
