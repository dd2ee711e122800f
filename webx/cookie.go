package webx

import (
	"strings"
	"time"
)

// httpTimeFormat is the RFC 1123 shape used for Date, Expires and
// Last-Modified header values, always in GMT.
const httpTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// SetCookie describes one Set-Cookie header to emit with a response.
type SetCookie struct {
	Name  string
	Value string

	Path     string
	Domain   string
	Expires  time.Time
	HttpOnly bool
	Secure   bool
	SameSite string
}

// String serializes the cookie in the response wire format, attributes
// in fixed order: Path, Domain, Expires, HttpOnly, Secure, SameSite.
func (c *SetCookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if !c.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(httpTimeFormat))
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite)
	}
	return b.String()
}

// parseCookies splits a request Cookie header ("k1=v1; k2=v2") into a
// map. Pairs without an equals sign are dropped; the first value wins
// for a repeated name.
func parseCookies(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.IndexByte(part, '=')
		if i <= 0 {
			continue
		}
		name := part[:i]
		if _, ok := out[name]; !ok {
			out[name] = part[i+1:]
		}
	}
	return out
}
