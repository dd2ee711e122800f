package webx

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

type basicAuthConfig struct {
	users     map[string]string
	realm     string
	validator func(username, password string) bool
}

// BasicAuthOption configures BasicAuth.
type BasicAuthOption func(*basicAuthConfig)

// WithRealm sets the realm announced in the WWW-Authenticate
// challenge.
func WithRealm(realm string) BasicAuthOption {
	return func(cfg *basicAuthConfig) { cfg.realm = realm }
}

// WithValidator replaces the static user table with a custom
// credential check.
func WithValidator(fn func(username, password string) bool) BasicAuthOption {
	return func(cfg *basicAuthConfig) { cfg.validator = fn }
}

// BasicAuth returns a middleware enforcing HTTP Basic authentication
// against the given user table. Credentials are compared in constant
// time. On success the username lands in the Context store under
// AuthUserKey; on failure the chain is short-circuited with a 401 and
// a WWW-Authenticate challenge.
func BasicAuth(users map[string]string, opts ...BasicAuthOption) HandlerFunc {
	cfg := &basicAuthConfig{users: users, realm: "Restricted"}
	for _, opt := range opts {
		opt(cfg)
	}
	return func(c *Context) {
		username, ok := authenticate(cfg, c.Request().Header.Get("Authorization"))
		if !ok {
			c.resp.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", cfg.realm))
			c.Text(401, "Unauthorized")
			c.Abort()
			return
		}
		c.Set(AuthUserKey, username)
		c.Next()
	}
}

func authenticate(cfg *basicAuthConfig, header string) (string, bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", false
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", false
	}
	if cfg.validator != nil {
		return username, cfg.validator(username, password)
	}
	want, ok := cfg.users[username]
	if !ok {
		// Compare against itself to keep timing uniform for unknown
		// users.
		subtle.ConstantTimeCompare([]byte(password), []byte(password))
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(want)) != 1 {
		return "", false
	}
	return username, true
}
