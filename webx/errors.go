package webx

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"takumi.dev/go/web/webx/internal/http1"
)

// Parse-level failures, re-exported from the wire layer so callers can
// test with errors.Is without importing internal packages.
var (
	ErrMalformedRequestLine = http1.ErrMalformedRequestLine
	ErrMalformedHeader      = http1.ErrMalformedHeader
	ErrMalformedChunk       = http1.ErrMalformedChunk
	ErrIncompleteBody       = http1.ErrIncompleteBody
	ErrHeaderTooLarge       = http1.ErrHeaderTooLarge
	ErrPayloadTooLarge      = http1.ErrBodyTooLarge
)

var (
	// ErrRouteConflict reports a Register call that duplicates an
	// already registered (method, pattern) pair.
	ErrRouteConflict = errors.New("webx: route conflict")

	// ErrNotFound reports that no route pattern matches a path.
	ErrNotFound = errors.New("webx: not found")

	// ErrMethodNotAllowed reports that some pattern matches the path
	// under a different method.
	ErrMethodNotAllowed = errors.New("webx: method not allowed")

	// ErrHandlerIncomplete reports a handler that returned without
	// producing a response. A programming defect, rendered as a 500.
	ErrHandlerIncomplete = errors.New("webx: handler set no response")
)

// MethodNotAllowedError carries the methods a path is registered
// under, for the Allow header of a 405 response.
type MethodNotAllowedError struct {
	Allow []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("webx: method not allowed (allow %s)", strings.Join(e.Allow, ", "))
}

func (e *MethodNotAllowedError) Unwrap() error { return ErrMethodNotAllowed }

// Error pairs an HTTP status code with an underlying cause. Handlers
// and middlewares can panic with or store one to control the rendered
// status.
type Error struct {
	code int
	err  error
}

// NewError inits a new error given the status code.
func NewError(code int, underlying error) *Error {
	return &Error{code: code, err: underlying}
}

func (e *Error) Code() int { return e.code }

func (e *Error) Error() string {
	reason := http1.ReasonPhrase(e.code)
	if reason == "" {
		reason = "Unknown"
	}
	if e.err == nil {
		return reason
	}
	return fmt.Sprintf("%s: %s", reason, e.err.Error())
}

func (e *Error) Unwrap() error { return e.err }

// CodeOf returns the status code if err is or wraps an *Error, and 0
// otherwise.
func CodeOf(err error) int {
	var we *Error
	if errors.As(err, &we) {
		return we.Code()
	}
	return 0
}
