package local_server

import (
	"errors"
	"fmt"
)

// Method is one of the HTTP methods the server accepts.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// Methods lists every accepted method in the order advertised to CORS clients.
var Methods = []Method{
	MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions,
}

var ErrInvalidMethod = errors.New("local_server: invalid method")

// ParseMethod maps a wire method token to a Method. Tokens are case-sensitive.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

func (m Method) String() string {
	return string(m)
}

// RequestContext describes an inbound request without its body.
// It is built once by the transport and not modified afterwards.
type RequestContext struct {
	Method  Method
	Path    string
	Headers Headers

	// RequestID and RemoteAddr are diagnostic only.
	RequestID  string
	RemoteAddr string
}

// A RequestObject is a RequestContext plus the raw body.
type RequestObject struct {
	Context RequestContext
	Body    []byte
}

// NewRequest is a convenience constructor used by tests and route handlers
// that forward requests. headers may be nil.
func NewRequest(method Method, path string, headers Headers, body []byte) *RequestObject {
	if headers == nil {
		headers = Headers{}
	}
	return &RequestObject{
		Context: RequestContext{Method: method, Path: path, Headers: headers},
		Body:    body,
	}
}

// BodyText returns the body decoded as a string.
func (r *RequestObject) BodyText() string {
	return string(r.Body)
}

func (r *RequestObject) String() string {
	c := r.Context
	return fmt.Sprintf("RequestObject(id=%s remote=%s method=%s path=%s headers=%v body=%dB)",
		c.RequestID, c.RemoteAddr, c.Method, c.Path, map[string]string(c.Headers), len(r.Body))
}
