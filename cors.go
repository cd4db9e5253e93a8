package local_server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS"
	corsAllowHeaders = "Content-Type, Content-Length, Authorization, Accept, X-Requested-With"
	corsDeniedOrigin = "null"

	// Characters that may never appear unescaped in a URI.
	uriIllegalChars = " \"<>\\^`{|}"
)

var errIllegalOriginChar = errors.New("illegal character in origin")

// CORS decorates responses with access-control headers. Only loopback
// origins are allowed; the header is advisory and never fails a request.
type CORS struct {
	logger *slog.Logger
}

func NewCORS(logger *slog.Logger) *CORS {
	if logger == nil {
		logger = slog.Default()
	}
	return &CORS{logger: logger}
}

// Apply returns resp with CORS headers added for the request's Origin.
// resp itself is left untouched.
func (c *CORS) Apply(ctx RequestContext, resp *Response) *Response {
	origin, ok := ctx.Headers.Lookup(HeaderOrigin)
	if !ok {
		return resp
	}

	out := resp.Clone()
	out.Headers.Set(HeaderAllowOrigin, c.allowedOrigin(origin))
	// Sent on denial too; browsers still refuse the response because of
	// the "null" origin.
	out.Headers.Set(HeaderAllowMethods, corsAllowMethods)
	out.Headers.Set(HeaderAllowHeaders, corsAllowHeaders)
	return out
}

func (c *CORS) allowedOrigin(origin string) string {
	u, err := parseOrigin(origin)
	if err != nil {
		c.logger.Error("Invalid Origin header", "origin", origin, "error", err)
		return corsDeniedOrigin
	}
	if isLoopbackHost(u.Hostname()) {
		return origin
	}
	return corsDeniedOrigin
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}

// parseOrigin is url.Parse without its leniency for characters outside the
// URI grammar, which url.Parse lets through in paths.
func parseOrigin(origin string) (*url.URL, error) {
	if i := strings.IndexFunc(origin, illegalURIRune); i >= 0 {
		return nil, fmt.Errorf("%w at index %d: %q", errIllegalOriginChar, i, origin)
	}
	return url.Parse(origin)
}

func illegalURIRune(r rune) bool {
	return r < 0x21 || r == 0x7f || strings.ContainsRune(uriIllegalChars, r)
}
