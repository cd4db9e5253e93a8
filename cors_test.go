package local_server

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func applyWithOrigin(c *CORS, name, origin string) *Response {
	ctx := RequestContext{Method: MethodGet, Path: "/", Headers: NewHeaders(name, origin)}
	return c.Apply(ctx, Text(StatusOK, "body"))
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"LocalhostWithPort", "http://localhost:8080", "http://localhost:8080"},
		{"LocalhostNoPort", "http://localhost", "http://localhost"},
		{"LoopbackIP", "http://127.0.0.1", "http://127.0.0.1"},
		{"LoopbackIPWithPort", "https://127.0.0.1:3000", "https://127.0.0.1:3000"},
		{"ForeignHost", "http://evil.example", "null"},
		{"LocalhostSuffix", "http://localhost.evil.example", "null"},
		{"OtherLoopback", "http://127.0.0.2", "null"},
		{"NullOrigin", "null", "null"},
		{"NoScheme", "localhost:8080", "null"},
	}
	c := NewCORS(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := applyWithOrigin(c, "Origin", tt.origin)
			assert.Equal(t, tt.want, resp.Headers.Get(HeaderAllowOrigin))
			assert.Equal(t, "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS", resp.Headers.Get(HeaderAllowMethods))
			assert.Equal(t, "Content-Type, Content-Length, Authorization, Accept, X-Requested-With", resp.Headers.Get(HeaderAllowHeaders))
		})
	}
}

func TestCORS_HeaderNameCasing(t *testing.T) {
	c := NewCORS(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, name := range []string{"origin", "Origin", "ORIGIN"} {
		resp := applyWithOrigin(c, name, "http://localhost:1234")
		assert.Equal(t, "http://localhost:1234", resp.Headers.Get(HeaderAllowOrigin), name)
	}
}

func TestCORS_NoOrigin(t *testing.T) {
	c := NewCORS(slog.New(slog.NewTextHandler(io.Discard, nil)))
	in := Text(StatusOK, "body")

	resp := c.Apply(RequestContext{Method: MethodGet, Path: "/", Headers: NewHeaders("Host", "localhost")}, in)

	assert.Same(t, in, resp)
	resp.Headers.Each(func(name, _ string) {
		assert.False(t, strings.HasPrefix(name, "Access-Control-"), name)
	})
}

func TestCORS_MalformedOriginIsDeniedAndLogged(t *testing.T) {
	var logs bytes.Buffer
	c := NewCORS(slog.New(slog.NewTextHandler(&logs, nil)))

	resp := applyWithOrigin(c, "Origin", "http://%zz")

	assert.Equal(t, "null", resp.Headers.Get(HeaderAllowOrigin))
	assert.Equal(t, corsAllowMethods, resp.Headers.Get(HeaderAllowMethods))
	assert.Contains(t, logs.String(), "Invalid Origin header")
	assert.Contains(t, logs.String(), "http://%zz")
}

func TestCORS_IllegalCharactersAreDeniedAndLogged(t *testing.T) {
	for _, origin := range []string{
		"http://localhost/a b",
		"http://localhost/{x}",
		"http://localhost:8080/\"",
		"http://127.0.0.1/a|b",
		"http://localhost\t",
	} {
		t.Run(origin, func(t *testing.T) {
			var logs bytes.Buffer
			c := NewCORS(slog.New(slog.NewTextHandler(&logs, nil)))

			resp := applyWithOrigin(c, "Origin", origin)

			assert.Equal(t, "null", resp.Headers.Get(HeaderAllowOrigin))
			assert.Equal(t, corsAllowHeaders, resp.Headers.Get(HeaderAllowHeaders))
			assert.Contains(t, logs.String(), "Invalid Origin header")
		})
	}
}

func TestCORS_DoesNotModifyInput(t *testing.T) {
	c := NewCORS(slog.New(slog.NewTextHandler(io.Discard, nil)))
	in := Text(StatusOK, "body")

	out := c.Apply(RequestContext{Headers: NewHeaders("Origin", "http://localhost")}, in)

	assert.NotSame(t, in, out)
	assert.False(t, in.Headers.Has(HeaderAllowOrigin))
	assert.Equal(t, in.Body, out.Body)
	assert.Equal(t, in.Status, out.Status)
}

func TestCORS_LoopbackAnyPortEchoed(t *testing.T) {
	c := NewCORS(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rapid.Check(t, func(t *rapid.T) {
		scheme := rapid.SampledFrom([]string{"http", "https"}).Draw(t, "scheme")
		host := rapid.SampledFrom([]string{"localhost", "127.0.0.1"}).Draw(t, "host")
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		origin := fmt.Sprintf("%s://%s:%d", scheme, host, port)

		resp := applyWithOrigin(c, "Origin", origin)

		assert.Equal(t, origin, resp.Headers.Get(HeaderAllowOrigin))
	})
}

func TestCORS_ForeignHostDenied(t *testing.T) {
	c := NewCORS(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rapid.Check(t, func(t *rapid.T) {
		host := rapid.StringMatching(`[a-z]{1,10}\.(com|example|dev)`).Draw(t, "host")
		origin := "http://" + host

		resp := applyWithOrigin(c, "Origin", origin)

		assert.Equal(t, "null", resp.Headers.Get(HeaderAllowOrigin))
		assert.Equal(t, corsAllowMethods, resp.Headers.Get(HeaderAllowMethods))
		assert.Equal(t, corsAllowHeaders, resp.Headers.Get(HeaderAllowHeaders))
	})
}
