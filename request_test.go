package local_server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	for _, m := range Methods {
		got, err := ParseMethod(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	for _, bad := range []string{"", "get", "TRACE", "CONNECT"} {
		_, err := ParseMethod(bad)
		assert.ErrorIs(t, err, ErrInvalidMethod, bad)
	}
}

func TestRequestObject_String(t *testing.T) {
	req := NewRequest(MethodPost, "/api", NewHeaders("Origin", "http://localhost"), []byte("abc"))
	req.Context.RequestID = "req-1"

	s := req.String()
	assert.Contains(t, s, "id=req-1")
	assert.Contains(t, s, "method=POST")
	assert.Contains(t, s, "path=/api")
	assert.Contains(t, s, "origin:http://localhost")
	assert.Contains(t, s, "body=3B")
}

func TestNewRequest_NilHeaders(t *testing.T) {
	req := NewRequest(MethodGet, "/", nil, nil)
	require.NotNil(t, req.Context.Headers)
	assert.False(t, req.Context.Headers.Has("origin"))
}

func TestFailure(t *testing.T) {
	tests := []struct {
		name    string
		failure *Failure
		status  int
		body    string
	}{
		{"Incomplete", &Failure{Kind: IncompleteRequest, Path: "/a"}, 400, "Incomplete request"},
		{"NotFound", &Failure{Kind: RouteNotFound, Path: "/a"}, 404, "Route not found: /a"},
		{"Handler", &Failure{Kind: HandlerFailure, Err: errors.New("boom")}, 500, "boom"},
		{"HandlerNoError", &Failure{Kind: HandlerFailure}, 500, "Unknown error"},
		{"Panic", &Failure{Kind: HandlerFailure, Err: &panicError{value: errors.New("bad")}}, 500, "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.failure.Status())
			resp := tt.failure.Response()
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.body, string(resp.Body))
		})
	}
}

func TestAsFailure(t *testing.T) {
	inner := &Failure{Kind: RouteNotFound, Path: "/x"}
	f, ok := AsFailure(errors.Join(errors.New("context"), inner))
	require.True(t, ok)
	assert.Same(t, inner, f)

	_, ok = AsFailure(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, "RouteNotFound", RouteNotFound.String())
}
