package local_server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHeaders_CaseInsensitive(t *testing.T) {
	h := NewHeaders("Content-Type", "text/plain", "ORIGIN", "http://localhost")

	assert.Equal(t, "text/plain", h.Get("content-type"))
	assert.Equal(t, "http://localhost", h.Get("Origin"))
	assert.True(t, h.Has("origin"))

	h.Set("origin", "http://127.0.0.1")
	assert.Equal(t, 2, h.Len(), "set with other casing replaces")
	assert.Equal(t, "http://127.0.0.1", h.Get("Origin"))

	h.Del("CONTENT-TYPE")
	_, ok := h.Lookup("content-type")
	assert.False(t, ok)
}

func TestHeaders_LookupPresentButEmpty(t *testing.T) {
	h := NewHeaders("Origin", "")
	v, ok := h.Lookup("origin")
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestHeaders_Each(t *testing.T) {
	h := NewHeaders("x-b", "2", "access-control-allow-origin", "null", "CONTENT-LENGTH", "0")

	var names []string
	h.Each(func(name, _ string) { names = append(names, name) })

	assert.Equal(t, []string{"Access-Control-Allow-Origin", "Content-Length", "X-B"}, names)
}

func TestHeaders_Clone(t *testing.T) {
	h := NewHeaders("a", "1")
	c := h.Clone()
	c.Set("a", "2")
	assert.Equal(t, "1", h.Get("a"))
}

func TestHeaders_ContentLength(t *testing.T) {
	tests := []struct {
		value   string
		n       int
		ok      bool
		wantErr bool
	}{
		{"", 0, false, false},
		{"  ", 0, false, false},
		{"0", 0, true, false},
		{"42", 42, true, false},
		{" 7 ", 7, true, false},
		{"abc", 0, true, true},
		{"-1", -1, true, false},
		{"1.5", 0, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			n, ok, err := NewHeaders("Content-Length", tt.value).ContentLength()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.ok, ok)
		})
	}

	_, ok, err := Headers{}.ContentLength()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCanonicalHeaderName(t *testing.T) {
	assert.Equal(t, "Content-Type", CanonicalHeaderName("content-type"))
	assert.Equal(t, "X-Requested-With", CanonicalHeaderName("X-REQUESTED-WITH"))
	assert.Equal(t, "Etag", CanonicalHeaderName("etag"))
}

func TestHeaders_GetIgnoresCase_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z][A-Za-z-]{0,15}`).Draw(t, "name")
		value := rapid.String().Draw(t, "value")
		h := Headers{}
		h.Set(name, value)

		assert.Equal(t, value, h.Get(CanonicalHeaderName(name)))
		assert.Equal(t, 1, h.Len())
	})
}
