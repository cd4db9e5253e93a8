package local_server

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderOrigin        = "Origin"
	HeaderConnection    = "Connection"

	HeaderAllowOrigin  = "Access-Control-Allow-Origin"
	HeaderAllowMethods = "Access-Control-Allow-Methods"
	HeaderAllowHeaders = "Access-Control-Allow-Headers"
)

// Headers is a header map keyed by lower-cased header name.
// Not map[string][]string, unlike http.Header: duplicate header
// lines are not modeled and the last one wins.
type Headers map[string]string

// NewHeaders builds a Headers from name/value pairs.
func NewHeaders(kv ...string) Headers {
	h := make(Headers, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Get returns the value of the named header, matching name case-insensitively.
func (h Headers) Get(name string) string {
	return h[normalizeKey(name)]
}

// Lookup is like Get but also reports whether the header was present.
func (h Headers) Lookup(name string) (string, bool) {
	v, ok := h[normalizeKey(name)]
	return v, ok
}

func (h Headers) Has(name string) bool {
	_, ok := h[normalizeKey(name)]
	return ok
}

func (h Headers) Set(name, value string) {
	h[normalizeKey(name)] = value
}

func (h Headers) Del(name string) {
	delete(h, normalizeKey(name))
}

func (h Headers) Len() int {
	return len(h)
}

func (h Headers) Clone() Headers {
	c := make(Headers, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// Each calls fn for every header in name order, with the name in
// canonical form (Content-Length, Access-Control-Allow-Origin).
func (h Headers) Each(fn func(name, value string)) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(CanonicalHeaderName(k), h[k])
	}
}

// ContentLength parses the content-length header. ok is false when the
// header is absent or empty. Negative values are returned as is; only a
// non-integer value is an error.
func (h Headers) ContentLength() (n int, ok bool, err error) {
	v := strings.TrimSpace(h.Get(HeaderContentLength))
	if v == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("invalid content-length %q", v)
	}
	return n, true, nil
}

// CanonicalHeaderName upper-cases the first letter of every dash
// separated word.
func CanonicalHeaderName(h string) string {
	ret := []rune(strings.ToLower(h))
	upper := true
	for i, r := range ret {
		if upper && unicode.IsLetter(r) {
			ret[i] = unicode.ToUpper(r)
			upper = false
		}
		if r == '-' {
			upper = true
		}
	}
	return string(ret)
}
