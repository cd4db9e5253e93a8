package local_server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDuplicateRoute = errors.New("local_server: duplicate route")
	ErrDuplicateMount = errors.New("local_server: duplicate file servant mount")
	ErrInvalidPath    = errors.New("local_server: path must start with /")
)

// A Route binds a handler to an exact (path, method) pair.
type Route struct {
	Path    string
	Method  Method
	Handler Handler
}

func (r *Route) String() string {
	return fmt.Sprintf("Route(%s %s)", r.Method, r.Path)
}

// Registry is the read-only lookup the Conductor dispatches through.
// Implementations must be safe for concurrent reads.
type Registry interface {
	FindRoute(path string, method Method) (*Route, bool)
	FindFileServant(path string) (servant FileServant, subPath string, ok bool)
}

type routeKey struct {
	path   string
	method Method
}

type mount struct {
	prefix  string
	servant FileServant
}

// RouteTable is the default Registry. Populate it with Handle and Mount
// before the server starts; it must not be modified while serving, so
// lookups take no locks.
type RouteTable struct {
	routes map[routeKey]*Route
	mounts []mount // longest prefix first
}

func NewRouteTable() *RouteTable {
	return &RouteTable{routes: make(map[routeKey]*Route)}
}

// Handle registers h for the exact path and method.
func (t *RouteTable) Handle(method Method, path string, h Handler) error {
	if _, err := ParseMethod(string(method)); err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	k := routeKey{path, method}
	if _, ok := t.routes[k]; ok {
		return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, path)
	}
	t.routes[k] = &Route{Path: path, Method: method, Handler: h}
	return nil
}

func (t *RouteTable) HandleFunc(method Method, path string, f func(*RequestObject) (*Response, error)) error {
	return t.Handle(method, path, HandlerFunc(f))
}

// Mount serves GET requests below prefix from s.
func (t *RouteTable) Mount(prefix string, s FileServant) error {
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, prefix)
	}
	if prefix != "/" {
		prefix = strings.TrimRight(prefix, "/")
	}
	for _, m := range t.mounts {
		if m.prefix == prefix {
			return fmt.Errorf("%w: %s", ErrDuplicateMount, prefix)
		}
	}
	t.mounts = append(t.mounts, mount{prefix: prefix, servant: s})
	sort.SliceStable(t.mounts, func(i, j int) bool {
		return len(t.mounts[i].prefix) > len(t.mounts[j].prefix)
	})
	return nil
}

func (t *RouteTable) FindRoute(path string, method Method) (*Route, bool) {
	r, ok := t.routes[routeKey{path, method}]
	return r, ok
}

// FindFileServant matches prefixes on segment boundaries, so a mount at
// /static serves /static and /static/app.js but not /staticfoo.
func (t *RouteTable) FindFileServant(path string) (FileServant, string, bool) {
	for _, m := range t.mounts {
		if m.prefix == "/" {
			return m.servant, strings.TrimPrefix(path, "/"), true
		}
		if path == m.prefix {
			return m.servant, "", true
		}
		if strings.HasPrefix(path, m.prefix+"/") {
			return m.servant, strings.TrimPrefix(path[len(m.prefix):], "/"), true
		}
	}
	return nil, "", false
}

// Routes returns the registered routes sorted by path then method.
func (t *RouteTable) Routes() []*Route {
	out := make([]*Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}
