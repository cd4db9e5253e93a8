package local_server

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a request could not be served normally.
type FailureKind int

const (
	// IncompleteRequest: the declared content-length disagrees with the body.
	IncompleteRequest FailureKind = iota + 1
	// RouteNotFound: neither a route nor a file servant matched.
	RouteNotFound
	// HandlerFailure: a handler, file servant or validation step failed.
	HandlerFailure
)

func (k FailureKind) String() string {
	switch k {
	case IncompleteRequest:
		return "IncompleteRequest"
	case RouteNotFound:
		return "RouteNotFound"
	case HandlerFailure:
		return "HandlerFailure"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Failure is the typed error produced by dispatch.
type Failure struct {
	Kind FailureKind
	Path string
	Err  error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case IncompleteRequest:
		return "Incomplete request"
	case RouteNotFound:
		return "Route not found"
	}
	if f.Err == nil || f.Err.Error() == "" {
		return "Unknown error"
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Status maps the failure kind to an HTTP status code.
func (f *Failure) Status() int {
	switch f.Kind {
	case IncompleteRequest:
		return StatusBadRequest
	case RouteNotFound:
		return StatusNotFound
	default:
		return StatusInternalServerError
	}
}

// Response renders the failure. This is the only place failures become
// HTTP responses.
func (f *Failure) Response() *Response {
	switch f.Kind {
	case IncompleteRequest:
		return BadRequest(f.Error())
	case RouteNotFound:
		return NotFound(f.Path, f.Error())
	default:
		return InternalError(f.Error())
	}
}

// AsFailure reports whether err is or wraps a *Failure.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// panicError carries a recovered handler panic.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	if err, ok := p.value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(p.value)
}
