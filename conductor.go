package local_server

import (
	"log/slog"
	"runtime"
)

// Conductor turns a request into a response: it validates the request,
// dispatches it to a route, a file servant or nothing, and applies CORS.
// It is safe for concurrent use as long as the Registry is.
type Conductor struct {
	registry Registry
	cors     *CORS
	logger   *slog.Logger
}

type ConductorOption func(*Conductor)

// WithLogger sets the logger used for dispatch and failure logging.
func WithLogger(l *slog.Logger) ConductorOption {
	return func(c *Conductor) { c.logger = l }
}

// WithCORS replaces the default CORS middleware.
func WithCORS(cors *CORS) ConductorOption {
	return func(c *Conductor) { c.cors = cors }
}

func NewConductor(registry Registry, opts ...ConductorOption) *Conductor {
	c := &Conductor{registry: registry}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.cors == nil {
		c.cors = NewCORS(c.logger)
	}
	return c
}

// outcome is the result of dispatch: exactly one of resp and fail is set.
type outcome struct {
	resp *Response
	fail *Failure
}

func (o outcome) response() *Response {
	if o.fail != nil {
		return o.fail.Response()
	}
	return o.resp
}

// Process always returns a response; every failure is mapped to a status
// code and every response has CORS applied exactly once.
func (c *Conductor) Process(req *RequestObject) *Response {
	out := c.dispatch(req)
	if out.fail != nil && out.fail.Kind == HandlerFailure {
		attrs := []any{"request", req.String(), "error", out.fail.Error()}
		if p, ok := out.fail.Err.(*panicError); ok {
			attrs = append(attrs, "stack", string(p.stack))
		}
		c.logger.Error("Error while processing request object", attrs...)
	}
	return c.cors.Apply(req.Context, out.response())
}

func (c *Conductor) dispatch(req *RequestObject) (out outcome) {
	defer func() {
		if v := recover(); v != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			out = outcome{fail: &Failure{Kind: HandlerFailure, Path: req.Context.Path, Err: &panicError{value: v, stack: buf}}}
		}
	}()

	ctx := req.Context
	c.logger.Debug("Request", "request", req.String())

	declared, ok, err := ctx.Headers.ContentLength()
	if err != nil {
		return failed(HandlerFailure, ctx.Path, err)
	}
	if ok && declared != len(req.Body) {
		c.logger.Warn("Received incomplete request", "request", req.String(), "declared", declared, "actual", len(req.Body))
		return failed(IncompleteRequest, ctx.Path, nil)
	}

	if ctx.Method == MethodOptions {
		return outcome{resp: Preflight()}
	}

	if route, ok := c.registry.FindRoute(ctx.Path, ctx.Method); ok {
		c.logger.Debug("Found route", "route", route.String())
		resp, err := route.Handler.Serve(req)
		return handled(ctx.Path, resp, err)
	}

	if ctx.Method == MethodGet {
		if servant, subPath, ok := c.registry.FindFileServant(ctx.Path); ok {
			c.logger.Debug("Found file servant", "path", ctx.Path, "sub_path", subPath)
			resp, err := servant.ServeFile(subPath)
			return handled(ctx.Path, resp, err)
		}
	}

	return failed(RouteNotFound, ctx.Path, nil)
}

func failed(kind FailureKind, path string, err error) outcome {
	return outcome{fail: &Failure{Kind: kind, Path: path, Err: err}}
}

// handled wraps what a route handler or file servant returned. A nil
// response without an error counts as a failure.
func handled(path string, resp *Response, err error) outcome {
	if err != nil {
		if f, ok := AsFailure(err); ok {
			return outcome{fail: f}
		}
		return failed(HandlerFailure, path, err)
	}
	if resp == nil {
		return failed(HandlerFailure, path, nil)
	}
	return outcome{resp: resp}
}
