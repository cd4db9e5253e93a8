package local_server

// A Handler answers a request routed to it. Returning an error makes the
// Conductor answer with a 500 carrying the error message.
type Handler interface {
	Serve(*RequestObject) (*Response, error)
}

type HandlerFunc func(*RequestObject) (*Response, error)

// Serve calls f(r).
func (f HandlerFunc) Serve(r *RequestObject) (*Response, error) {
	return f(r)
}

// A FileServant serves static content below a mount prefix. subPath is the
// request path with the prefix and any leading slash removed.
type FileServant interface {
	ServeFile(subPath string) (*Response, error)
}

// Health replies to every request with a plain "ok".
func Health(r *RequestObject) (*Response, error) {
	return Text(StatusOK, "ok"), nil
}

// HealthHandler returns a handler that replies to each request with "ok".
func HealthHandler() Handler { return HandlerFunc(Health) }

// Echo replies with the request body and its content type.
func Echo(r *RequestObject) (*Response, error) {
	resp := Text(StatusOK, r.BodyText())
	if ct := r.Context.Headers.Get(HeaderContentType); ct != "" {
		resp.Headers.Set(HeaderContentType, ct)
	}
	return resp, nil
}

func EchoHandler() Handler { return HandlerFunc(Echo) }

type serverHandler struct {
	srv *Server
}

func (sh serverHandler) Serve(req *RequestObject) *Response {
	conductor := sh.srv.Conductor
	if conductor == nil {
		panic("local_server: invalid conductor")
	}
	return conductor.Process(req)
}
