package local_server

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	contentTypeText = "text/plain"
	contentTypeJSON = "application/json"
)

// A Response is the outbound side of a request. Builders return a fresh
// value; middleware returns copies instead of editing in place.
type Response struct {
	Status  int
	Headers Headers
	Body    []byte
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	c := &Response{Status: r.Status, Headers: r.Headers.Clone()}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return c
}

func newResponse(status int, contentType string, body []byte) *Response {
	if body == nil {
		body = []byte{}
	}
	h := Headers{}
	h.Set(HeaderContentType, contentType)
	h.Set(HeaderContentLength, strconv.Itoa(len(body)))
	return &Response{Status: status, Headers: h, Body: body}
}

// Text builds a text/plain response with the given status.
func Text(status int, body string) *Response {
	return newResponse(status, contentTypeText, []byte(body))
}

// JSON builds an application/json response from v.
func JSON(status int, v any) (*Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return newResponse(status, contentTypeJSON, b), nil
}

// Preflight is the empty 200 answer to an OPTIONS request.
func Preflight() *Response {
	return Text(StatusOK, "")
}

func BadRequest(msg string) *Response {
	return Text(StatusBadRequest, msg)
}

// NotFound includes the requested path in the body for diagnostics.
func NotFound(path, msg string) *Response {
	return Text(StatusNotFound, msg+": "+path)
}

func InternalError(msg string) *Response {
	return Text(StatusInternalServerError, msg)
}

const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusPayloadTooLarge     = 413
	StatusInternalServerError = 500
	StatusNotImplemented      = 501
)

var statusText = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	409: "Conflict",
	413: "Payload Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

// StatusText returns the reason phrase for code, or "Status" when unknown.
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Status"
}
