package local_server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	atom "go.uber.org/atomic"
)

var (
	bufioReaderPool sync.Pool
	bufioWriterPool sync.Pool
)

type ConnState int

const (
	// StateNew represents a new connection that is expected to
	// send a request immediately. Connections begin at this
	// state and then transition to either StateActive or
	// StateClosed.
	StateNew ConnState = iota

	// StateActive represents a connection that has read 1 or more
	// bytes of a request.
	StateActive

	// StateIdle represents a connection that has finished
	// handling a request and is in the keep-alive state, waiting
	// for a new request. Connections transition from StateIdle
	// to either StateActive or StateClosed.
	StateIdle

	// StateClosed represents a closed connection.
	// This is a terminal state.
	StateClosed
)

// A conn represents the server side of a connection.
type conn struct {
	// srv is the server on which the connection arrived.
	// Immutable; never nil.
	srv *Server

	// cancelCtx cancels the connection-level context.
	cancelCtx context.CancelFunc

	// rwc is the underlying network connection.
	rwc net.Conn

	// remoteAddr is rwc.RemoteAddr().String(). It is populated
	// inside the (*conn).serve goroutine.
	remoteAddr string

	// werr is set to the first write error to rwc.
	// It is set via checkConnErrorWriter{w}, where bufw writes.
	werr error

	// bufr reads from rwc.
	bufr *bufio.Reader

	// bufw writes to checkConnErrorWriter{c}, which populates werr on error.
	bufw *bufio.Writer

	curState atom.Uint64 // packed (unixtime<<8|uint8(ConnState))
}

func (c *conn) setState(state ConnState) {
	srv := c.srv
	switch state {
	case StateNew:
		srv.trackConn(c, true)
	case StateClosed:
		srv.trackConn(c, false)
	}
	if state > 0xff || state < 0 {
		panic("conn: internal error")
	}
	packedState := uint64(time.Now().Unix()<<8) | uint64(state)
	c.curState.Store(packedState)
}

func (c *conn) getState() (state ConnState, unixSec int64) {
	packedState := c.curState.Load()
	return ConnState(packedState & 0xff), int64(packedState >> 8)
}

// Serve a new connection.
func (c *conn) serve(ctx context.Context) {
	c.remoteAddr = c.rwc.RemoteAddr().String()
	log := c.srv.logger().With("remote", c.remoteAddr)
	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Error("panic serving connection", "error", err, "stack", string(buf))
		}
		c.close()
		c.setState(StateClosed)
	}()

	ctx, cancelCtx := context.WithCancel(ctx)
	c.cancelCtx = cancelCtx
	defer cancelCtx()

	c.bufr = newBufioReader(c.rwc)
	c.bufw = newBufioWriter(checkConnErrorWriter{c})

	for {
		req, err := c.readRequest(ctx)
		c.setState(StateActive)
		if err != nil {
			if err == io.EOF || errors.Is(err, context.Canceled) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			var oe *net.OpError
			if errors.As(err, &oe) && oe.Op == "read" {
				break
			}
			log.Warn("read request failed", "error", err)
			c.writeResponse(nil, transportError(err))
			c.closeWriteAndWait()
			break
		}

		resp := serverHandler{c.srv}.Serve(req)
		unframed := unframedBody(req)
		if unframed {
			resp = resp.Clone()
			resp.Headers.Set(HeaderConnection, "close")
		}
		c.writeResponse(req, resp)
		c.srv.served.Inc()
		if c.werr != nil || wantsClose(req) {
			break
		}
		if unframed {
			c.closeWriteAndWait()
			break
		}

		c.setState(StateIdle)

		if d := c.srv.idleTimeout(); d != 0 {
			c.rwc.SetReadDeadline(time.Now().Add(d))
			if _, err := c.bufr.Peek(4); err != nil {
				return
			}
		}
		c.rwc.SetReadDeadline(time.Time{})
	}
}

// Read next request from connection.
func (c *conn) readRequest(ctx context.Context) (*RequestObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The header deadline covers the request line and headers; the
	// ReadTimeout deadline, measured from the same start, covers the body.
	t0 := time.Now()
	var hdrDeadline, wholeDeadline time.Time
	if d := c.srv.readHeaderTimeout(); d != 0 {
		hdrDeadline = t0.Add(d)
	}
	if d := c.srv.ReadTimeout; d != 0 {
		wholeDeadline = t0.Add(d)
	}
	if !wholeDeadline.IsZero() && (hdrDeadline.IsZero() || wholeDeadline.Before(hdrDeadline)) {
		hdrDeadline = wholeDeadline
	}
	c.rwc.SetReadDeadline(hdrDeadline)
	if d := c.srv.WriteTimeout; d != 0 {
		defer func() {
			c.rwc.SetWriteDeadline(time.Now().Add(d))
		}()
	}

	req, err := readRequestHead(c.bufr)
	if err != nil {
		return nil, err
	}
	if !hdrDeadline.Equal(wholeDeadline) {
		c.rwc.SetReadDeadline(wholeDeadline)
	}
	if err := readRequestBody(c.bufr, req, c.srv.maxBodyBytes()); err != nil {
		return nil, err
	}
	req.Context.RequestID = uuid.NewString()
	req.Context.RemoteAddr = c.remoteAddr
	return req, nil
}

// writeResponse writes resp to the connection buffer and flushes it.
// Bodies of HEAD responses are dropped.
func (c *conn) writeResponse(req *RequestObject, resp *Response) {
	if req != nil && req.Context.Method == MethodHead {
		resp = &Response{Status: resp.Status, Headers: resp.Headers}
	}
	if err := WriteResponse(c.bufw, resp); err != nil {
		return
	}
	c.bufw.Flush()
}

func wantsClose(req *RequestObject) bool {
	return strings.EqualFold(req.Context.Headers.Get(HeaderConnection), "close")
}

// unframedBody reports whether req's body length was unusable, leaving any
// body bytes unread on the connection.
func unframedBody(req *RequestObject) bool {
	n, _, err := req.Context.Headers.ContentLength()
	return err != nil || n < 0
}

// transportError answers requests that never reached the Conductor.
func transportError(err error) *Response {
	resp := BadRequest("Malformed request")
	switch {
	case errors.Is(err, ErrInvalidMethod):
		resp = Text(StatusNotImplemented, "Unsupported method")
	case errors.Is(err, ErrUnsupportedTransferEncoding):
		resp = Text(StatusNotImplemented, "Unsupported transfer encoding")
	case errors.Is(err, ErrBodyTooLarge):
		resp = Text(StatusPayloadTooLarge, "Request body too large")
	}
	resp.Headers.Set(HeaderConnection, "close")
	return resp
}

// rstAvoidanceDelay is the amount of time we sleep after closing the
// write side of a TCP connection before closing the entire socket.
// Closing with unread input would otherwise send a RST that can
// discard the response we just wrote.
const rstAvoidanceDelay = 500 * time.Millisecond

type closeWriter interface {
	CloseWrite() error
}

// closeWriteAndWait flushes any outstanding data and sends a FIN packet (if
// client is connected via TCP), signaling that we're done.
func (c *conn) closeWriteAndWait() {
	c.finalFlush()
	if tcp, ok := c.rwc.(closeWriter); ok {
		tcp.CloseWrite()
	}
	time.Sleep(rstAvoidanceDelay)
}

// Close the connection.
func (c *conn) close() {
	c.finalFlush()
	c.rwc.Close()
}

// checkConnErrorWriter writes to c.rwc and records any write errors to c.werr.
// It only contains one field (and a pointer field at that), so it
// fits in an interface value without an extra allocation.
type checkConnErrorWriter struct {
	c *conn
}

func (w checkConnErrorWriter) Write(p []byte) (n int, err error) {
	n, err = w.c.rwc.Write(p)
	if err != nil && w.c.werr == nil {
		w.c.werr = err
		w.c.cancelCtx()
	}
	return
}

func (c *conn) finalFlush() {
	if c.bufr != nil {
		// Steal the bufio.Reader (~4KB worth of memory) and its associated
		// reader for a future connection.
		putBufioReader(c.bufr)
		c.bufr = nil
	}

	if c.bufw != nil {
		c.bufw.Flush()
		// Steal the bufio.Writer (~4KB worth of memory) and its associated
		// writer for a future connection.
		putBufioWriter(c.bufw)
		c.bufw = nil
	}
}

func putBufioWriter(bw *bufio.Writer) {
	bw.Reset(nil)
	bufioWriterPool.Put(bw)
}

func putBufioReader(br *bufio.Reader) {
	br.Reset(nil)
	bufioReaderPool.Put(br)
}

func newBufioReader(r io.Reader) *bufio.Reader {
	if v := bufioReaderPool.Get(); v != nil {
		br := v.(*bufio.Reader)
		br.Reset(r)
		return br
	}
	return bufio.NewReader(r)
}

func newBufioWriter(w io.Writer) *bufio.Writer {
	if v := bufioWriterPool.Get(); v != nil {
		bw := v.(*bufio.Writer)
		bw.Reset(w)
		return bw
	}
	return bufio.NewWriter(w)
}
