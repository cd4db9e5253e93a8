package local_server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	atom "go.uber.org/atomic"
)

var shutdownPollInterval = 500 * time.Millisecond

var (
	ErrServerClosed       = errors.New("local_server: server closed")
	ErrServerAddrError    = errors.New("local_server: address error")
	ErrServerNetworkError = errors.New("local_server: network type error")
	ErrNoConductor        = errors.New("local_server: no conductor")
)

// A Server accepts connections, reads requests off them and hands each
// one to its Conductor.
type Server struct {
	Network string // network type to listen on, ErrServerNetworkError if empty
	Addr    string // address to listen on, ErrServerAddrError if empty

	Conductor *Conductor // turns requests into responses; must be set

	// ReadHeaderTimeout is the amount of time allowed to read the
	// request line and headers. If zero, ReadTimeout is used.
	ReadHeaderTimeout time.Duration

	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out
	// writes of the response. It is reset whenever a new
	// request has been read.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the
	// next request. If IdleTimeout is zero, the value of
	// ReadTimeout is used.
	IdleTimeout time.Duration

	// MaxBodyBytes caps the request body size. Zero means
	// DefaultMaxBodyBytes, negative means unlimited.
	MaxBodyBytes int

	// Logger receives connection level errors. If nil, slog.Default is used.
	Logger *slog.Logger

	inShutdown atom.Bool
	served     atom.Uint64

	mu         sync.Mutex
	listeners  map[*net.Listener]struct{}
	activeConn map[*conn]struct{}
	doneChan   chan struct{}
	ctx        context.Context
}

// ListenAndServe listens on the network address addr and then serves
// requests through a Conductor built on registry.
//
// ListenAndServe always returns a non-nil error.
func ListenAndServe(network string, addr string, registry Registry) error {
	server := &Server{Network: network, Addr: addr, Conductor: NewConductor(registry)}
	server.ctx = context.Background()
	return server.ListenAndServe()
}

// ListenAndServe listens on the address srv.Addr and then
// calls Serve to handle requests on incoming connections.
//
// If srv.Addr is blank, the returned error is ErrServerAddrError.
func (srv *Server) ListenAndServe() error {
	if srv.shuttingDown() {
		return ErrServerClosed
	}
	addr := srv.Addr
	if len(addr) == 0 {
		return ErrServerAddrError
	}
	network := srv.Network
	if !ValidNetwork(network) {
		return ErrServerNetworkError
	}

	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}
	return srv.Serve(ln)
}

// ValidNetwork reports whether network is a stream network the server
// can listen on.
func ValidNetwork(network string) bool {
	switch network {
	case "unix", "tcp", "tcp4", "tcp6":
		return true
	}
	return false
}

// Served returns the number of requests answered so far.
func (srv *Server) Served() uint64 {
	return srv.served.Load()
}

func (srv *Server) shuttingDown() bool {
	return srv.inShutdown.Load()
}

// Serve accepts connections on l and serves each one in its own
// goroutine. It returns ErrServerClosed after Shutdown or Close.
func (srv *Server) Serve(l net.Listener) error {
	if srv.Conductor == nil {
		return ErrNoConductor
	}
	l = &onceCloseListener{Listener: l}
	defer l.Close()

	if !srv.trackListener(&l, true) {
		return ErrServerClosed
	}
	defer srv.trackListener(&l, false)
	var tempDelay time.Duration // how long to sleep on accept failure
	ctx := srv.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		rw, e := l.Accept()
		if e != nil {
			select {
			case <-srv.getDoneChan():
				return ErrServerClosed
			default:
			}
			if ne, ok := e.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				srv.logger().Warn("accept error; retrying", "error", e, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return e
		}
		tempDelay = 0
		c := srv.newConn(rw)
		c.setState(StateNew) // before Serve can return
		go c.serve(ctx)
	}
}

func (srv *Server) trackConn(c *conn, add bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.activeConn == nil {
		srv.activeConn = make(map[*conn]struct{})
	}
	if add {
		srv.activeConn[c] = struct{}{}
	} else {
		delete(srv.activeConn, c)
	}
}

func (srv *Server) trackListener(ln *net.Listener, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listeners == nil {
		srv.listeners = make(map[*net.Listener]struct{})
	}
	if add {
		if srv.shuttingDown() {
			return false
		}
		srv.listeners[ln] = struct{}{}
	} else {
		delete(srv.listeners, ln)
	}
	return true
}

// Create new connection from rwc.
func (srv *Server) newConn(rwc net.Conn) *conn {
	c := &conn{
		srv: srv,
		rwc: rwc,
	}
	return c
}

func (srv *Server) closeListenersLocked() error {
	var err error
	for ln := range srv.listeners {
		if cerr := (*ln).Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(srv.listeners, ln)
	}
	return err
}

// Shutdown stops accepting connections and waits, polling every
// shutdownPollInterval, until every connection is idle and closed or ctx
// is done.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.inShutdown.Store(true)
	srv.mu.Lock()
	lnErr := srv.closeListenersLocked()
	srv.closeDoneChanLocked()
	srv.mu.Unlock()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if srv.closeIdleConns() {
			return lnErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// closeIdleConns closes all idle connections and reports whether the
// srv is quiescent.
func (srv *Server) closeIdleConns() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	quiescent := true
	for c := range srv.activeConn {
		st, unixSec := c.getState()
		// Issue 22682: treat StateNew connections as if
		// they're idle if we haven't read the first request's
		// header in over 5 seconds.
		if st == StateNew && unixSec < time.Now().Unix()-5 {
			st = StateIdle
		}
		if st != StateIdle || unixSec == 0 {
			// Assume unixSec == 0 means it's a very new
			// connection, without state set yet.
			quiescent = false
			continue
		}
		c.rwc.Close()
		delete(srv.activeConn, c)
	}
	return quiescent
}

// Close immediately closes all active net.Listeners and any
// connections in state StateNew, StateActive, or StateIdle. For a
// graceful shutdown, use Shutdown.
//
// Close does not attempt to close (and does not even know about)
// any hijacked connections, such as WebSockets.
//
// Close returns any error returned from closing the Server's
// underlying Listener(s).
func (srv *Server) Close() error {
	srv.inShutdown.Store(true)
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.closeDoneChanLocked()
	err := srv.closeListenersLocked()
	for c := range srv.activeConn {
		c.rwc.Close()
		delete(srv.activeConn, c)
	}
	return err
}

func (srv *Server) getDoneChan() <-chan struct{} {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.getDoneChanLocked()
}

func (srv *Server) getDoneChanLocked() chan struct{} {
	if srv.doneChan == nil {
		srv.doneChan = make(chan struct{})
	}
	return srv.doneChan
}

func (srv *Server) closeDoneChanLocked() {
	ch := srv.getDoneChanLocked()
	select {
	case <-ch:
		// Already closed. Don't close again.
	default:
		// Safe to close here. We're the only closer, guarded
		// by s.mu.
		close(ch)
	}
}

func (srv *Server) logger() *slog.Logger {
	if srv.Logger != nil {
		return srv.Logger
	}
	return slog.Default()
}

func (srv *Server) maxBodyBytes() int {
	switch {
	case srv.MaxBodyBytes > 0:
		return srv.MaxBodyBytes
	case srv.MaxBodyBytes < 0:
		return 0
	}
	return DefaultMaxBodyBytes
}

func (srv *Server) idleTimeout() time.Duration {
	if srv.IdleTimeout != 0 {
		return srv.IdleTimeout
	}
	return srv.ReadTimeout
}

func (srv *Server) readHeaderTimeout() time.Duration {
	if srv.ReadHeaderTimeout != 0 {
		return srv.ReadHeaderTimeout
	}
	return srv.ReadTimeout
}

// onceCloseListener wraps a net.Listener, protecting it from
// multiple Close calls.
type onceCloseListener struct {
	net.Listener
	once     sync.Once
	closeErr error
}

func (oc *onceCloseListener) Close() error {
	oc.once.Do(oc.close)
	return oc.closeErr
}

func (oc *onceCloseListener) close() { oc.closeErr = oc.Listener.Close() }
