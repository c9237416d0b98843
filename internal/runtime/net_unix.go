//go:build unix

package runtime

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/flockgroup/flock/internal/runtime/debug"
)

// UnixTransport dials/listens on unix domain sockets, grounded on the
// teacher's internal/rpc client/server socket handling
// (TryConnectWithTimeout, Server.Start's net.Listen("unix", ...)).
type UnixTransport struct{}

var _ Transport = UnixTransport{}

func (UnixTransport) Listen(_ context.Context, addr string) (Listener, error) {
	ln, err := net.Listen("unix", addr)
	if err != nil {
		return nil, err
	}
	return &unixListener{ln: ln}, nil
}

func (UnixTransport) Dial(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", addr)
	if err != nil {
		if debug.Enabled() {
			fmt.Fprintf(os.Stderr, "runtime: unix dial %s failed: %v\n", addr, err)
		}
		return nil, err
	}
	return &unixConn{Conn: conn}, nil
}

type unixListener struct {
	ln net.Listener
}

func (l *unixListener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return &unixConn{Conn: c}, nil
}

func (l *unixListener) Close() error { return l.ln.Close() }
func (l *unixListener) Addr() string { return l.ln.Addr().String() }

type unixConn struct {
	net.Conn
}

func (c *unixConn) RemoteAddr() string { return c.Conn.RemoteAddr().String() }

// TCPTransport is a drop-in alternative for deployments where members
// live on different hosts; the SWIM/centralized backends are agnostic
// to which Transport they're handed.
type TCPTransport struct{}

var _ Transport = TCPTransport{}

func (TCPTransport) Listen(_ context.Context, addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &unixListener{ln: ln}, nil
}

func (TCPTransport) Dial(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &unixConn{Conn: conn}, nil
}
