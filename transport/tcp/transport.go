// Package tcp implements adapter.Transport over a TCP socket.
package tcp

import (
	"errors"
	"net"

	"github.com/twnesss/maybetls/adapter"
	"github.com/twnesss/maybetls/common/reactor"

	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"

	"golang.org/x/sys/unix"
)

var _ adapter.Transport = (*Transport)(nil)

var ErrNotConnected = E.New("tcp: not connected")

// Transport drives a *net.TCPConn with completion handlers delivered on a
// reactor loop. Synchronous calls and state access happen on the loop
// goroutine; blocking operations run on short-lived goroutines and post their
// completions back.
type Transport struct {
	loop *reactor.Loop
	conn *net.TCPConn
}

// New wraps an accepted or already dialed connection.
func New(loop *reactor.Loop, conn *net.TCPConn) *Transport {
	return &Transport{loop: loop, conn: conn}
}

// NewOutbound creates a disconnected transport; AsyncConnect installs the
// connection.
func NewOutbound(loop *reactor.Loop) *Transport {
	return &Transport{loop: loop}
}

func (t *Transport) AsyncConnect(destination M.Socksaddr, handler adapter.ErrorHandler) {
	go func() {
		conn, err := net.Dial("tcp", destination.String())
		t.loop.Post(func() {
			if err != nil {
				handler(err)
				return
			}
			tcpConn, isTCP := conn.(*net.TCPConn)
			if !isTCP {
				conn.Close()
				handler(E.New("tcp: unexpected connection type ", destination))
				return
			}
			t.conn = tcpConn
			handler(nil)
		})
	}()
}

func (t *Transport) Read(p []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	return t.conn.Read(p)
}

func (t *Transport) Write(p []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	return t.conn.Write(p)
}

func (t *Transport) AsyncRead(p []byte, handler adapter.ReadHandler) {
	conn := t.conn
	if conn == nil {
		handler(0, ErrNotConnected)
		return
	}
	go func() {
		n, err := conn.Read(p)
		t.loop.Post(func() {
			handler(n, err)
		})
	}()
}

func (t *Transport) AsyncWrite(p []byte, handler adapter.WriteHandler) {
	conn := t.conn
	if conn == nil {
		handler(0, ErrNotConnected)
		return
	}
	go func() {
		n, err := conn.Write(p)
		t.loop.Post(func() {
			handler(n, err)
		})
	}()
}

func (t *Transport) AsyncWaitRead(handler adapter.ReadHandler) {
	conn := t.conn
	if conn == nil {
		handler(0, ErrNotConnected)
		return
	}
	rawConn, err := conn.SyscallConn()
	if err != nil {
		handler(0, err)
		return
	}
	go func() {
		first := true
		waitErr := rawConn.Read(func(fd uintptr) bool {
			// first invocation parks until the socket is readable
			if first {
				first = false
				return false
			}
			return true
		})
		t.loop.Post(func() {
			handler(0, waitErr)
		})
	}()
}

func (t *Transport) ShutdownReceive() error {
	if t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.CloseRead()
}

func (t *Transport) Shutdown() error {
	if t.conn == nil {
		return ErrNotConnected
	}
	return E.Errors(
		ignoreDisconnected(t.conn.CloseWrite()),
		ignoreDisconnected(t.conn.CloseRead()),
	)
}

// ignoreDisconnected drops ENOTCONN: shutting down a connection the peer has
// already torn down is not a failure.
func ignoreDisconnected(err error) error {
	if err != nil && errors.Is(err, unix.ENOTCONN) {
		return nil
	}
	return err
}

func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *Transport) LocalEndpoint() (M.Socksaddr, error) {
	if t.conn == nil {
		return M.Socksaddr{}, ErrNotConnected
	}
	return M.SocksaddrFromNet(t.conn.LocalAddr()), nil
}

func (t *Transport) RemoteEndpoint() (M.Socksaddr, error) {
	if t.conn == nil {
		return M.Socksaddr{}, ErrNotConnected
	}
	return M.SocksaddrFromNet(t.conn.RemoteAddr()), nil
}

func (t *Transport) Available() (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	rawConn, err := t.conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var (
		available int
		ctlErr    error
	)
	err = rawConn.Control(func(fd uintptr) {
		available, ctlErr = unix.IoctlGetInt(int(fd), ioctlReadable)
	})
	if err != nil {
		return 0, err
	}
	return available, ctlErr
}

func (t *Transport) SetNonBlocking(enabled bool) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	rawConn, err := t.conn.SyscallConn()
	if err != nil {
		return err
	}
	var ctlErr error
	err = rawConn.Control(func(fd uintptr) {
		ctlErr = unix.SetNonblock(int(fd), enabled)
	})
	if err != nil {
		return err
	}
	return ctlErr
}

func (t *Transport) SetNoDelay(enabled bool) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.SetNoDelay(enabled)
}

func (t *Transport) SetKeepAlive(enabled bool) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.SetKeepAlive(enabled)
}

func (t *Transport) NetConn() net.Conn {
	if t.conn == nil {
		return nil
	}
	return t.conn
}

func (t *Transport) Upstream() any {
	return t.conn
}
