package adapter

import (
	"net"
	"time"

	M "github.com/sagernet/sing/common/metadata"
)

// Completion handlers are always invoked from the reactor loop that owns the
// connection, never inline from another goroutine.
type (
	ErrorHandler func(err error)
	ReadHandler  func(n int, err error)
	WriteHandler func(n int, err error)
)

// Transport is a raw bidirectional byte stream, typically a TCP socket.
// All failures are reported as returned errors or handler arguments.
type Transport interface {
	AsyncConnect(destination M.Socksaddr, handler ErrorHandler)
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	AsyncRead(p []byte, handler ReadHandler)
	AsyncWrite(p []byte, handler WriteHandler)

	// AsyncWaitRead completes with (0, nil) once the transport is readable
	// without consuming any data.
	AsyncWaitRead(handler ReadHandler)

	ShutdownReceive() error
	Shutdown() error
	Close() error

	LocalEndpoint() (M.Socksaddr, error)
	RemoteEndpoint() (M.Socksaddr, error)

	// Available reports the number of bytes readable without blocking.
	Available() (int, error)

	SetNonBlocking(enabled bool) error
	SetNoDelay(enabled bool) error
	SetKeepAlive(enabled bool) error

	NetConn() net.Conn
}

// SecureTransport is an encrypted stream layered over a Transport.
type SecureTransport interface {
	NextLayer() Transport

	AsyncHandshake(handler ErrorHandler)

	// AsyncShutdown sends the close notification for the encrypted layer.
	AsyncShutdown(handler ErrorHandler)

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	AsyncRead(p []byte, handler ReadHandler)
	AsyncWrite(p []byte, handler WriteHandler)

	// BufferedDecrypted reports bytes already decrypted but not yet
	// delivered to a reader.
	BufferedDecrypted() int
}

// Intercept replaces the full operation set of an adaptor for deterministic
// tests. When installed, every adaptor operation delegates here and the
// adaptor's own transport, quota and timer state stays inert.
type Intercept interface {
	SetSecure(secured bool)
	SetDefaultOptions() error
	AsyncConnect(destination M.Socksaddr, handler ErrorHandler)
	AsyncHandshake(handler ErrorHandler)
	AsyncShutdown(handler ErrorHandler)
	AsyncWrite(p []byte, handler WriteHandler)
	Read(p []byte) (int, error)
	AsyncReadReady(handler ReadHandler)
	Available() (int, error)
	LocalEndpoint() (M.Socksaddr, error)
	RemoteEndpoint() (M.Socksaddr, error)
	Close() error
}

// Timer is a cancelable deferred execution handle. Waiters canceled before
// expiry complete with a non-nil error.
type Timer interface {
	ExpiresAfter(d time.Duration)
	ExpiresAt(t time.Time)
	Expiry() time.Time
	AsyncWait(handler ErrorHandler)
	Cancel()
}
