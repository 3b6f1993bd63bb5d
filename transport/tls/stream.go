// Package tls implements adapter.SecureTransport over crypto/tls.
package tls

import (
	"crypto/tls"

	"github.com/twnesss/maybetls/adapter"
	"github.com/twnesss/maybetls/common/reactor"
)

var _ adapter.SecureTransport = (*Stream)(nil)

// Stream layers a TLS session over a raw transport. The tls.Conn is created
// lazily so an outbound Stream can be constructed before its transport has
// connected.
type Stream struct {
	loop   *reactor.Loop
	next   adapter.Transport
	config *tls.Config
	client bool
	conn   *tls.Conn
}

func NewClient(loop *reactor.Loop, next adapter.Transport, config *tls.Config) *Stream {
	return &Stream{loop: loop, next: next, config: config, client: true}
}

func NewServer(loop *reactor.Loop, next adapter.Transport, config *tls.Config) *Stream {
	return &Stream{loop: loop, next: next, config: config}
}

func (s *Stream) NextLayer() adapter.Transport {
	return s.next
}

func (s *Stream) tlsConn() *tls.Conn {
	if s.conn == nil {
		if s.client {
			s.conn = tls.Client(s.next.NetConn(), s.config)
		} else {
			s.conn = tls.Server(s.next.NetConn(), s.config)
		}
	}
	return s.conn
}

func (s *Stream) AsyncHandshake(handler adapter.ErrorHandler) {
	conn := s.tlsConn()
	go func() {
		err := conn.Handshake()
		s.loop.Post(func() {
			handler(err)
		})
	}()
}

func (s *Stream) AsyncShutdown(handler adapter.ErrorHandler) {
	conn := s.tlsConn()
	go func() {
		// sends the close_notify alert
		err := conn.CloseWrite()
		s.loop.Post(func() {
			handler(err)
		})
	}()
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.tlsConn().Read(p)
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.tlsConn().Write(p)
}

func (s *Stream) AsyncRead(p []byte, handler adapter.ReadHandler) {
	conn := s.tlsConn()
	go func() {
		n, err := conn.Read(p)
		s.loop.Post(func() {
			handler(n, err)
		})
	}()
}

func (s *Stream) AsyncWrite(p []byte, handler adapter.WriteHandler) {
	conn := s.tlsConn()
	go func() {
		n, err := conn.Write(p)
		s.loop.Post(func() {
			handler(n, err)
		})
	}()
}

// BufferedDecrypted reports decrypted bytes held back from the reader.
// crypto/tls does not expose its record buffer, so for a live session this is
// always zero; the byte cached by the adaptor's small-buffer workaround is
// accounted for by the adaptor itself.
func (s *Stream) BufferedDecrypted() int {
	return 0
}

func (s *Stream) Upstream() any {
	return s.next
}
