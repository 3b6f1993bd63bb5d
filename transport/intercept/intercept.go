// Package intercept provides a scripted in-memory replacement for the full
// stream operation set, letting session-level tests run without sockets or
// TLS.
package intercept

import (
	"io"

	"github.com/twnesss/maybetls/adapter"

	"github.com/sagernet/sing/common/buf"
	M "github.com/sagernet/sing/common/metadata"
)

var _ adapter.Intercept = (*Stream)(nil)

// Stream answers every operation from queued script state and records the
// calls it saw. Reads drain the enqueued data; an enqueued error is returned
// once the data is exhausted, then reads report io.EOF.
type Stream struct {
	secured     bool
	optionsSet  bool
	closed      bool
	readData    *buf.Buffer
	readErr     error
	writeErr    error
	written     *buf.Buffer
	handshook   bool
	handshakeIn error
	shutdownIn  error
	local       M.Socksaddr
	remote      M.Socksaddr
	calls       []string
}

func New() *Stream {
	return &Stream{
		readData: buf.New(),
		written:  buf.New(),
	}
}

// EnqueueRead appends data to be served by Read.
func (s *Stream) EnqueueRead(data []byte) {
	s.readData.Write(data)
}

// FailReads makes reads return err once the enqueued data is drained.
func (s *Stream) FailReads(err error) {
	s.readErr = err
}

func (s *Stream) FailWrites(err error) {
	s.writeErr = err
}

func (s *Stream) FailHandshake(err error) {
	s.handshakeIn = err
}

func (s *Stream) FailShutdown(err error) {
	s.shutdownIn = err
}

func (s *Stream) SetEndpoints(local M.Socksaddr, remote M.Socksaddr) {
	s.local = local
	s.remote = remote
}

func (s *Stream) Written() []byte {
	return s.written.Bytes()
}

func (s *Stream) Secured() bool {
	return s.secured
}

func (s *Stream) OptionsSet() bool {
	return s.optionsSet
}

func (s *Stream) Handshook() bool {
	return s.handshook
}

func (s *Stream) Closed() bool {
	return s.closed
}

// Calls returns the operation names invoked so far, in order.
func (s *Stream) Calls() []string {
	return s.calls
}

func (s *Stream) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *Stream) SetSecure(secured bool) {
	s.record("set_secure")
	s.secured = secured
}

func (s *Stream) SetDefaultOptions() error {
	s.record("set_default_options")
	s.optionsSet = true
	return nil
}

func (s *Stream) AsyncConnect(_ M.Socksaddr, handler adapter.ErrorHandler) {
	s.record("async_connect")
	handler(nil)
}

func (s *Stream) AsyncHandshake(handler adapter.ErrorHandler) {
	s.record("async_handshake")
	if s.handshakeIn == nil {
		s.handshook = true
	}
	handler(s.handshakeIn)
}

func (s *Stream) AsyncShutdown(handler adapter.ErrorHandler) {
	s.record("async_shutdown")
	handler(s.shutdownIn)
}

func (s *Stream) AsyncWrite(p []byte, handler adapter.WriteHandler) {
	s.record("async_write")
	if s.writeErr != nil {
		handler(0, s.writeErr)
		return
	}
	s.written.Write(p)
	handler(len(p), nil)
}

func (s *Stream) Read(p []byte) (int, error) {
	s.record("read")
	if s.readData.Len() > 0 {
		return s.readData.Read(p)
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	return 0, io.EOF
}

func (s *Stream) AsyncReadReady(handler adapter.ReadHandler) {
	s.record("async_read_ready")
	if s.readData.Len() == 0 && s.readErr != nil {
		handler(0, s.readErr)
		return
	}
	handler(0, nil)
}

func (s *Stream) Available() (int, error) {
	s.record("available")
	return s.readData.Len(), nil
}

func (s *Stream) LocalEndpoint() (M.Socksaddr, error) {
	s.record("local_endpoint")
	return s.local, nil
}

func (s *Stream) RemoteEndpoint() (M.Socksaddr, error) {
	s.record("remote_endpoint")
	return s.remote, nil
}

func (s *Stream) Close() error {
	s.record("close")
	s.closed = true
	return nil
}
