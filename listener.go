package maybetls

import (
	stdtls "crypto/tls"
	"net"

	"github.com/twnesss/maybetls/common/reactor"
	"github.com/twnesss/maybetls/option"
	"github.com/twnesss/maybetls/transport/tcp"
	sTLS "github.com/twnesss/maybetls/transport/tls"

	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"

	"github.com/gofrs/uuid/v5"
)

// Listener wraps a net.Listener and hands out configured adaptors, one per
// accepted connection.
type Listener struct {
	net.Listener
	loop      *reactor.Loop
	logger    logger.ContextLogger
	tlsConfig *stdtls.Config
	options   option.StreamOptions
}

func NewListener(loop *reactor.Loop, logger logger.ContextLogger, inner net.Listener, tlsConfig *stdtls.Config, options option.StreamOptions) *Listener {
	if tlsConfig == nil {
		tlsConfig = new(stdtls.Config)
	}
	return &Listener{
		Listener:  inner,
		loop:      loop,
		logger:    logger,
		tlsConfig: tlsConfig,
		options:   options,
	}
}

func (l *Listener) Accept() (*Adaptor, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	tcpConn, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		conn.Close()
		return nil, E.New("listener: unexpected connection type from ", conn.RemoteAddr())
	}
	connID, _ := uuid.NewV4()
	raw := tcp.New(l.loop, tcpConn)
	stream := sTLS.NewServer(l.loop, raw, l.tlsConfig)
	adaptor := NewAdaptor(l.loop, l.logger, stream, l.options.Secured)
	if err := adaptor.SetDefaultOptions(); err != nil {
		l.logger.Error(E.Cause(err, "set options for connection ", connID))
	}
	adaptor.SetReadRateLimit(l.options.ReadRateLimit)
	adaptor.SetReadRateAlarm(l.options.ReadRateAlarm)
	l.logger.Info("accepted connection ", connID, " from ", conn.RemoteAddr())
	return adaptor, nil
}

// NewOutboundAdaptor builds an adaptor around a not-yet-connected transport;
// the caller drives AsyncConnect and, for secured connections,
// AsyncHandshake.
func NewOutboundAdaptor(loop *reactor.Loop, logger logger.ContextLogger, tlsConfig *stdtls.Config, options option.StreamOptions) *Adaptor {
	if tlsConfig == nil {
		tlsConfig = new(stdtls.Config)
	}
	raw := tcp.NewOutbound(loop)
	stream := sTLS.NewClient(loop, raw, tlsConfig)
	adaptor := NewAdaptor(loop, logger, stream, options.Secured)
	adaptor.SetReadRateLimit(options.ReadRateLimit)
	adaptor.SetReadRateAlarm(options.ReadRateAlarm)
	return adaptor
}
