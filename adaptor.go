// Package maybetls presents one stream interface over a connection that may
// or may not be TLS-wrapped, while enforcing a per-connection read rate
// budget and a separate read rate alarm.
package maybetls

import (
	"github.com/twnesss/maybetls/adapter"
	"github.com/twnesss/maybetls/common/ratequota"
	"github.com/twnesss/maybetls/common/reactor"
	C "github.com/twnesss/maybetls/constant"

	"github.com/sagernet/sing/common/logger"
	M "github.com/sagernet/sing/common/metadata"
)

// Adaptor wraps a secure stream and its raw transport behind a single
// operation set. Whether an operation acts on the encrypted layer or the raw
// socket depends on the secured flag and on whether a handshake has been
// issued; reads are additionally throttled against a per-second byte budget.
//
// All methods except SetReadRateLimit and SetReadRateAlarm must be called
// from the reactor loop goroutine.
type Adaptor struct {
	loop      *reactor.Loop
	logger    logger.ContextLogger
	intercept adapter.Intercept
	stream    adapter.SecureTransport
	secured   bool
	handshook bool

	pendingByte    byte
	pendingByteSet bool
	scratch        [1]byte

	readQuota  ratequota.Quota
	alarmQuota ratequota.Quota

	timer        adapter.Timer
	timerStarted bool
	alarmed      bool
	live         bool
}

func NewAdaptor(loop *reactor.Loop, logger logger.ContextLogger, stream adapter.SecureTransport, secured bool) *Adaptor {
	return &Adaptor{
		loop:    loop,
		logger:  logger,
		stream:  stream,
		secured: secured,
		timer:   reactor.NewTimer(loop),
		live:    true,
	}
}

// NewInterceptAdaptor builds an adaptor whose every operation is delegated to
// the intercept; the transport, quota and timer machinery stays inert.
func NewInterceptAdaptor(loop *reactor.Loop, logger logger.ContextLogger, intercept adapter.Intercept, secured bool) *Adaptor {
	return &Adaptor{
		loop:      loop,
		logger:    logger,
		intercept: intercept,
		secured:   secured,
		timer:     reactor.NewTimer(loop),
		live:      true,
	}
}

// Socket exposes the raw transport under the encrypted layer. An
// intercept-backed adaptor has no real transport, so Socket returns nil.
func (a *Adaptor) Socket() adapter.Transport {
	if a.stream == nil {
		return nil
	}
	return a.stream.NextLayer()
}

func (a *Adaptor) SetSecure(secured bool) {
	if a.intercept != nil {
		a.intercept.SetSecure(secured)
		return
	}
	a.secured = secured
}

// SetDefaultOptions switches the raw socket to non-blocking mode and enables
// no-delay and keep-alive. The first failure is logged and aborts the rest.
func (a *Adaptor) SetDefaultOptions() error {
	if a.intercept != nil {
		return a.intercept.SetDefaultOptions()
	}
	socket := a.stream.NextLayer()
	if err := socket.SetNonBlocking(true); err != nil {
		a.logger.Trace("setting non-blocking on socket: ", err)
		return err
	}
	if err := socket.SetNoDelay(true); err != nil {
		a.logger.Trace("setting no-delay on socket: ", err)
		return err
	}
	if err := socket.SetKeepAlive(true); err != nil {
		a.logger.Trace("setting keep-alive on socket: ", err)
		return err
	}
	return nil
}

// SetReadRateLimit installs the hard per-second read budget. Safe to call
// from a control plane goroutine.
func (a *Adaptor) SetReadRateLimit(bytesPerSecond uint64) {
	a.readQuota.SetQuota(bytesPerSecond)
}

// SetReadRateAlarm installs the soft per-second budget that only raises an
// alarm log line. Safe to call from a control plane goroutine.
func (a *Adaptor) SetReadRateAlarm(bytesPerSecond uint64) {
	a.alarmQuota.SetQuota(bytesPerSecond)
}

func (a *Adaptor) RemoteEndpoint() (M.Socksaddr, error) {
	if a.intercept != nil {
		return a.intercept.RemoteEndpoint()
	}
	return a.stream.NextLayer().RemoteEndpoint()
}

func (a *Adaptor) LocalEndpoint() (M.Socksaddr, error) {
	if a.intercept != nil {
		return a.intercept.LocalEndpoint()
	}
	return a.stream.NextLayer().LocalEndpoint()
}

// Close cancels the refresh timer, marks the adaptor dead for any callbacks
// still in flight, and closes the raw transport.
func (a *Adaptor) Close() error {
	a.timer.Cancel()
	a.live = false
	if a.intercept != nil {
		return a.intercept.Close()
	}
	return a.stream.NextLayer().Close()
}

// Available reports the immediately readable byte count. On a secure,
// handshook connection that is the cached workaround byte plus whatever the
// encrypted layer has already decrypted; otherwise it is the raw socket's
// count.
func (a *Adaptor) Available() (int, error) {
	if a.intercept != nil {
		return a.intercept.Available()
	}
	if a.isSecure() {
		available := a.stream.BufferedDecrypted()
		if a.pendingByteSet {
			available++
		}
		return available, nil
	}
	return a.stream.NextLayer().Available()
}

func (a *Adaptor) AsyncConnect(destination M.Socksaddr, handler adapter.ErrorHandler) {
	if a.intercept != nil {
		a.intercept.AsyncConnect(destination, handler)
		return
	}
	a.stream.NextLayer().AsyncConnect(destination, handler)
}

// AsyncHandshake runs the TLS handshake when the connection is secured and
// completes immediately otherwise. Only the secured flag is consulted here:
// the handshake is what establishes the encrypted layer, so it must reach the
// stream even though handshook is still false. After this call all other
// operations route through the encrypted layer.
func (a *Adaptor) AsyncHandshake(handler adapter.ErrorHandler) {
	if a.intercept != nil {
		a.intercept.AsyncHandshake(handler)
		return
	}
	if a.secured {
		a.handshook = true
		a.stream.AsyncHandshake(handler)
		return
	}
	handler(nil)
}

// AsyncShutdown closes the connection down. A secured connection first
// half-closes the receive direction on the raw socket (best effort, avoids
// truncation errors) and then sends the encrypted layer's close notification.
// A plaintext connection has no asynchronous shutdown primitive, so both
// directions are shut down synchronously and the handler runs immediately.
func (a *Adaptor) AsyncShutdown(handler adapter.ErrorHandler) {
	if a.intercept != nil {
		a.intercept.AsyncShutdown(handler)
		return
	}
	if a.secured {
		if err := a.stream.NextLayer().ShutdownReceive(); err != nil {
			a.logger.Debug("shutting down receive direction: ", err)
		}
		a.stream.AsyncShutdown(handler)
		return
	}
	err := a.stream.NextLayer().Shutdown()
	handler(err)
}

func (a *Adaptor) AsyncWrite(p []byte, handler adapter.WriteHandler) {
	if a.intercept != nil {
		a.intercept.AsyncWrite(p, handler)
		return
	}
	if a.isSecure() {
		a.stream.AsyncWrite(p, handler)
		return
	}
	a.stream.NextLayer().AsyncWrite(p, handler)
}

// Read performs a synchronous read. On the secure path a byte cached by the
// small-buffer workaround is always delivered first, occupying position 0 of
// the caller's buffer.
func (a *Adaptor) Read(p []byte) (int, error) {
	if a.intercept != nil {
		return a.intercept.Read(p)
	}
	if a.isSecure() {
		if a.pendingByteSet && len(p) >= 1 {
			p[0] = a.pendingByte
			a.pendingByteSet = false

			// Top up only from bytes the encrypted layer already holds
			// decrypted; a wire read here could block the loop while the
			// cached byte is already forward progress.
			limit := a.stream.BufferedDecrypted()
			if limit > len(p)-1 {
				limit = len(p) - 1
			}
			if limit == 0 {
				a.recordReadUsage(1)
				return 1, nil
			}
			n, err := a.stream.Read(p[1 : 1+limit])
			if err != nil && n == 0 {
				// the cached byte is still forward progress, so this
				// read succeeds with one byte
				a.recordReadUsage(1)
				return 1, nil
			}
			a.recordReadUsage(1 + n)
			return 1 + n, err
		}
		n, err := a.stream.Read(p)
		a.recordReadUsage(n)
		return n, err
	}
	n, err := a.stream.NextLayer().Read(p)
	a.recordReadUsage(n)
	return n, err
}

// AsyncReadReady is the zero-length asynchronous read: it completes once data
// can be read without blocking. This is also where the read rate budget is
// enforced; an exhausted budget suspends the completion until the next quota
// refresh tick.
//
// The encrypted layer cannot perform a reliable zero-length speculative read,
// so the secure path reads one real byte into an internal scratch buffer and
// caches it for the next Read call.
func (a *Adaptor) AsyncReadReady(handler adapter.ReadHandler) {
	if a.intercept != nil {
		a.intercept.AsyncReadReady(handler)
		return
	}

	if !a.alarmed && a.alarmQuota.Remaining() == 0 {
		if a.timerStarted {
			a.logger.Info("read rate alarm: hit ", a.alarmQuota.Value(), " bytes/s")
			a.alarmed = true
		} else {
			// Quota hit but the refresh timer has never run, so the
			// usage has likely never been reset. Start the refresh
			// loop and only alarm if we hit the quota a second time.
			// The timer is shared between the alarm and the hard
			// limit.
			a.onTimer(nil)
		}
	}

	if a.readQuota.Remaining() == 0 {
		if a.timerStarted {
			a.timer.Cancel()
			a.timer.ExpiresAt(a.timer.Expiry())
			a.timer.AsyncWait(func(err error) {
				if err != nil {
					// canceled
					return
				}
				if !a.live {
					// fired after Close
					return
				}
				a.onTimer(nil)
				a.AsyncReadReady(handler)
			})
			return
		}
		// Same bootstrap as the alarm above: start resetting usage
		// regularly and only throttle on the next exhaustion.
		a.onTimer(nil)
	}

	if a.isSecure() {
		if a.pendingByteSet {
			// The reader has not collected the cached byte yet; issue
			// a genuinely empty read so the handler runs promptly.
			a.logger.Debug("read readiness requested before cached byte was consumed, completing immediately")
			a.stream.AsyncRead(a.scratch[:0], handler)
			return
		}
		a.stream.AsyncRead(a.scratch[:1], func(n int, err error) {
			if n != 0 {
				a.pendingByte = a.scratch[0]
				a.pendingByteSet = true
			}
			handler(n, err)
		})
		return
	}
	a.stream.NextLayer().AsyncWaitRead(handler)
}

func (a *Adaptor) isSecure() bool {
	// The handshook check exists because a proxy protocol header must be
	// written to the socket outside the TLS tunnel.
	return a.secured && a.handshook
}

func (a *Adaptor) onTimer(err error) {
	if err != nil {
		// canceled
		return
	}
	a.readQuota.Refresh()
	a.alarmQuota.Refresh()
	a.alarmed = false

	a.timer.ExpiresAfter(C.QuotaRefreshInterval)
	a.timer.AsyncWait(func(err error) {
		if !a.live {
			return
		}
		a.onTimer(err)
	})
	a.timerStarted = true
}

func (a *Adaptor) recordReadUsage(amount int) {
	a.readQuota.RecordUsage(amount)
	a.alarmQuota.RecordUsage(amount)
}
