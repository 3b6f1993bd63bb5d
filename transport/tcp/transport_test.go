package tcp

import (
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/twnesss/maybetls/common/reactor"

	M "github.com/sagernet/sing/common/metadata"

	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func testPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan *net.TCPConn, 1)
	go func() {
		conn, aErr := listener.Accept()
		if aErr != nil {
			return
		}
		accepted <- conn.(*net.TCPConn)
	}()

	client, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	server := <-accepted
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client.(*net.TCPConn), server
}

func testLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	loop := reactor.New()
	go loop.Run()
	t.Cleanup(func() { loop.Close() })
	return loop
}

func TestReadWrite(t *testing.T) {
	t.Parallel()
	client, server := testPair(t)
	loop := testLoop(t)
	transport := New(loop, server)

	_, err := client.Write([]byte("ping"))
	require.NoError(t, err)

	buffer := make([]byte, 16)
	n, err := transport.Read(buffer)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), buffer[:n])

	n, err = transport.Write([]byte("pong"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = client.Read(buffer)
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), buffer[:n])
}

func TestAsyncWaitRead(t *testing.T) {
	t.Parallel()
	client, server := testPair(t)
	loop := testLoop(t)
	transport := New(loop, server)

	ready := make(chan error, 1)
	loop.Post(func() {
		transport.AsyncWaitRead(func(n int, err error) {
			ready <- err
		})
	})

	select {
	case <-ready:
		t.Fatal("readiness reported with no data pending")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := client.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case err := <-ready:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("readiness not reported after write")
	}

	// the wait must not have consumed the byte
	available, err := transport.Available()
	require.NoError(t, err)
	require.Equal(t, 1, available)
}

func TestAvailable(t *testing.T) {
	t.Parallel()
	client, server := testPair(t)
	loop := testLoop(t)
	transport := New(loop, server)

	available, err := transport.Available()
	require.NoError(t, err)
	require.Zero(t, available)

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		available, err = transport.Available()
		return err == nil && available == 5
	}, time.Second, 10*time.Millisecond)
}

func TestEndpoints(t *testing.T) {
	t.Parallel()
	client, server := testPair(t)
	loop := testLoop(t)
	transport := New(loop, server)

	local, err := transport.LocalEndpoint()
	require.NoError(t, err)
	require.Equal(t, M.SocksaddrFromNet(server.LocalAddr()), local)

	remote, err := transport.RemoteEndpoint()
	require.NoError(t, err)
	require.Equal(t, M.SocksaddrFromNet(client.LocalAddr()), remote)
}

func TestOptions(t *testing.T) {
	t.Parallel()
	_, server := testPair(t)
	loop := testLoop(t)
	transport := New(loop, server)

	require.NoError(t, transport.SetNonBlocking(true))
	require.NoError(t, transport.SetNoDelay(true))
	require.NoError(t, transport.SetKeepAlive(true))
}

func TestShutdownReceive(t *testing.T) {
	t.Parallel()
	client, server := testPair(t)
	loop := testLoop(t)
	transport := New(loop, server)

	require.NoError(t, transport.ShutdownReceive())

	// writes still flow after a receive half-close
	_, err := transport.Write([]byte("late"))
	require.NoError(t, err)
	buffer := make([]byte, 8)
	n, err := client.Read(buffer)
	require.NoError(t, err)
	require.Equal(t, []byte("late"), buffer[:n])
}

func TestShutdownToleratesDisconnectedPeer(t *testing.T) {
	t.Parallel()
	// shutdown(2) reports ENOTCONN once the peer has fully torn the
	// connection down; the connection being down is the goal, not an error
	notConnected := &net.OpError{
		Op:  "shutdown",
		Net: "tcp",
		Err: os.NewSyscallError("shutdown", unix.ENOTCONN),
	}
	require.NoError(t, ignoreDisconnected(notConnected))
	require.NoError(t, ignoreDisconnected(nil))
	require.ErrorIs(t, ignoreDisconnected(io.ErrClosedPipe), io.ErrClosedPipe)
}

func TestAsyncConnect(t *testing.T) {
	t.Parallel()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		conn, aErr := listener.Accept()
		if aErr == nil {
			conn.Write([]byte("hi"))
			conn.Close()
		}
	}()

	loop := testLoop(t)
	transport := NewOutbound(loop)
	destination := M.SocksaddrFromNet(listener.Addr())

	connected := make(chan error, 1)
	loop.Post(func() {
		transport.AsyncConnect(destination, func(err error) {
			connected <- err
		})
	})
	require.NoError(t, <-connected)

	buffer := make([]byte, 4)
	n, err := transport.Read(buffer)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), buffer[:n])
}

func TestDisconnectedErrors(t *testing.T) {
	t.Parallel()
	loop := testLoop(t)
	transport := NewOutbound(loop)

	_, err := transport.Read(nil)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = transport.Available()
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = transport.LocalEndpoint()
	require.ErrorIs(t, err, ErrNotConnected)
	require.Nil(t, transport.NetConn())
	require.NoError(t, transport.Close())
}
