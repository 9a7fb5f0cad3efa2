/*
NAME
  netutil.go

DESCRIPTION
  Socket tuning helpers shared by the sender's client session (§4.3) and
  the receiver client (§4.7): TCP_NODELAY, read timeouts, send/receive
  buffer sizing, and loopback-peer detection for the sender's
  self-connectivity probe (§4.4).
*/

package netutil

import (
	"errors"
	"net"
	"strings"
	"time"
)

// TuneSourceSession applies the per-client socket settings §4.3 requires
// on accept: TCP_NODELAY and a 5s read timeout. The write-side buffer size
// is applied separately via SetSendBuffer since it's only meaningful for
// *net.TCPConn.
func TuneSourceSession(conn net.Conn, readTimeout time.Duration) error {
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			return err
		}
	}
	return conn.SetReadDeadline(time.Now().Add(readTimeout))
}

// SetSendBuffer sets conn's kernel send buffer size, best-effort (§4.3:
// "a send buffer of 512 KiB").
func SetSendBuffer(conn net.Conn, bytes int) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetWriteBuffer(bytes)
}

// SetRecvBuffer sets conn's kernel receive buffer size, best-effort (§4.7:
// "1 MiB receive buffer").
func SetRecvBuffer(conn net.Conn, bytes int) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetReadBuffer(bytes)
}

// TuneReceiverConn applies the receiver-side socket settings §4.7
// requires: TCP_NODELAY and a 5s read timeout.
func TuneReceiverConn(conn net.Conn, readTimeout time.Duration) error {
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			return err
		}
	}
	return conn.SetReadDeadline(time.Now().Add(readTimeout))
}

// IsLoopback reports whether addr's IP is a loopback address, used by the
// sender's client session to reject its own self-connectivity probe (§4.3,
// §4.4).
func IsLoopback(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsDisconnect classifies an I/O error as the disconnection class §7
// defines for session eviction: broken pipe, connection reset, or use of
// an already-closed socket.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "use of closed network connection")
}
