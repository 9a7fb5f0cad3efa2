//go:build unix

/*
DESCRIPTION
  sockopt_unix.go reads back the kernel's actual SO_SNDBUF/SO_RCVBUF after
  SetSendBuffer/SetRecvBuffer, since the Go runtime doubles the requested
  value on Linux and callers that log the effective buffer size (§4.3,
  §4.7) want the real number, not the requested one.
*/

package netutil

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// EffectiveSendBuffer returns the kernel's current SO_SNDBUF for conn, or
// -1 if conn is not backed by a raw file descriptor.
func EffectiveSendBuffer(conn net.Conn) int {
	return getsockoptInt(conn, unix.SOL_SOCKET, unix.SO_SNDBUF)
}

// EffectiveRecvBuffer returns the kernel's current SO_RCVBUF for conn, or
// -1 if conn is not backed by a raw file descriptor.
func EffectiveRecvBuffer(conn net.Conn) int {
	return getsockoptInt(conn, unix.SOL_SOCKET, unix.SO_RCVBUF)
}

func getsockoptInt(conn net.Conn, level, opt int) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}
	var value int
	var controlErr error
	err = raw.Control(func(fd uintptr) {
		value, controlErr = unix.GetsockoptInt(int(fd), level, opt)
	})
	if err != nil || controlErr != nil {
		return -1
	}
	return value
}
