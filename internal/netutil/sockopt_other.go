//go:build !unix

package netutil

import "net"

// EffectiveSendBuffer is unsupported outside unix and always returns -1,
// meaning "unknown".
func EffectiveSendBuffer(conn net.Conn) int { return -1 }

// EffectiveRecvBuffer is unsupported outside unix.
func EffectiveRecvBuffer(conn net.Conn) int { return -1 }
