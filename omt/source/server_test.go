package source

import (
	"net"
	"testing"

	"github.com/ausocean/omt/config"
)

// TestServerBindScansPortRange exercises §6.1's dynamic port selection:
// when the configured port is already taken, bind must fall through to
// the MinPort..MaxPort scan rather than failing outright.
func TestServerBindScansPortRange(t *testing.T) {
	taken, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()
	takenPort := taken.Addr().(*net.TCPAddr).Port

	s := &Server{cfg: config.Config{Port: takenPort}}
	l, port, err := s.bind()
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer l.Close()

	if port == takenPort {
		t.Fatalf("bind returned the already-taken port %d", takenPort)
	}
	if port < config.MinPort || port > config.MaxPort {
		t.Fatalf("bind returned port %d outside the dynamic range [%d,%d]", port, config.MinPort, config.MaxPort)
	}
}
