package session

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ausocean/omt/omt"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

// dial returns a connected (server, client) *net.TCPConn pair over real
// loopback sockets. Accept rejects the server side as a loopback peer
// unless it is wrapped in remotePeer first.
func dial(t *testing.T) (server, client *net.TCPConn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()

	c, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	s := <-accepted
	if s == nil {
		t.Fatalf("accept failed")
	}
	return s.(*net.TCPConn), c.(*net.TCPConn)
}

// remotePeer wraps a loopback server-side connection so that it reports a
// non-loopback remote address, letting Accept treat it as a real client
// instead of the sender's self-connectivity probe.
type remotePeer struct {
	*net.TCPConn
}

func (remotePeer) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 50000}
}

func readFrame(t *testing.T, conn net.Conn) (typ uint8, payload []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, _, payload, _, err := omt.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return typ, payload
}

func TestAcceptRejectsLoopbackPeer(t *testing.T) {
	srv, cli := dial(t)
	defer cli.Close()

	// srv's RemoteAddr is cli's loopback local address, so Accept must
	// reject it as the sender's own self-connectivity probe (§4.4).
	_, err := Accept(srv, "", &dumbLogger{})
	if err != ErrLoopback {
		t.Fatalf("got %v, want ErrLoopback", err)
	}
}

func TestAcceptSendsHandshake(t *testing.T) {
	srv, cli := dial(t)
	defer cli.Close()

	done := make(chan *Session, 1)
	go func() {
		s, err := Accept(remotePeer{srv}, `ProductName="omt-go"`, &dumbLogger{})
		if err != nil {
			t.Errorf("Accept: %v", err)
		}
		done <- s
	}()

	typ, payload := readFrame(t, cli)
	if typ != omt.TypeMetadata {
		t.Fatalf("first frame type = %d, want TypeMetadata", typ)
	}
	text := omt.TrimPadding(payload)
	if !bytes.Contains([]byte(text), []byte("OMTInfo")) {
		t.Fatalf("expected OMTInfo, got %q", text)
	}

	typ, payload = readFrame(t, cli)
	if typ != omt.TypeMetadata {
		t.Fatalf("second frame type = %d, want TypeMetadata", typ)
	}
	text = omt.TrimPadding(payload)
	if !omt.IsTally(text) {
		t.Fatalf("expected initial OMTTally, got %q", text)
	}

	s := <-done
	if s == nil {
		t.Fatalf("Accept returned nil session")
	}
	s.Close()
}

// TestWriteFrameAtomicity is the testable property of §8: with two
// concurrent writers on one session, the byte stream observed by the peer
// is a valid concatenation of complete frames — no interleaving mid-frame.
func TestWriteFrameAtomicity(t *testing.T) {
	srv, cli := dial(t)
	defer cli.Close()

	s, err := Accept(remotePeer{srv}, "", &dumbLogger{})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer s.Close()

	// Drain the two handshake frames before the concurrency test begins.
	readFrame(t, cli)
	readFrame(t, cli)

	const perWriter = 50
	var wg sync.WaitGroup
	payloads := [][]byte{
		bytes.Repeat([]byte("A"), 37),
		bytes.Repeat([]byte("B"), 53),
	}
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.WriteFrame(omt.TypeMetadata, 0, nil, p)
			}
		}(p)
	}
	wg.Wait()

	seenA, seenB := 0, 0
	for i := 0; i < perWriter*2; i++ {
		typ, payload := readFrame(t, cli)
		if typ != omt.TypeMetadata {
			t.Fatalf("frame %d: type = %d, want TypeMetadata", i, typ)
		}
		text := omt.TrimPadding(payload)
		switch {
		case bytes.Equal([]byte(text), payloads[0]):
			seenA++
		case bytes.Equal([]byte(text), payloads[1]):
			seenB++
		default:
			t.Fatalf("frame %d: corrupted/interleaved payload %q", i, text)
		}
	}
	if seenA != perWriter || seenB != perWriter {
		t.Fatalf("seenA=%d seenB=%d, want %d each", seenA, seenB, perWriter)
	}
}

func TestSubscriptionTransitionsAndPostAudioTally(t *testing.T) {
	srv, cli := dial(t)
	defer cli.Close()

	s, err := Accept(remotePeer{srv}, "", &dumbLogger{})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	readFrame(t, cli) // OMTInfo
	readFrame(t, cli) // initial OMTTally

	var running atomic.Bool
	running.Store(true)
	go s.ReadLoop(&running)

	if s.SubscribedVideo() || s.SubscribedAudio() {
		t.Fatalf("expected no subscriptions before any client message")
	}

	if err := omt.WriteFrame(cli, omt.TypeMetadata, 0, nil, []byte(omt.TokenSubscribeVideo)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	waitUntil(t, func() bool { return s.SubscribedVideo() })
	if s.SubscribedAudio() {
		t.Fatalf("audio should not be subscribed yet")
	}

	if err := omt.WriteFrame(cli, omt.TypeMetadata, 0, nil, []byte(omt.TokenSubscribeAudio)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	waitUntil(t, func() bool { return s.SubscribedAudio() })

	// The audio subscription must trigger a fresh tally (§4.3) so the
	// peer doesn't tear down the idle audio subchannel.
	typ, payload := readFrame(t, cli)
	if typ != omt.TypeMetadata || !omt.IsTally(omt.TrimPadding(payload)) {
		t.Fatalf("expected a tally frame to follow audio subscription, got type=%d payload=%q", typ, payload)
	}

	running.Store(false)
	s.Close()
}

func TestReadLoopEvictsOnDisconnect(t *testing.T) {
	srv, cli := dial(t)

	s, err := Accept(remotePeer{srv}, "", &dumbLogger{})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	readFrame(t, cli)
	readFrame(t, cli)

	var running atomic.Bool
	running.Store(true)
	loopDone := make(chan struct{})
	go func() {
		s.ReadLoop(&running)
		close(loopDone)
	}()

	cli.Close()

	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("ReadLoop did not return after peer disconnect")
	}
	if !s.Closed() {
		t.Fatalf("expected session to be evicted after peer disconnect")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within timeout")
}
