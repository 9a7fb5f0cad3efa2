/*
NAME
  session.go

DESCRIPTION
  session implements the sender-side client session (§4.3): per-client
  subscription state, accept-time socket setup and metadata handshake, the
  blocking reader loop, and the write-lock-guarded writer.

AUTHORS
  (module: github.com/ausocean/omt)
*/

package session

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ausocean/omt/internal/netutil"
	"github.com/ausocean/omt/omt"
	"github.com/ausocean/utils/logging"
)

const pkg = "session: "

// Accept-time socket tuning (§4.3).
const (
	ReadTimeout   = 5 * time.Second
	SendBufSize   = 512 << 10
	OutBufSize    = 256 << 10
	tallyInterval = 3 * time.Second
)

// ErrLoopback is returned by Accept when the peer is the sender's own
// self-connectivity probe and must be rejected (§4.3, §4.4).
var ErrLoopback = fmt.Errorf("%sloopback peer rejected", pkg)

// Session is one connected client's sender-side state (§3 "Client session
// state"). subscribedVideo/subscribedAudio begin false and may only
// transition to true (idempotent): the reader only ever stores true.
type Session struct {
	conn net.Conn
	out  *bufio.Writer
	log  logging.Logger

	writeMu sync.Mutex

	subscribedVideo atomic.Bool
	subscribedAudio atomic.Bool

	closed atomic.Bool

	// infoAttrs is the attribute string sent in the initial <OMTInfo/>
	// announcement (§4.3).
	infoAttrs string
}

// Accept performs the accept-time setup of §4.3 for a newly accepted
// connection: NODELAY, read timeout, send buffer, buffered output, and
// the initial <OMTInfo/>/<OMTTally/> handshake. It rejects connections
// whose peer address is loopback (the sender's own probe, §4.4).
func Accept(conn net.Conn, infoAttrs string, log logging.Logger) (*Session, error) {
	if netutil.IsLoopback(conn.RemoteAddr()) {
		conn.Close()
		return nil, ErrLoopback
	}
	if err := netutil.TuneSourceSession(conn, ReadTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%scould not tune session socket: %w", pkg, err)
	}
	if err := netutil.SetSendBuffer(conn, SendBufSize); err != nil {
		log.Warning(pkg+"could not set send buffer", "error", err.Error())
	} else {
		log.Debug(pkg+"session socket tuned", "effectiveSendBuffer", netutil.EffectiveSendBuffer(conn))
	}

	s := &Session{
		conn:      conn,
		out:       bufio.NewWriterSize(conn, OutBufSize),
		log:       log,
		infoAttrs: infoAttrs,
	}

	if err := s.writeMetadata(omt.BuildInfo(infoAttrs)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%scould not send OMTInfo: %w", pkg, err)
	}
	if err := s.writeMetadata(omt.BuildTally("false", "false")); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%scould not send initial OMTTally: %w", pkg, err)
	}
	return s, nil
}

// SubscribedVideo reports whether this session has subscribed to video.
func (s *Session) SubscribedVideo() bool { return s.subscribedVideo.Load() }

// SubscribedAudio reports whether this session has subscribed to audio.
func (s *Session) SubscribedAudio() bool { return s.subscribedAudio.Load() }

// Closed reports whether this session has been evicted.
func (s *Session) Closed() bool { return s.closed.Load() }

// RemoteAddr returns the underlying connection's remote address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Close closes the underlying connection; idempotent.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

// WriteFrame sends one complete frame under the session's write lock, so
// that video/audio fan-out and metadata heartbeats never interleave
// mid-frame on this socket (§4.3 Writer behavior, §8 session-write
// atomicity). It flushes after writing, classifies disconnection-class
// errors, and evicts (closes) the session on them.
func (s *Session) WriteFrame(typ uint8, timestamp uint64, ext, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return fmt.Errorf("%ssession closed", pkg)
	}
	if err := omt.WriteFrame(s.out, typ, timestamp, ext, payload); err != nil {
		return s.handleWriteErr(err)
	}
	if err := s.out.Flush(); err != nil {
		return s.handleWriteErr(err)
	}
	return nil
}

func (s *Session) handleWriteErr(err error) error {
	if netutil.IsDisconnect(err) {
		s.Close()
	}
	return err
}

// writeMetadata sends a single metadata frame containing payload (§3, §4.3).
func (s *Session) writeMetadata(payload string) error {
	return s.WriteFrame(omt.TypeMetadata, 0, nil, []byte(payload))
}

// SendTally sends a fresh <OMTTally .../> metadata frame, used both for
// the audio-subscribe handshake requirement (§4.3) and the idle keepalive
// (§4.4).
func (s *Session) SendTally(preview, program string) error {
	return s.writeMetadata(omt.BuildTally(preview, program))
}

// ReadLoop blocks, reading metadata frames from the peer and updating
// subscription state, until the connection ends or running is cleared.
// It never returns on a read timeout (§4.3: "Read timeouts are not
// errors"), nor on a framing violation that ReadFrame resynchronized past;
// any other read error, EOF, or closed socket ends the loop and the
// session is evicted.
func (s *Session) ReadLoop(running *atomic.Bool) {
	defer s.Close()
	for running.Load() && !s.closed.Load() {
		s.conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		typ, _, payload, resynced, err := omt.ReadFrame(s.conn)
		if err != nil {
			if isTimeout(err) || resynced {
				continue
			}
			s.log.Debug(pkg+"read loop ending", "remote", s.conn.RemoteAddr().String(), "error", err.Error())
			return
		}
		if typ != omt.TypeMetadata {
			continue
		}
		text := omt.TrimPadding(payload)
		s.handleMetadata(text)
	}
}

func (s *Session) handleMetadata(text string) {
	if omt.IsSubscribeVideo(text) {
		s.subscribedVideo.Store(true)
		s.log.Info(pkg+"client subscribed to video", "remote", s.conn.RemoteAddr().String())
	}
	if omt.IsSubscribeAudio(text) {
		s.subscribedAudio.Store(true)
		s.log.Info(pkg+"client subscribed to audio", "remote", s.conn.RemoteAddr().String())
		// A fresh tally must follow an audio subscription or the peer
		// treats the audio subchannel as idle and tears it down (§4.3).
		if err := s.SendTally("false", "false"); err != nil {
			s.log.Debug(pkg+"could not send post-subscribe tally", "error", err.Error())
		}
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
