/*
NAME
  server.go

DESCRIPTION
  Server is the sender server of §4.4: it owns the listening socket, the
  session set, the video encoder loop, and the audio capture emitter.
  Lifecycle (Start/Stop/Running, a running flag, a sync.WaitGroup, an
  error sink channel) is grounded on revid.Revid's own Start/Stop shape;
  the fan-out-with-backpressure behavior per session is grounded on
  revid/senders.go's pool-buffer-backed sender goroutines, adapted to
  OMT's copy-on-write session-set snapshot model (§5).
*/

package source

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ausocean/omt/config"
	"github.com/ausocean/omt/internal/netutil"
	"github.com/ausocean/omt/omt"
	"github.com/ausocean/omt/omt/session"
	"github.com/ausocean/utils/logging"
)

const (
	idleKeepaliveInterval = 3 * time.Second
	statusInterval        = 3 * time.Second
	shutdownJoinTimeout   = 3 * time.Second
)

// ErrKind classifies an error surfaced via the error sink (§6.3 on_error).
type ErrKind int

const (
	ErrKindBindInUse ErrKind = iota
	ErrKindSendOther
	ErrKindAudio
)

// Event is a status or error notification surfaced by the server (§6.3:
// on_listening, on_client_connected, on_client_disconnected, on_error).
type Event struct {
	Kind    string // "listening", "client_connected", "client_disconnected", "error", "status"
	Peer    string
	ErrKind ErrKind
	Detail  string
	Status  Status
}

// Status is the observational FPS accounting record of §4.4, emitted
// every statusInterval.
type Status struct {
	FPS           float64
	Width, Height int
	Codec         string
	AvgEncodeMS   float64
	ClientCount   int
	TotalFrames   uint64
}

// Server owns the sender's listening socket, session set, video and
// audio pipelines (§4.4).
type Server struct {
	cfg config.Config
	log logging.Logger

	listener net.Listener
	port     int

	sessMu   sync.Mutex
	sessions map[*session.Session]struct{}

	video *VideoProducer
	audio *AudioEmitter

	events chan Event

	running atomic.Bool
	wg      sync.WaitGroup

	totalFrames uint64
	frameTimes  []time.Duration
}

// New constructs a Server; it does not yet bind a listening socket.
func New(cfg config.Config, video *VideoProducer, audio *AudioEmitter) *Server {
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		video:    video,
		audio:    audio,
		sessions: make(map[*session.Session]struct{}),
		events:   make(chan Event, 32),
	}
}

// Events returns the channel of status/error notifications (§6.3).
func (s *Server) Events() <-chan Event { return s.events }

// Start binds the listening socket, trying the configured port first and
// then scanning config.MinPort..config.MaxPort on bind-in-use (§6.1), runs
// the self-connect probe, and launches the accept, encoder, and (if
// configured) audio threads.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf(pkg + "already running")
	}

	l, port, err := s.bind()
	if err != nil {
		s.emit(Event{Kind: "error", ErrKind: ErrKindBindInUse, Detail: err.Error()})
		return err
	}
	s.listener, s.port = l, port
	s.running.Store(true)

	go s.selfConnectProbe(port)
	s.emit(Event{Kind: "listening"})

	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.acceptLoop() }()
	go func() { defer s.wg.Done(); s.encoderLoop() }()

	if s.audio != nil && s.cfg.AudioEnabled {
		s.wg.Add(2)
		go func() { defer s.wg.Done(); s.audio.capture(s.running.Load) }()
		go func() { defer s.wg.Done(); s.audioLoop() }()
	}

	return nil
}

// bind attempts cfg.PortOrDefault first, then scans the dynamic port
// space (§6.1) on address-in-use.
func (s *Server) bind() (net.Listener, int, error) {
	first := s.cfg.PortOrDefault()
	if l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", first)); err == nil {
		return l, first, nil
	}
	for p := config.MinPort; p <= config.MaxPort; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", p))
		if err == nil {
			return l, p, nil
		}
	}
	return nil, 0, fmt.Errorf(pkg+"no free port in range %d-%d", config.MinPort, config.MaxPort)
}

// selfConnectProbe performs the one-shot reachability test of §4.4; the
// probe connection is discarded by the session handler's loopback check.
func (s *Server) selfConnectProbe(port int) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err != nil {
		s.log.Debug(pkg+"self-connect probe failed", "error", err.Error())
		return
	}
	conn.Close()
}

// Stop clears the running flag, unblocks the encoder condition, closes
// the listener and every session socket, and joins the worker goroutines
// with a bounded timeout (§5 "Cancellation").
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.video.Stop()
	if s.listener != nil {
		s.listener.Close()
	}

	s.sessMu.Lock()
	for sess := range s.sessions {
		sess.Close()
	}
	s.sessMu.Unlock()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(shutdownJoinTimeout):
		s.log.Warning(pkg + "shutdown join timed out")
	}

	if s.audio != nil {
		s.audio.Close()
	}
	if err := s.video.Close(); err != nil {
		s.log.Warning(pkg+"error closing video encoder", "error", err.Error())
	}
	// The events channel is deliberately left open rather than closed:
	// a worker goroutine that outlived the join timeout could still hold
	// a reference and a send on a closed channel would panic.
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool { return s.running.Load() }

func (s *Server) acceptLoop() {
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.log.Debug(pkg+"accept error", "error", err.Error())
			}
			return
		}
		sess, err := session.Accept(conn, s.infoAttrs(), s.log)
		if err != nil {
			if err != session.ErrLoopback {
				s.log.Warning(pkg+"could not accept client", "error", err.Error())
			}
			continue
		}
		s.addSession(sess)
		s.emit(Event{Kind: "client_connected", Peer: sess.RemoteAddr().String()})

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			var loopRunning atomic.Bool
			loopRunning.Store(true)
			sess.ReadLoop(&loopRunning)
			s.removeSession(sess)
			s.emit(Event{Kind: "client_disconnected", Peer: sess.RemoteAddr().String()})
		}()
	}
}

func (s *Server) infoAttrs() string {
	return fmt.Sprintf(`ProductName="omt-go" SourceName="%s"`, s.cfg.SourceName)
}

func (s *Server) addSession(sess *session.Session) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.sessions[sess] = struct{}{}
}

func (s *Server) removeSession(sess *session.Session) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	delete(s.sessions, sess)
}

// snapshot returns a stable copy of the current session set, satisfying
// §5's "Session set is a copy-on-write collection" guarantee.
func (s *Server) snapshot() []*session.Session {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *Server) encoderLoop() {
	lastStatus := time.Now()
	lastKeepalive := time.Now()
	var framesAtStatus uint64
	var codec string
	var width, height int

	for s.running.Load() {
		start := time.Now()
		frame, ok := s.video.Next()
		if !ok {
			return
		}
		encodeMS := time.Since(start).Seconds() * 1000

		hdr, err := omt.DecodeVideoHeader(frame.Header)
		if err == nil {
			width, height = int(hdr.Width), int(hdr.Height)
			if hdr.CodecFourCC == omt.FourCCVMX1 {
				codec = "VMX1"
			} else {
				codec = "NV12"
			}
		}

		// If no video subscribers exist, this loop iteration simply has
		// nothing to send — no queueing on absent subscribers (§4.4).
		sessions := s.snapshot()
		for _, sess := range sessions {
			if !sess.SubscribedVideo() || sess.Closed() {
				continue
			}
			if err := sess.WriteFrame(omt.TypeVideo, frame.Timestamp, frame.Header, frame.Payload); err != nil {
				if !netutil.IsDisconnect(err) {
					s.emit(Event{Kind: "error", ErrKind: ErrKindSendOther, Peer: sess.RemoteAddr().String(), Detail: err.Error()})
				}
			}
		}

		s.totalFrames++
		s.frameTimes = append(s.frameTimes, time.Duration(encodeMS*float64(time.Millisecond)))
		if len(s.frameTimes) > 90 {
			s.frameTimes = s.frameTimes[len(s.frameTimes)-90:]
		}

		now := time.Now()
		if now.Sub(lastKeepalive) >= idleKeepaliveInterval {
			s.sendIdleKeepalive(sessions)
			lastKeepalive = now
		}
		if now.Sub(lastStatus) >= statusInterval {
			fps := float64(s.totalFrames-framesAtStatus) / now.Sub(lastStatus).Seconds()
			s.emit(Event{Kind: "status", Status: s.computeStatus(fps, codec, width, height, len(sessions))})
			lastStatus, framesAtStatus = now, s.totalFrames
		}
	}
}

// sendIdleKeepalive sends a minimal tally to every connected session not
// currently receiving video, per §4.4's rationale: some peers tear down
// subchannels that receive no traffic.
func (s *Server) sendIdleKeepalive(sessions []*session.Session) {
	for _, sess := range sessions {
		if sess.Closed() || sess.SubscribedVideo() {
			continue
		}
		if err := sess.SendTally("false", "false"); err != nil && !netutil.IsDisconnect(err) {
			s.emit(Event{Kind: "error", ErrKind: ErrKindSendOther, Peer: sess.RemoteAddr().String(), Detail: err.Error()})
		}
	}
}

func (s *Server) computeStatus(fps float64, codec string, width, height, clients int) Status {
	var sum time.Duration
	for _, d := range s.frameTimes {
		sum += d
	}
	avgMS := 0.0
	if len(s.frameTimes) > 0 {
		avgMS = sum.Seconds() * 1000 / float64(len(s.frameTimes))
	}
	return Status{
		FPS:         fps,
		Width:       width,
		Height:      height,
		Codec:       codec,
		AvgEncodeMS: avgMS,
		ClientCount: clients,
		TotalFrames: s.totalFrames,
	}
}

// audioLoop emits audio packets and fans them out to subscribed sessions,
// independent of the video fan-out (§4.6).
func (s *Server) audioLoop() {
	for s.running.Load() {
		frame, ok := s.audio.Next(monotonic100ns())
		if !ok {
			continue
		}
		for _, sess := range s.snapshot() {
			if !sess.SubscribedAudio() || sess.Closed() {
				continue
			}
			if err := sess.WriteFrame(omt.TypeAudio, frame.Timestamp, frame.Header, frame.Payload); err != nil {
				if !netutil.IsDisconnect(err) {
					s.emit(Event{Kind: "error", ErrKind: ErrKindAudio, Peer: sess.RemoteAddr().String(), Detail: err.Error()})
				}
			}
		}
	}
}

func (s *Server) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug(pkg + "event channel full, dropping event")
	}
}
