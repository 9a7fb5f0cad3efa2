/*
NAME
  receiver.go

DESCRIPTION
  Client is the receiver client of §4.7: a single connection to an OMT
  source, the connect/subscribe handshake, and the read/demux/dispatch
  loop that drives video into the frame pool and audio into a playback
  sink. Grounded on protocol/rtmp/conn.go's Dial-then-deadline-guarded
  read/write shape and cmd/speaker/main.go's "decode and hand PCM to a
  sink" consumer pattern, adapted from RTMP's chunked stream to OMT's
  length-prefixed frames.
*/

package receiver

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ausocean/omt/internal/netutil"
	"github.com/ausocean/omt/omt"
	"github.com/ausocean/omt/omt/framepool"
	"github.com/ausocean/omt/omt/omtcodec"
	"github.com/ausocean/utils/logging"
)

const pkg = "receiver: "

// PlaybackSink receives de-planarized, interleaved audio samples. Audio
// output devices are out of scope (§1); callers provide their own sink.
type PlaybackSink interface {
	WriteAudio(pcm []byte, sampleRate int, channels int)
}

// Callbacks are the receiver-side status hooks of §6.3.
type Callbacks struct {
	OnFrame  func(rgba []byte, width, height int)
	OnStatus func(text string)
	OnError  func(detail string)
}

// Client is a single connection to an OMT source (§4.7).
type Client struct {
	log   logging.Logger
	sink  PlaybackSink
	cb    Callbacks
	pool  *framepool.Pool

	conn    net.Conn
	running bool

	dec      omtcodec.Handle
	decValid bool
	decW     int
	decH     int

	audioScratch []byte
}

// New returns a Client ready to Connect. pool may be shared across
// multiple receivers; if nil, a private pool is created.
func New(log logging.Logger, sink PlaybackSink, cb Callbacks, pool *framepool.Pool) *Client {
	if pool == nil {
		pool = framepool.New()
	}
	return &Client{log: log, sink: sink, cb: cb, pool: pool}
}

// Pool returns the receiver frame pool backing this client's video path,
// so a render consumer can Take/Release against it (§4.8).
func (c *Client) Pool() *framepool.Pool { return c.pool }

// Connect dials host:port with the timeouts and socket tuning of §4.7
// and sends the four-frame subscribe/settings handshake.
func (c *Client) Connect(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("%scould not connect to %s: %w", pkg, addr, err)
	}
	if err := netutil.TuneReceiverConn(conn, 5*time.Second); err != nil {
		conn.Close()
		return fmt.Errorf("%scould not tune connection: %w", pkg, err)
	}
	if err := netutil.SetRecvBuffer(conn, 1<<20); err != nil {
		c.log.Warning(pkg+"could not set receive buffer", "error", err.Error())
	} else {
		c.log.Debug(pkg+"connection socket tuned", "effectiveRecvBuffer", netutil.EffectiveRecvBuffer(conn))
	}

	for _, payload := range []string{
		omt.TokenSubscribeMetadata,
		omt.TokenSubscribeVideo,
		omt.TokenSubscribeAudio,
		omt.BuildSettings("Default"),
	} {
		if err := omt.WriteFrame(conn, omt.TypeMetadata, 0, nil, []byte(payload)); err != nil {
			conn.Close()
			return fmt.Errorf("%scould not send handshake frame: %w", pkg, err)
		}
	}

	c.conn = conn
	c.running = true
	return nil
}

// Run blocks, reading and dispatching frames until Stop is called or the
// connection ends. Read timeouts and framing violations that ReadFrame
// resynchronized past are skipped; on any other read error while running,
// it surfaces a single "connection lost" status and returns (§4.7).
func (c *Client) Run() {
	for c.running {
		c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		typ, _, payload, resynced, err := omt.ReadFrame(c.conn)
		if err != nil {
			if isTimeout(err) || resynced {
				continue
			}
			if c.running {
				c.running = false
				if c.cb.OnStatus != nil {
					c.cb.OnStatus("connection lost")
				}
			}
			return
		}
		switch typ {
		case omt.TypeMetadata:
			c.handleMetadata(payload)
		case omt.TypeVideo:
			c.handleVideo(payload)
		case omt.TypeAudio:
			c.handleAudio(payload)
		}
	}
}

// Stop ends the receive loop and closes the connection.
func (c *Client) Stop() {
	c.running = false
	if c.conn != nil {
		c.conn.Close()
	}
	if c.decValid {
		omtcodec.Close(c.dec)
		c.decValid = false
	}
}

func (c *Client) handleMetadata(payload []byte) {
	text := omt.TrimPadding(payload)
	if omt.IsTally(text) && c.cb.OnStatus != nil {
		c.cb.OnStatus(text)
	}
}

func (c *Client) handleVideo(payload []byte) {
	if len(payload) < omt.VideoHeaderSize {
		c.surfaceError("short video frame")
		return
	}
	hdr, err := omt.DecodeVideoHeader(payload[:omt.VideoHeaderSize])
	if err != nil {
		c.surfaceError(err.Error())
		return
	}
	width, height := int(hdr.Width), int(hdr.Height)
	if width < 1 || width > 7680 || height < 1 || height > 4320 {
		c.surfaceError("video dimensions out of range")
		return
	}
	body := payload[omt.VideoHeaderSize:]

	buf := c.pool.Acquire(width, height)

	var decodeErr error
	switch hdr.CodecFourCC {
	case omt.FourCCVMX1:
		decodeErr = c.decodeVMX(width, height, body, buf.Pix)
	case omt.FourCCNV12:
		decodeErr = c.decodeNV12(width, height, body, buf.Pix)
	default:
		c.pool.Release(buf)
		c.log.Debug(pkg+"dropping frame with unrecognized codec", "fourcc", hdr.CodecFourCC)
		return
	}
	if decodeErr != nil {
		c.pool.Release(buf)
		c.surfaceError(decodeErr.Error())
		return
	}

	if displaced := c.pool.Publish(buf); displaced != nil {
		c.pool.Release(displaced)
	}
	if c.cb.OnFrame != nil {
		c.cb.OnFrame(buf.Pix, width, height)
	}
}

func (c *Client) decodeVMX(width, height int, input, outRGBA []byte) error {
	if !omtcodec.Available() {
		return fmt.Errorf("VMX1 stream but codec unavailable")
	}
	if !c.decValid || width != c.decW || height != c.decH {
		if c.decValid {
			omtcodec.Close(c.dec)
		}
		dec, err := omtcodec.NewDecoder(width, height, 0)
		if err != nil {
			c.decValid = false
			return err
		}
		c.dec, c.decValid, c.decW, c.decH = dec, true, width, height
	}
	return omtcodec.Decode(c.dec, input, outRGBA)
}

func (c *Client) decodeNV12(width, height int, input, outRGBA []byte) error {
	ySize := width * height
	uvSize := width * (height / 2)
	if len(input) < ySize+uvSize {
		return fmt.Errorf("short NV12 payload")
	}
	omtcodec.NV12ToRGBA(input[:ySize], input[ySize:ySize+uvSize], outRGBA, width, height)
	return nil
}

func (c *Client) handleAudio(payload []byte) {
	if len(payload) < omt.AudioHeaderSize {
		c.surfaceError("short audio frame")
		return
	}
	hdr, err := omt.DecodeAudioHeader(payload[:omt.AudioHeaderSize])
	if err != nil {
		c.surfaceError(err.Error())
		return
	}
	bits := omt.BitsPerSample(hdr.CodecFourCC)
	if err := omt.ValidateAudioHeader(hdr, bits); err != nil {
		c.log.Debug(pkg+"dropping audio frame with invalid header", "error", err.Error())
		return
	}
	body := payload[omt.AudioHeaderSize:]

	switch hdr.CodecFourCC {
	case omt.FourCCFPA1:
		c.deplanarizeFloat(hdr, body)
	case omt.FourCCPCM1:
		c.deplanarizeInt16(hdr, body)
	default:
		c.log.Debug(pkg+"dropping audio frame with unrecognized codec", "fourcc", hdr.CodecFourCC)
	}
}

// deplanarizeFloat reads planar 32-bit float audio [L0..Ln-1|R0..Rn-1|...]
// and writes interleaved floats to the playback sink (§4.7).
func (c *Client) deplanarizeFloat(hdr omt.AudioHeader, body []byte) {
	samples := int(hdr.SamplesPerChannel)
	channels := int(hdr.Channels)
	need := samples * channels * 4
	if len(body) < need {
		c.surfaceError("short audio payload")
		return
	}
	if cap(c.audioScratch) < need {
		c.audioScratch = make([]byte, need)
	}
	out := c.audioScratch[:need]
	for ch := 0; ch < channels; ch++ {
		plane := body[ch*samples*4 : (ch+1)*samples*4]
		for i := 0; i < samples; i++ {
			copy(out[(i*channels+ch)*4:(i*channels+ch)*4+4], plane[i*4:i*4+4])
		}
	}
	if c.sink != nil {
		c.sink.WriteAudio(out, int(hdr.SampleRate), channels)
	}
}

// deplanarizeInt16 reads planar 16-bit little-endian PCM [L0..Ln-1|R0..Rn-1]
// and writes interleaved little-endian shorts to the playback sink (§4.7).
func (c *Client) deplanarizeInt16(hdr omt.AudioHeader, body []byte) {
	samples := int(hdr.SamplesPerChannel)
	channels := int(hdr.Channels)
	need := samples * channels * 2
	if len(body) < need {
		c.surfaceError("short audio payload")
		return
	}
	if cap(c.audioScratch) < need {
		c.audioScratch = make([]byte, need)
	}
	out := c.audioScratch[:need]
	for ch := 0; ch < channels; ch++ {
		plane := body[ch*samples*2 : (ch+1)*samples*2]
		for i := 0; i < samples; i++ {
			copy(out[(i*channels+ch)*2:(i*channels+ch)*2+2], plane[i*2:i*2+2])
		}
	}
	if c.sink != nil {
		c.sink.WriteAudio(out, int(hdr.SampleRate), channels)
	}
}

func (c *Client) surfaceError(detail string) {
	if c.cb.OnError != nil {
		c.cb.OnError(detail)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
