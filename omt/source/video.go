/*
NAME
  video.go

DESCRIPTION
  The video producer/encoder of §4.5: a depth-1, newest-wins double buffer
  between a camera-driven producer and a dedicated encoder/consumer, and
  the encode step itself (VMX when available, raw NV12 otherwise). The
  double buffer is intentionally NOT built on github.com/ausocean/utils/
  pool.Buffer: that type is a multi-chunk FIFO ring, the wrong shape for a
  slot that must always hold at most the single newest frame and silently
  discard anything older (§9). It follows the same sync.Mutex+sync.Cond
  handoff shape as the slot description in the data model instead.
*/

package source

import (
	"sync"

	"github.com/ausocean/omt/omt"
	"github.com/ausocean/omt/omt/omtcodec"
	"github.com/ausocean/utils/logging"
)

const pkg = "source: "

// videoSlot is the producer/consumer handoff record of §4.5's "Video
// producer slot": one mutex, one condition, ready swapped newest-wins.
type videoSlot struct {
	mu   sync.Mutex
	cond *sync.Cond

	y, uv         []byte
	width, height int
	yStride       int
	timestamp     uint64
	ready         bool
	stopped       bool
}

func newVideoSlot() *videoSlot {
	s := &videoSlot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Put is the producer side, invoked per camera frame on the caller's
// thread. y, u and v are the source Y, U and V planes with their own
// (possibly padded) row strides; uPixelStride/vPixelStride are the
// distance in bytes between adjacent samples within a row of the U and V
// planes (2 for already-interleaved UV). If a previous frame is still ready, it
// is silently overwritten — newest wins, no queueing (§4.5, §9).
func (s *videoSlot) Put(timestamp uint64, width, height, yRowStride int, y []byte, uRowStride, uPixelStride int, u []byte, vRowStride, vPixelStride int, v []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cap(s.y) < width*height {
		s.y = make([]byte, width*height)
	} else {
		s.y = s.y[:width*height]
	}
	uvSize := width * (height / 2)
	if cap(s.uv) < uvSize {
		s.uv = make([]byte, uvSize)
	} else {
		s.uv = s.uv[:uvSize]
	}

	for row := 0; row < height; row++ {
		src := y[row*yRowStride : row*yRowStride+width]
		copy(s.y[row*width:(row+1)*width], src)
	}

	if uPixelStride == 2 && vPixelStride == 2 {
		// Source U/V are already interleaved NV12-style: copy the
		// interleaved range directly, row by row.
		for row := 0; row < height/2; row++ {
			dst := s.uv[row*width : (row+1)*width]
			srcU := u[row*uRowStride : row*uRowStride+width]
			copy(dst, srcU)
		}
	} else {
		// Per-sample gather with bounds checks, writing U then V into
		// alternating bytes.
		for row := 0; row < height/2; row++ {
			for col := 0; col < width/2; col++ {
				ui := row*uRowStride + col*uPixelStride
				vi := row*vRowStride + col*vPixelStride
				di := row*width + col*2
				if ui < len(u) {
					s.uv[di] = u[ui]
				}
				if vi < len(v) {
					s.uv[di+1] = v[vi]
				}
			}
		}
	}

	s.width, s.height, s.yStride = width, height, width
	s.timestamp = timestamp
	s.ready = true
	s.cond.Signal()
}

// take blocks until a frame is ready, then swaps the slot's buffers with
// localY/localUV (the caller's previous buffers), returning the newly
// acquired buffers and the frame metadata. This is the "two physical
// buffers, no allocation steady-state" handoff of §4.5.
func (s *videoSlot) take(localY, localUV []byte) (y, uv []byte, width, height, yStride int, timestamp uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.ready && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return nil, nil, 0, 0, 0, 0, false
	}
	s.y, localY = localY, s.y
	s.uv, localUV = localUV, s.uv
	y, uv = localY, localUV
	width, height, yStride, timestamp = s.width, s.height, s.yStride, s.timestamp
	s.ready = false
	return y, uv, width, height, yStride, timestamp, true
}

// stop marks the slot stopped and wakes any goroutine parked in take,
// used at shutdown to let the encoder thread observe a cleared running
// flag (§5: "signal the frame condition").
func (s *videoSlot) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// VideoProducer is the consumer half of §4.5: it owns the VMX encoder
// instance (recreated on dimension change), the fixed output buffer, and
// the two Y/UV buffer pairs that ping-pong with the producer's slot.
type VideoProducer struct {
	log     logging.Logger
	threads int

	slot *videoSlot

	localY, localUV []byte
	out             []byte
	nv12Out         []byte
	hdr             []byte

	codecWidth, codecHeight int
	enc                     omtcodec.Handle
	encValid                bool
}

// NewVideoProducer returns a VideoProducer ready to accept frames via its
// Slot's Put method and encode them via Next.
func NewVideoProducer(log logging.Logger, threads int) *VideoProducer {
	return &VideoProducer{
		log:     log,
		threads: threads,
		slot:    newVideoSlot(),
		hdr:     make([]byte, omt.VideoHeaderSize),
	}
}

// Slot exposes the producer-facing handoff slot for camera callbacks.
func (p *VideoProducer) Slot() *videoSlot { return p.slot }

// Stop unblocks a goroutine parked in Next, used by Server.Stop to let
// the encoder thread observe the cleared running flag (§5: "signal the
// frame condition").
func (p *VideoProducer) Stop() { p.slot.stop() }

// Close releases the VMX encoder instance, if one was created.
func (p *VideoProducer) Close() error {
	if p.encValid {
		return omtcodec.Close(p.enc)
	}
	return nil
}

// EncodedFrame is one encoded video frame ready for fan-out.
type EncodedFrame struct {
	Timestamp uint64
	Header    []byte // 32-byte extended header, valid until the next Next call.
	Payload   []byte // Encoded (or raw NV12) payload, valid until the next Next call.
}

// Next blocks until a frame is available, encodes it, and returns the
// wire-ready header+payload. Once codecWidth/Height have stabilized it
// allocates no frame buffers (§4.5); the extended header is still encoded
// into a fresh 32-byte slice on every frame before being copied into the
// reused header buffer. ok is false once Stop has been called, even if a
// frame is pending.
func (p *VideoProducer) Next() (frame EncodedFrame, ok bool) {
	for {
		y, uv, width, height, yStride, ts, ok := p.slot.take(p.localY, p.localUV)
		if !ok {
			return EncodedFrame{}, false
		}
		p.localY, p.localUV = y, uv

		if width != p.codecWidth || height != p.codecHeight {
			if p.encValid {
				if err := omtcodec.Close(p.enc); err != nil {
					p.log.Warning(pkg+"error closing stale encoder", "error", err.Error())
				}
				p.encValid = false
			}
			p.codecWidth, p.codecHeight = width, height
			if omtcodec.Available() {
				enc, err := omtcodec.NewEncoder(width, height, p.threads)
				if err != nil {
					p.log.Warning(pkg+"VMX encoder unavailable, falling back to NV12", "error", err.Error())
				} else {
					p.enc, p.encValid = enc, true
				}
			}
			p.out = make([]byte, width*height*2)
			p.nv12Out = make([]byte, width*height+width*(height/2))
		}

		uvStride := width

		var fourcc uint32
		var payload []byte
		if p.encValid {
			n, err := omtcodec.Encode(p.enc, y, yStride, uv, uvStride, p.out)
			if err != nil {
				// Codec-failure: drop the frame entirely and continue with
				// the next one, rather than substituting a different codec
				// for it (§7, §4.2).
				p.log.Warning(pkg+"VMX encode failed, dropping frame", "error", err.Error())
				continue
			}
			fourcc = omt.FourCCVMX1
			payload = p.out[:n]
		} else {
			fourcc = omt.FourCCNV12
			payload = p.rawNV12(y, uv)
		}

		copy(p.hdr, omt.EncodeVideoHeader(omt.VideoHeader{
			CodecFourCC:  fourcc,
			Width:        int32(width),
			Height:       int32(height),
			FrameRateNum: 30,
			FrameRateDen: 1,
			AspectRatio:  float32(width) / float32(height),
			ColorSpace:   omtcodec.ColorSpaceBT709,
		}))

		return EncodedFrame{Timestamp: ts, Header: p.hdr, Payload: payload}, true
	}
}

// rawNV12 concatenates the Y and UV planes into the preallocated fallback
// buffer for the codec=NV12 path (§4.5: "sends the raw NV12 Y and UV
// planes").
func (p *VideoProducer) rawNV12(y, uv []byte) []byte {
	copy(p.nv12Out, y)
	copy(p.nv12Out[len(y):], uv)
	return p.nv12Out[:len(y)+len(uv)]
}
