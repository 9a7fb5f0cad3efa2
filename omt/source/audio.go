/*
NAME
  audio.go

DESCRIPTION
  AudioEmitter is the audio capture emitter of §4.6: a dedicated thread
  that reads interleaved stereo signed 32-bit samples from an ALSA capture
  device, converts them to float, and emits fixed-cadence vMix-layout
  audio frames. Grounded on
  device/alsa.ALSA's device-negotiation and pool.Buffer-backed capture
  loop, adapted to OMT's fixed 48kHz/2ch/float32/960-samples-per-packet
  contract rather than ALSA's configurable rate/channels/bit-depth.
*/

package source

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	yalsa "github.com/yobert/alsa"

	"github.com/ausocean/omt/config"
	"github.com/ausocean/omt/omt"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

const (
	rbLen         = 200
	rbTimeout     = 100 * time.Millisecond
	rbNextTimeout = 2000 * time.Millisecond
)

// AudioFrame is one emitted audio frame ready for fan-out.
type AudioFrame struct {
	Timestamp uint64
	Header    []byte
	Payload   []byte
}

// AudioEmitter captures audio from an ALSA device at the fixed cadence
// §4.6 requires and makes completed packets available via Next.
type AudioEmitter struct {
	log   logging.Logger
	dev   *yalsa.Device
	buf   *pool.Buffer // jitter-absorbing ring between capture and emission (§4.6).
	chunk int          // bytes per emitted packet: samplesPerChannel*channels*4.

	interleaved []byte // scratch for one captured chunk.
	planar      []byte // preallocated output payload, reused across calls.
	hdr         []byte
}

// NewAudioEmitter opens the first available ALSA capture device and
// negotiates 48 kHz, 2 channels and signed 32-bit little-endian samples
// (converted to the float samples of §4.6 in Next), the way
// device/alsa.ALSA.open negotiates its configurable ones.
func NewAudioEmitter(log logging.Logger) (*AudioEmitter, error) {
	dev, err := openCaptureDevice()
	if err != nil {
		return nil, fmt.Errorf("source: could not open ALSA capture device: %w", err)
	}

	channels, err := dev.NegotiateChannels(config.AudioChannels)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("source: device cannot record %d channels: %w", config.AudioChannels, err)
	}
	rate, err := dev.NegotiateRate(config.AudioSampleRate)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("source: device cannot record at %d Hz: %w", config.AudioSampleRate, err)
	}
	if _, err := dev.NegotiateFormat(yalsa.S32_LE); err != nil {
		dev.Close()
		return nil, fmt.Errorf("source: device cannot record 32-bit samples: %w", err)
	}
	periodSize, err := dev.NegotiatePeriodSize(config.AudioSamplesPerPacket)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("source: could not negotiate period size: %w", err)
	}
	if _, err := dev.NegotiateBufferSize(periodSize * 4); err != nil {
		dev.Close()
		return nil, fmt.Errorf("source: could not negotiate buffer size: %w", err)
	}
	if err := dev.Prepare(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("source: could not prepare device: %w", err)
	}

	chunk := config.AudioSamplesPerPacket * channels * 4
	return &AudioEmitter{
		log:         log,
		dev:         dev,
		buf:         pool.NewBuffer(rbLen, chunk, rbTimeout),
		chunk:       chunk,
		interleaved: make([]byte, chunk),
		planar:      make([]byte, chunk),
		hdr:         make([]byte, omt.AudioHeaderSize),
	}, rateMismatch(log, rate)
}

func rateMismatch(log logging.Logger, rate int) error {
	if rate != config.AudioSampleRate {
		log.Warning("source: device negotiated a different sample rate than requested", "rate", rate, "wanted", config.AudioSampleRate)
	}
	return nil
}

func openCaptureDevice() (*yalsa.Device, error) {
	cards, err := yalsa.OpenCards()
	if err != nil {
		return nil, err
	}
	defer yalsa.CloseCards(cards)
	for _, card := range cards {
		devices, err := card.Devices()
		if err != nil {
			continue
		}
		for _, d := range devices {
			if d.Type == yalsa.PCM && d.Record {
				if err := d.Open(); err != nil {
					continue
				}
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("no ALSA capture device found")
}

// capture runs the continuous read-and-ring-write loop until running is
// cleared, mirroring device/alsa.ALSA.input's ticker-driven chunk write.
func (e *AudioEmitter) capture(running func() bool) {
	for running() {
		if err := e.dev.Read(e.interleaved); err != nil {
			e.log.Warning(pkg+"audio capture read failed", "error", err.Error())
			continue
		}
		_, err := e.buf.Write(e.interleaved)
		switch err {
		case nil:
		case pool.ErrDropped:
			e.log.Warning(pkg + "audio ring overwritten; emitter is falling behind capture")
		default:
			e.log.Error(pkg+"unexpected audio ring error", "error", err.Error())
		}
	}
	if err := e.buf.Close(); err != nil {
		e.log.Error(pkg+"error closing audio ring", "error", err.Error())
	}
}

// Next blocks for the next full packet, de-interleaves it into planar
// [L0..L959|R0..R959] order, and returns the vMix-layout wire frame
// (§4.6). It returns ok=false when no full packet arrives within
// rbNextTimeout or once the ring has been closed.
func (e *AudioEmitter) Next(timestamp uint64) (frame AudioFrame, ok bool) {
	chunk, err := e.buf.Next(rbNextTimeout)
	if err != nil {
		return AudioFrame{}, false
	}
	n := copy(e.interleaved, chunk.Bytes())
	chunk.Close()
	if n < e.chunk {
		return AudioFrame{}, false
	}

	// The device yields signed 32-bit integer PCM (S32_LE); FPA1 requires
	// normalized float32 in [-1,1], so each sample is converted, not just
	// repacked (§4.6).
	samplesPerChannel := config.AudioSamplesPerPacket
	for i := 0; i < samplesPerChannel; i++ {
		l := int32ToFloat32LE(e.interleaved[i*8 : i*8+4])
		r := int32ToFloat32LE(e.interleaved[i*8+4 : i*8+8])
		binary.LittleEndian.PutUint32(e.planar[i*4:i*4+4], math.Float32bits(l))
		binary.LittleEndian.PutUint32(e.planar[(samplesPerChannel+i)*4:(samplesPerChannel+i)*4+4], math.Float32bits(r))
	}

	copy(e.hdr, omt.EncodeAudioHeaderVMix(omt.AudioHeader{
		CodecFourCC:       omt.FourCCFPA1,
		SampleRate:        config.AudioSampleRate,
		SamplesPerChannel: int32(samplesPerChannel),
		Channels:          config.AudioChannels,
		ActiveChannels:    0x03, // L+R (§4.6).
	}))

	return AudioFrame{Timestamp: timestamp, Header: e.hdr, Payload: e.planar}, true
}

// int32ToFloat32LE decodes a little-endian signed 32-bit PCM sample and
// normalizes it to the [-1,1] range FPA1 requires.
func int32ToFloat32LE(b []byte) float32 {
	v := int32(binary.LittleEndian.Uint32(b))
	return float32(v) / float32(math.MaxInt32)
}

// Close releases the underlying ALSA device.
func (e *AudioEmitter) Close() error {
	return e.dev.Close()
}
