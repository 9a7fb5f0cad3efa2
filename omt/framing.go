/*
NAME
  framing.go

DESCRIPTION
  Encoding and decoding of the OMT base header and per-type extended
  headers (§3, §4.1), and the read/write operations that frame a socket
  conversation between an OMT source and an OMT receiver.
*/

package omt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// resyncCeiling bounds how much of a malformed frame's claimed payload we
// will discard while trying to resynchronize with the stream, so that a
// corrupt peer cannot stall the reader indefinitely (§4.1).
const resyncCeiling = 65536

// Sentinel errors describing the framing-level failure classes of §7.
var (
	ErrBadVersion      = errors.New("omt: unsupported frame version")
	ErrPayloadTooLarge = errors.New("omt: payload length exceeds per-type bound")
	ErrShortRead       = errors.New("omt: short read, peer disconnected mid-frame")
	ErrHeaderTooShort  = errors.New("omt: extended header shorter than required size")
)

// encodeBaseHeader writes h into a 16-byte buffer, little-endian, per §3.
func encodeBaseHeader(h BaseHeader) [BaseHeaderSize]byte {
	var b [BaseHeaderSize]byte
	b[0] = h.Version
	b[1] = h.Type
	binary.LittleEndian.PutUint64(b[2:10], h.Timestamp)
	binary.LittleEndian.PutUint16(b[10:12], h.Reserved)
	binary.LittleEndian.PutUint32(b[12:16], h.PayloadLength)
	return b
}

// decodeBaseHeader parses a 16-byte buffer into a BaseHeader.
func decodeBaseHeader(b []byte) BaseHeader {
	return BaseHeader{
		Version:       b[0],
		Type:          b[1],
		Timestamp:     binary.LittleEndian.Uint64(b[2:10]),
		Reserved:      binary.LittleEndian.Uint16(b[10:12]),
		PayloadLength: binary.LittleEndian.Uint32(b[12:16]),
	}
}

// EncodeVideoHeader writes h into a 32-byte little-endian buffer (§3).
func EncodeVideoHeader(h VideoHeader) []byte {
	b := make([]byte, VideoHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.CodecFourCC)
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.Width))
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.Height))
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.FrameRateNum))
	binary.LittleEndian.PutUint32(b[16:20], uint32(h.FrameRateDen))
	binary.LittleEndian.PutUint32(b[20:24], math.Float32bits(h.AspectRatio))
	binary.LittleEndian.PutUint32(b[24:28], uint32(h.InterlaceFlag))
	binary.LittleEndian.PutUint32(b[28:32], uint32(h.ColorSpace))
	return b
}

// DecodeVideoHeader parses a 32-byte extended header into a VideoHeader.
func DecodeVideoHeader(b []byte) (VideoHeader, error) {
	if len(b) < VideoHeaderSize {
		return VideoHeader{}, ErrHeaderTooShort
	}
	return VideoHeader{
		CodecFourCC:   binary.LittleEndian.Uint32(b[0:4]),
		Width:         int32(binary.LittleEndian.Uint32(b[4:8])),
		Height:        int32(binary.LittleEndian.Uint32(b[8:12])),
		FrameRateNum:  int32(binary.LittleEndian.Uint32(b[12:16])),
		FrameRateDen:  int32(binary.LittleEndian.Uint32(b[16:20])),
		AspectRatio:   math.Float32frombits(binary.LittleEndian.Uint32(b[20:24])),
		InterlaceFlag: int32(binary.LittleEndian.Uint32(b[24:28])),
		ColorSpace:    int32(binary.LittleEndian.Uint32(b[28:32])),
	}, nil
}

// EncodeAudioHeaderVMix writes a 24-byte vMix-layout audio extended header
// (§4.6): fourcc, sample_rate, samples_per_channel, channels,
// active_channels_bitfield, reserved.
func EncodeAudioHeaderVMix(h AudioHeader) []byte {
	b := make([]byte, AudioHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.CodecFourCC)
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.SampleRate))
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.SamplesPerChannel))
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.Channels))
	binary.LittleEndian.PutUint32(b[16:20], h.ActiveChannels)
	binary.LittleEndian.PutUint32(b[20:24], 0)
	return b
}

// DecodeAudioHeader parses a 24-byte audio extended header, disambiguating
// the legacy and vMix layouts per the heuristic in §3: the u32 at offset 8
// is treated as channels (legacy layout) when it falls in [1,8]; otherwise
// it is samples_per_channel and the channels field is read from offset 12
// (vMix layout).
func DecodeAudioHeader(b []byte) (AudioHeader, error) {
	if len(b) < AudioHeaderSize {
		return AudioHeader{}, ErrHeaderTooShort
	}
	fourcc := binary.LittleEndian.Uint32(b[0:4])
	sampleRate := binary.LittleEndian.Uint32(b[4:8])
	fieldAt8 := binary.LittleEndian.Uint32(b[8:12])
	fieldAt12 := binary.LittleEndian.Uint32(b[12:16])

	h := AudioHeader{
		CodecFourCC: fourcc,
		SampleRate:  int32(sampleRate),
	}
	if fieldAt8 >= 1 && fieldAt8 <= 8 {
		h.Layout = LayoutLegacy
		h.Channels = int32(fieldAt8)
		h.SamplesPerChannel = int32(binary.LittleEndian.Uint32(b[16:20]))
		return h, nil
	}
	h.Layout = LayoutVMix
	h.SamplesPerChannel = int32(fieldAt8)
	h.Channels = int32(fieldAt12)
	h.ActiveChannels = binary.LittleEndian.Uint32(b[16:20])
	return h, nil
}

// WriteFrame writes the base header (with PayloadLength computed from the
// combined length of ext and payload), the extended header, and the
// payload, in that order (§4.1). The caller is responsible for flushing w
// if it is buffered.
func WriteFrame(w io.Writer, typ uint8, timestamp uint64, ext, payload []byte) error {
	total := len(ext) + len(payload)
	hdr := encodeBaseHeader(BaseHeader{
		Version:       protocolVersion,
		Type:          typ,
		Timestamp:     timestamp,
		PayloadLength: uint32(total),
	})
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("omt: could not write base header: %w", err)
	}
	if len(ext) > 0 {
		if _, err := w.Write(ext); err != nil {
			return fmt.Errorf("omt: could not write extended header: %w", err)
		}
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("omt: could not write payload: %w", err)
		}
	}
	return nil
}

// maxPayloadFor returns the per-type payload length ceiling from §3. Frame
// types without an explicit ceiling (audio) fall back to the video bound,
// since neither the base header nor §3 define one independently for audio.
func maxPayloadFor(typ uint8) uint32 {
	switch typ {
	case TypeMetadata:
		return MaxMetadataPayload
	default:
		return MaxVideoPayload
	}
}

// ReadFrame reads one frame from r: the 16-byte base header, validated for
// version and payload length, followed by exactly PayloadLength bytes.
//
// On a version or length violation, ReadFrame does not terminate the
// connection; it skips up to min(payload_length, 64KiB) bytes and returns
// with resynced = true so the caller can simply call ReadFrame again. A
// short read (EOF mid-frame) is reported as ErrShortRead and is always a
// disconnection-class error.
func ReadFrame(r io.Reader) (typ uint8, timestamp uint64, payload []byte, resynced bool, err error) {
	var hb [BaseHeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return 0, 0, nil, false, fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	hdr := decodeBaseHeader(hb[:])

	if hdr.Version != protocolVersion {
		if err := skip(r, hdr.PayloadLength); err != nil {
			return 0, 0, nil, false, err
		}
		return 0, 0, nil, true, ErrBadVersion
	}
	if hdr.PayloadLength > maxPayloadFor(hdr.Type) {
		if err := skip(r, hdr.PayloadLength); err != nil {
			return 0, 0, nil, false, err
		}
		return 0, 0, nil, true, ErrPayloadTooLarge
	}

	payload = make([]byte, hdr.PayloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, false, fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	return hdr.Type, hdr.Timestamp, payload, false, nil
}

// skip discards up to min(n, resyncCeiling) bytes from r to resynchronize
// the stream after a framing violation.
func skip(r io.Reader, n uint32) error {
	toSkip := int64(n)
	if toSkip > resyncCeiling {
		toSkip = resyncCeiling
	}
	_, err := io.CopyN(io.Discard, r, toSkip)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	return nil
}
