// Package omt implements the Open Media Transport wire protocol: the
// length-prefixed frame header, the per-frame-type extended headers, and
// the metadata token format exchanged between an OMT source and an OMT
// receiver.
package omt

// Frame type codes carried in the base header's type field.
const (
	TypeMetadata uint8 = 1
	TypeVideo    uint8 = 2
	TypeAudio    uint8 = 4
)

// Recognized codec FourCCs.
const (
	FourCCVMX1 uint32 = 0x31584D56 // "VMX1"
	FourCCNV12 uint32 = 0x3231564E // "NV12"
	FourCCFPA1 uint32 = 0x31415046 // "FPA1", 32-bit float planar audio.
	FourCCPCM1 uint32 = 0x314D4350 // "PCM1", 16-bit signed planar audio (§4.7).
)

// Size, in bytes, of the fixed portions of the wire format.
const (
	BaseHeaderSize  = 16
	VideoHeaderSize = 32
	AudioHeaderSize = 24
)

// Per-type payload length ceilings (§3).
const (
	MaxVideoPayload    = 16 << 20 // 16 MiB
	MaxMetadataPayload = 1 << 20  // 1 MiB
)

// protocolVersion is the only version this implementation speaks.
const protocolVersion uint8 = 1

// BaseHeader is the 16-byte header that precedes every frame's payload.
type BaseHeader struct {
	Version       uint8
	Type          uint8
	Timestamp     uint64 // opaque 100ns ticks, sender-defined epoch (§9).
	Reserved      uint16
	PayloadLength uint32
}

// VideoHeader is the 32-byte extended header that precedes video payloads.
type VideoHeader struct {
	CodecFourCC   uint32
	Width         int32
	Height        int32
	FrameRateNum  int32
	FrameRateDen  int32
	AspectRatio   float32
	InterlaceFlag int32
	ColorSpace    int32
}

// AudioLayout distinguishes the two audio extended header shapes that
// share the same 24 bytes on the wire (§3).
type AudioLayout int

const (
	LayoutUnknown AudioLayout = iota
	LayoutLegacy              // "camera" layout: channels at offset 8.
	LayoutVMix                // vMix layout: samples_per_channel at offset 8.
)

// AudioHeader is the decoded, layout-independent form of the 24-byte audio
// extended header. ActiveChannels is only meaningful for LayoutVMix and is
// zero when decoded from a LayoutLegacy header.
type AudioHeader struct {
	CodecFourCC       uint32
	SampleRate        int32
	Channels          int32
	SamplesPerChannel int32
	ActiveChannels    uint32
	Layout            AudioLayout
}
