/*
NAME
  audio.go

DESCRIPTION
  Validation of decoded audio headers against the bounds in §4.7/§7, and
  the open question resolved by SPEC_FULL.md §14: a channel count of zero
  is always rejected, regardless of which layout the heuristic selected.
*/

package omt

import "errors"

// ErrAudioHeaderInvalid is returned by ValidateAudioHeader when a decoded
// header falls outside the recognized ranges (§4.7, §7 Audio-invalid-header).
var ErrAudioHeaderInvalid = errors.New("omt: audio header outside recognized ranges")

// ValidateAudioHeader checks h against the receiver-side bounds of §4.7:
// 4000 <= sample_rate <= 192000, 1 <= channels <= 8, samples_per_channel > 0,
// and bits_per_sample in [8,64] once inferred by the caller (FourCCFPA1
// implies 32). Channels == 0 is always rejected per §9's resolved open
// question, independent of the layout the heuristic picked.
func ValidateAudioHeader(h AudioHeader, bitsPerSample int32) error {
	if h.SampleRate < 4000 || h.SampleRate > 192000 {
		return ErrAudioHeaderInvalid
	}
	if h.Channels < 1 || h.Channels > 8 {
		return ErrAudioHeaderInvalid
	}
	if h.SamplesPerChannel <= 0 {
		return ErrAudioHeaderInvalid
	}
	if bitsPerSample < 8 || bitsPerSample > 64 {
		return ErrAudioHeaderInvalid
	}
	return nil
}

// BitsPerSample infers the sample width for a given codec FourCC, per
// §4.7 ("inferring bits_per_sample=32 for FPA1"). FourCCPCM1 (and anything
// else unrecognized) is assumed 16-bit, the only other bit depth this
// core's receiver path handles (§4.7).
func BitsPerSample(fourcc uint32) int32 {
	if fourcc == FourCCFPA1 {
		return 32
	}
	return 16
}
