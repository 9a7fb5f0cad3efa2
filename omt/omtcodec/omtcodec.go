/*
NAME
  omtcodec.go

DESCRIPTION
  omtcodec presents a uniform interface to the optional external VMX codec
  (§4.2, §6.4) and to the built-in NV12->RGBA conversion the receiver uses
  for NV12 streams. The VMX binding itself
  is a build-tag-gated pair of files (vmx_cgo.go / vmx_stub.go) following
  the same release/test split the teacher uses for raspistill and raspivid:
  one implementation talks to the real native library, the other always
  reports Available() == false.
*/

package omtcodec

import "github.com/pkg/errors"

// Profile and color-space constants passed to the external codec on
// creation (§6.4).
const (
	ProfileOMTSQ    = 166
	ColorSpaceBT709 = 709
)

// Handle identifies a created encoder or decoder instance. Its zero value
// is never valid; instances are obtained from NewEncoder/NewDecoder.
type Handle uintptr

var (
	// ErrUnavailable is returned when the external VMX library was not
	// found by the one-shot probe made on first use.
	ErrUnavailable = errors.New("omtcodec: VMX codec library unavailable")

	// ErrCodecFailure wraps an encode/decode failure reported by VMX; the
	// frame should be dropped and the pipeline should continue (§7
	// Codec-failure).
	ErrCodecFailure = errors.New("omtcodec: encode/decode failed")
)

// Available reports whether the external VMX codec library was found and
// loaded; the library is probed once, on first use (§4.2).
func Available() bool { return vmxAvailable() }

// NewEncoder constructs a VMX encoder instance for a fixed frame size.
// threads <= 0 leaves the thread count at the library default.
func NewEncoder(width, height, threads int) (Handle, error) {
	if !Available() {
		return 0, ErrUnavailable
	}
	return vmxCreate(width, height, threads, true)
}

// NewDecoder constructs a VMX decoder instance for a fixed frame size.
func NewDecoder(width, height, threads int) (Handle, error) {
	if !Available() {
		return 0, ErrUnavailable
	}
	return vmxCreate(width, height, threads, false)
}

// Close destroys a codec instance obtained from NewEncoder/NewDecoder.
func Close(h Handle) error { return vmxDestroy(h) }

// Encode compresses one NV12 frame (y/uv planes with their respective
// strides) into out, returning the number of bytes written. out must be
// sized >= width*height*2; Encode performs no allocation (§4.2).
func Encode(h Handle, y []byte, yStride int, uv []byte, uvStride int, out []byte) (int, error) {
	n, err := vmxEncode(h, y, yStride, uv, uvStride, out)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodecFailure.Error())
	}
	return n, nil
}

// Decode loads compressed input and decodes into outRGBA, whose row stride
// must equal width*4. Decode always returns RGBA byte order: a backend
// that naturally produces BGRA must swap channels before returning, which
// the cgo binding in vmx_cgo.go does via SwapBGRA.
func Decode(h Handle, input []byte, outRGBA []byte) error {
	if err := vmxDecode(h, input, outRGBA); err != nil {
		return errors.Wrap(err, ErrCodecFailure.Error())
	}
	return nil
}
