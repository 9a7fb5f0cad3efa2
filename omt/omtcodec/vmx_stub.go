//go:build !omt_vmx

/*
DESCRIPTION
  vmx_stub.go provides the pure-Go fallback for the VMX codec binding used
  when this module is built without the omt_vmx tag, i.e. without the
  external VMX shared library available at build time. Available always
  reports false and every other call fails with ErrUnavailable, matching
  §4.2's "absence of the library is non-fatal" contract.
*/

package omtcodec

func vmxAvailable() bool { return false }

func vmxCreate(width, height, threads int, encoder bool) (Handle, error) {
	return 0, ErrUnavailable
}

func vmxDestroy(h Handle) error { return ErrUnavailable }

func vmxEncode(h Handle, y []byte, yStride int, uv []byte, uvStride int, out []byte) (int, error) {
	return 0, ErrUnavailable
}

func vmxDecode(h Handle, input []byte, outRGBA []byte) error { return ErrUnavailable }
