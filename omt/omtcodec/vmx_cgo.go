//go:build omt_vmx

/*
DESCRIPTION
  vmx_cgo.go binds to the external VMX codec shared library (§6.4) via
  dlopen/dlsym, following the "lazily loaded optional codec" design note
  in spec.md §9: a one-shot probe at first use caches function pointers
  and an availability flag, with no static linkage to the codec required.
*/

package omtcodec

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <string.h>

typedef void* vmx_handle;

typedef vmx_handle (*vmx_create_fn)(int, int, int);
typedef void        (*vmx_destroy_fn)(vmx_handle);
typedef int         (*vmx_encode_nv12_fn)(vmx_handle, const unsigned char*, int, const unsigned char*, int, int);
typedef int         (*vmx_save_to_fn)(vmx_handle, unsigned char*, int);
typedef int         (*vmx_load_from_fn)(vmx_handle, const unsigned char*, int);
typedef int         (*vmx_decode_bgra_fn)(vmx_handle, unsigned char*, int);
typedef int         (*vmx_get_threads_fn)(vmx_handle);
typedef void        (*vmx_set_threads_fn)(vmx_handle, int);

static void *vmx_lib = NULL;
static vmx_create_fn       p_vmx_create;
static vmx_destroy_fn      p_vmx_destroy;
static vmx_encode_nv12_fn  p_vmx_encode_nv12;
static vmx_save_to_fn      p_vmx_save_to;
static vmx_load_from_fn    p_vmx_load_from;
static vmx_decode_bgra_fn  p_vmx_decode_bgra;
static vmx_get_threads_fn  p_vmx_get_threads;
static vmx_set_threads_fn  p_vmx_set_threads;

static int vmx_probe(void) {
	if (vmx_lib != NULL) {
		return 1;
	}
	vmx_lib = dlopen("libvmx.so", RTLD_NOW | RTLD_GLOBAL);
	if (vmx_lib == NULL) {
		return 0;
	}
	p_vmx_create       = (vmx_create_fn)dlsym(vmx_lib, "create");
	p_vmx_destroy      = (vmx_destroy_fn)dlsym(vmx_lib, "destroy");
	p_vmx_encode_nv12  = (vmx_encode_nv12_fn)dlsym(vmx_lib, "encode_nv12");
	p_vmx_save_to      = (vmx_save_to_fn)dlsym(vmx_lib, "save_to");
	p_vmx_load_from    = (vmx_load_from_fn)dlsym(vmx_lib, "load_from");
	p_vmx_decode_bgra  = (vmx_decode_bgra_fn)dlsym(vmx_lib, "decode_bgra");
	p_vmx_get_threads  = (vmx_get_threads_fn)dlsym(vmx_lib, "get_threads");
	p_vmx_set_threads  = (vmx_set_threads_fn)dlsym(vmx_lib, "set_threads");
	if (!p_vmx_create || !p_vmx_destroy || !p_vmx_encode_nv12 || !p_vmx_save_to ||
	    !p_vmx_load_from || !p_vmx_decode_bgra) {
		dlclose(vmx_lib);
		vmx_lib = NULL;
		return 0;
	}
	return 1;
}

static vmx_handle vmx_do_create(int size, int profile, int colorspace) {
	return p_vmx_create(size, profile, colorspace);
}

static void vmx_do_destroy(vmx_handle h) {
	p_vmx_destroy(h);
}

static int vmx_do_encode_nv12(vmx_handle h, const unsigned char *y, int ystride,
                               const unsigned char *uv, int uvstride, int interlaced) {
	return p_vmx_encode_nv12(h, y, ystride, uv, uvstride, interlaced);
}

static int vmx_do_save_to(vmx_handle h, unsigned char *dst, int max_len) {
	return p_vmx_save_to(h, dst, max_len);
}

static int vmx_do_load_from(vmx_handle h, const unsigned char *data, int len) {
	return p_vmx_load_from(h, data, len);
}

static int vmx_do_decode_bgra(vmx_handle h, unsigned char *dst, int stride) {
	return p_vmx_decode_bgra(h, dst, stride);
}

static void vmx_do_set_threads(vmx_handle h, int n) {
	if (p_vmx_set_threads != NULL) {
		p_vmx_set_threads(h, n);
	}
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

var (
	probeOnce      sync.Once
	probeAvailable bool

	dimsMu sync.Mutex
	dims   = map[Handle][2]int{}
)

func probe() bool {
	probeOnce.Do(func() {
		probeAvailable = C.vmx_probe() == 1
	})
	return probeAvailable
}

func vmxAvailable() bool { return probe() }

// size packs width/height the way VMX's create() expects a single
// "size" selector rather than independent width/height arguments;
// see §6.4. Values outside the library's known presets still round-trip
// through this encoding since VMX treats it as an opaque token matched
// against its own table.
func packSize(width, height int) C.int {
	return C.int(width<<16 | (height & 0xFFFF))
}

func vmxCreate(width, height, threads int, encoder bool) (Handle, error) {
	if !probe() {
		return 0, ErrUnavailable
	}
	h := C.vmx_do_create(packSize(width, height), C.int(ProfileOMTSQ), C.int(ColorSpaceBT709))
	if h == nil {
		return 0, fmt.Errorf("omtcodec: vmx create failed for %dx%d", width, height)
	}
	if threads > 0 {
		C.vmx_do_set_threads(h, C.int(threads))
	}
	handle := Handle(uintptr(h))
	dimsMu.Lock()
	dims[handle] = [2]int{width, height}
	dimsMu.Unlock()
	return handle, nil
}

func vmxDestroy(h Handle) error {
	if !probe() {
		return ErrUnavailable
	}
	C.vmx_do_destroy(C.vmx_handle(uintptr(h)))
	dimsMu.Lock()
	delete(dims, h)
	dimsMu.Unlock()
	return nil
}

func vmxEncode(h Handle, y []byte, yStride int, uv []byte, uvStride int, out []byte) (int, error) {
	if !probe() {
		return 0, ErrUnavailable
	}
	rc := C.vmx_do_encode_nv12(
		C.vmx_handle(uintptr(h)),
		(*C.uchar)(unsafe.Pointer(&y[0])), C.int(yStride),
		(*C.uchar)(unsafe.Pointer(&uv[0])), C.int(uvStride),
		0,
	)
	if rc != 0 {
		return 0, fmt.Errorf("omtcodec: encode_nv12 returned %d", rc)
	}
	n := C.vmx_do_save_to(C.vmx_handle(uintptr(h)), (*C.uchar)(unsafe.Pointer(&out[0])), C.int(len(out)))
	if n < 0 {
		return 0, fmt.Errorf("omtcodec: save_to returned %d", n)
	}
	return int(n), nil
}

func vmxDecode(h Handle, input []byte, outRGBA []byte) error {
	if !probe() {
		return ErrUnavailable
	}
	rc := C.vmx_do_load_from(C.vmx_handle(uintptr(h)), (*C.uchar)(unsafe.Pointer(&input[0])), C.int(len(input)))
	if rc != 0 {
		return fmt.Errorf("omtcodec: load_from returned %d", rc)
	}
	dimsMu.Lock()
	wh, ok := dims[h]
	dimsMu.Unlock()
	if !ok {
		return fmt.Errorf("omtcodec: decode called on handle with no known dimensions")
	}
	stride := wh[0] * 4
	rc = C.vmx_do_decode_bgra(C.vmx_handle(uintptr(h)), (*C.uchar)(unsafe.Pointer(&outRGBA[0])), C.int(stride))
	if rc != 0 {
		return fmt.Errorf("omtcodec: decode_bgra returned %d", rc)
	}
	SwapBGRA(outRGBA)
	return nil
}
