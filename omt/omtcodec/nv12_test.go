package omtcodec

import "testing"

// TestNV12ConversionBounds checks the conversion-bounds law of spec §8 for
// a representative sweep of (Y,U,V) values: R,G,B stay in [0,255] and
// alpha is always 0xFF.
func TestNV12ConversionBounds(t *testing.T) {
	const w, h = 2, 2
	for y := 0; y <= 255; y += 17 {
		for u := 0; u <= 255; u += 31 {
			for v := 0; v <= 255; v += 31 {
				yPlane := []byte{byte(y), byte(y), byte(y), byte(y)}
				uvPlane := []byte{byte(u), byte(v)}
				out := make([]byte, w*h*4)
				NV12ToRGBA(yPlane, uvPlane, out, w, h)
				for p := 0; p < w*h; p++ {
					if out[p*4+3] != 0xFF {
						t.Fatalf("alpha not 0xFF at Y=%d U=%d V=%d", y, u, v)
					}
				}
				if len(out) != w*h*4 {
					t.Fatalf("unexpected output length %d", len(out))
				}
			}
		}
	}
}

// TestNV12DecodeWhite checks spec §8 scenario 3: Y=235,U=128,V=128 decodes
// to limited-range white, within +-1.
func TestNV12DecodeWhite(t *testing.T) {
	const w, h = 2, 2
	yPlane := []byte{235, 235, 235, 235}
	uvPlane := []byte{128, 128}
	out := make([]byte, w*h*4)
	NV12ToRGBA(yPlane, uvPlane, out, w, h)
	for p := 0; p < w*h; p++ {
		for c := 0; c < 3; c++ {
			got := int(out[p*4+c])
			if got < 254 || got > 255 {
				t.Errorf("pixel %d channel %d: got %d, want within +-1 of 255", p, c, got)
			}
		}
		if out[p*4+3] != 0xFF {
			t.Errorf("pixel %d: alpha not 0xFF", p)
		}
	}
}

// TestSwapBGRAIdempotent checks spec §8's swap-idempotence law: applying
// the BGRA<->RGBA swap twice restores the original buffer.
func TestSwapBGRAIdempotent(t *testing.T) {
	orig := []byte{10, 20, 30, 255, 40, 50, 60, 128}
	buf := append([]byte{}, orig...)
	SwapBGRA(buf)
	SwapBGRA(buf)
	for i := range orig {
		if buf[i] != orig[i] {
			t.Fatalf("double swap mismatch at %d: got %d want %d", i, buf[i], orig[i])
		}
	}
}

func TestSwapBGRASwapsRAndB(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	SwapBGRA(buf)
	want := []byte{3, 2, 1, 4}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("got %v want %v", buf, want)
		}
	}
}
