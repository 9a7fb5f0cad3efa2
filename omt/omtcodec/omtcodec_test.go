//go:build !omt_vmx

package omtcodec

import "testing"

// TestUnavailableFallback checks §4.2/§7's Codec-unavailable contract when
// this module is built without the omt_vmx tag: Available reports false
// and every operation fails with ErrUnavailable rather than panicking.
func TestUnavailableFallback(t *testing.T) {
	if Available() {
		t.Fatalf("Available() should be false without the omt_vmx build tag")
	}
	if _, err := NewEncoder(1920, 1080, 0); err != ErrUnavailable {
		t.Errorf("NewEncoder: got %v want %v", err, ErrUnavailable)
	}
	if _, err := NewDecoder(1920, 1080, 0); err != ErrUnavailable {
		t.Errorf("NewDecoder: got %v want %v", err, ErrUnavailable)
	}
}
