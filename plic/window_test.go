package plic

import (
	"testing"
	"unsafe"
)

func TestPointerWindow(t *testing.T) {
	// Back the window with ordinary memory; on hardware the base would be
	// the controller's register window.
	backing := make([]uint32, 8)
	w := PointerWindow(uintptr(unsafe.Pointer(&backing[0])))

	w.Write32(4, 0x12345678)
	if backing[1] != 0x12345678 {
		t.Fatalf("backing[1] = 0x%x, want 0x12345678", backing[1])
	}

	backing[3] = 0xcafebabe
	if got := w.Read32(12); got != 0xcafebabe {
		t.Fatalf("Read32(12) = 0x%x, want 0xcafebabe", got)
	}
}
