package plic

import (
	"sync/atomic"
	"unsafe"
)

// PointerWindow is a RegisterWindow over an already-mapped register window
// starting at a raw base address. It is the bare-metal access path: the
// platform supplies the physical (or identity-mapped) base of the PLIC and
// the driver's computed offsets land directly on the device registers.
//
// Accesses use atomic 32-bit loads and stores so each register access is a
// single ordered word operation.
type PointerWindow uintptr

// Read32 implements RegisterWindow.
func (w PointerWindow) Read32(offset uint64) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(uintptr(w) + uintptr(offset))))
}

// Write32 implements RegisterWindow.
func (w PointerWindow) Write32(offset uint64, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(uintptr(w)+uintptr(offset))), value)
}

var _ RegisterWindow = PointerWindow(0)
