//go:build linux

package plic

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MappedWindow is a RegisterWindow backed by an mmap of the controller's
// register region from a device file such as /dev/mem. It is the hosted
// access path for boards that expose the PLIC to userspace.
type MappedWindow struct {
	mem []byte
}

// OpenMappedWindow maps size bytes of the device file at the given physical
// base address. The base and size must be page-aligned.
func OpenMappedWindow(path string, base, size uint64) (*MappedWindow, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("plic: open %s: %w", path, err)
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), int64(base), int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("plic: mmap %s at 0x%x: %w", path, base, err)
	}

	return &MappedWindow{mem: mem}, nil
}

// Close unmaps the window. The window must not be used afterwards.
func (w *MappedWindow) Close() error {
	if w.mem == nil {
		return nil
	}
	mem := w.mem
	w.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("plic: munmap: %w", err)
	}
	return nil
}

// Read32 implements RegisterWindow.
func (w *MappedWindow) Read32(offset uint64) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&w.mem[offset])))
}

// Write32 implements RegisterWindow.
func (w *MappedWindow) Write32(offset uint64, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&w.mem[offset])), value)
}

var _ RegisterWindow = (*MappedWindow)(nil)
