// Package hw defines the contracts simulated hardware devices implement.
package hw

import "fmt"

// Device is the base interface for simulated devices.
type Device interface {
	// Init prepares the device before the simulation starts.
	Init() error
}

// MMIORegion describes one memory-mapped register region.
type MMIORegion struct {
	Address uint64
	Size    uint64
}

// MemoryMappedIODevice is a device reached through memory-mapped registers.
// Addresses passed to ReadMMIO and WriteMMIO are absolute; the device
// subtracts its own base.
type MemoryMappedIODevice interface {
	Device

	MMIORegions() []MMIORegion

	ReadMMIO(addr uint64, data []byte) error
	WriteMMIO(addr uint64, data []byte) error
}

// SimpleMMIODevice adapts plain functions to MemoryMappedIODevice.
type SimpleMMIODevice struct {
	Regions []MMIORegion

	ReadFunc  func(addr uint64, data []byte) error
	WriteFunc func(addr uint64, data []byte) error
}

func (d SimpleMMIODevice) MMIORegions() []MMIORegion { return d.Regions }
func (d SimpleMMIODevice) ReadMMIO(addr uint64, data []byte) error {
	if d.ReadFunc != nil {
		return d.ReadFunc(addr, data)
	}
	return fmt.Errorf("unhandled read from MMIO address 0x%X", addr)
}
func (d SimpleMMIODevice) WriteMMIO(addr uint64, data []byte) error {
	if d.WriteFunc != nil {
		return d.WriteFunc(addr, data)
	}
	return fmt.Errorf("unhandled write to MMIO address 0x%X", addr)
}
func (d SimpleMMIODevice) Init() error { return nil }

var _ MemoryMappedIODevice = SimpleMMIODevice{}
