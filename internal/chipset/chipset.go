package chipset

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Init initializes all registered devices.
func (c *Chipset) Init() error {
	for _, name := range c.deviceNames() {
		if err := c.devices[name].Init(); err != nil {
			return fmt.Errorf("chipset: init device %q: %w", name, err)
		}
	}
	return nil
}

// Reset resets all registered devices.
func (c *Chipset) Reset() error {
	for _, name := range c.deviceNames() {
		if err := c.devices[name].Reset(); err != nil {
			return fmt.Errorf("chipset: reset device %q: %w", name, err)
		}
	}
	return nil
}

// HandleMMIO dispatches an MMIO access to the registered device.
func (c *Chipset) HandleMMIO(addr uint64, data []byte, isWrite bool) error {
	accessEnd := addr + uint64(len(data))
	if accessEnd < addr {
		return fmt.Errorf("chipset: MMIO access overflow at 0x%016x", addr)
	}

	for _, binding := range c.mmio {
		start := binding.region.Address
		end := start + binding.region.Size
		if addr >= start && accessEnd <= end {
			if isWrite {
				return binding.handler.WriteMMIO(addr, data)
			}
			return binding.handler.ReadMMIO(addr, data)
		}
	}

	return fmt.Errorf("chipset: no handler for MMIO address 0x%016x", addr)
}

// Window exposes the bus as a 32-bit register window based at base, the
// shape a device driver expects. A bus fault (unclaimed address, handler
// error) is a wiring bug in the simulation and panics.
func (c *Chipset) Window(base uint64) *Window {
	return &Window{chipset: c, base: base}
}

// Window adapts a Chipset to word-sized register access.
type Window struct {
	chipset *Chipset
	base    uint64
}

// Read32 reads the register at base+offset.
func (w *Window) Read32(offset uint64) uint32 {
	buf := make([]byte, 4)
	if err := w.chipset.HandleMMIO(w.base+offset, buf, false); err != nil {
		panic(fmt.Sprintf("chipset: window read at 0x%x: %v", w.base+offset, err))
	}
	return binary.LittleEndian.Uint32(buf)
}

// Write32 writes the register at base+offset.
func (w *Window) Write32(offset uint64, value uint32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	if err := w.chipset.HandleMMIO(w.base+offset, buf, true); err != nil {
		panic(fmt.Sprintf("chipset: window write at 0x%x: %v", w.base+offset, err))
	}
}

func (c *Chipset) deviceNames() []string {
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
