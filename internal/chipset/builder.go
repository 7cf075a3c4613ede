// Package chipset assembles simulated devices into an addressable machine:
// a register bus that dispatches MMIO accesses to the owning device, and
// interrupt-line plumbing between source devices and the interrupt
// controller.
package chipset

import (
	"fmt"

	"github.com/metalbus/plic/internal/hw"
)

// InterruptSink receives level changes for a given interrupt line.
type InterruptSink interface {
	SetIRQ(line uint32, level bool)
}

type mmioBinding struct {
	region  hw.MMIORegion
	handler MmioHandler
}

// Builder registers devices and their intercepts before creating a Chipset.
type Builder struct {
	devices map[string]ChipsetDevice
	mmio    []mmioBinding
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		devices: make(map[string]ChipsetDevice),
	}
}

// RegisterDevice adds a device and wires up its intercepts.
func (b *Builder) RegisterDevice(name string, dev ChipsetDevice) error {
	if name == "" {
		return fmt.Errorf("device name is empty")
	}
	if dev == nil {
		return fmt.Errorf("device %q is nil", name)
	}
	if _, exists := b.devices[name]; exists {
		return fmt.Errorf("device %q already registered", name)
	}

	if intercept := dev.SupportsMmio(); intercept != nil {
		if intercept.Handler == nil {
			return fmt.Errorf("device %q provided MMIO regions with nil handler", name)
		}
		for _, region := range intercept.Regions {
			if err := b.WithMmioRegion(region.Address, region.Size, intercept.Handler); err != nil {
				return fmt.Errorf("device %q: %w", name, err)
			}
		}
	}

	b.devices[name] = dev
	return nil
}

// WithMmioRegion registers a memory-mapped region handler.
func (b *Builder) WithMmioRegion(base, size uint64, handler MmioHandler) error {
	if handler == nil {
		return fmt.Errorf("MMIO handler for region 0x%x size 0x%x is nil", base, size)
	}
	if size == 0 {
		return fmt.Errorf("MMIO region at 0x%x has zero size", base)
	}
	if base+size < base {
		return fmt.Errorf("MMIO region at 0x%x with size 0x%x overflows", base, size)
	}
	for _, existing := range b.mmio {
		if regionsOverlap(base, size, existing.region.Address, existing.region.Size) {
			return fmt.Errorf(
				"MMIO region 0x%x-0x%x overlaps existing region 0x%x-0x%x",
				base, base+size-1, existing.region.Address, existing.region.Address+existing.region.Size-1)
		}
	}

	b.mmio = append(b.mmio, mmioBinding{
		region: hw.MMIORegion{
			Address: base,
			Size:    size,
		},
		handler: handler,
	})
	return nil
}

// Build finalizes the layout and returns the constructed Chipset.
func (b *Builder) Build() (*Chipset, error) {
	devices := make(map[string]ChipsetDevice, len(b.devices))
	for name, dev := range b.devices {
		devices[name] = dev
	}

	mmio := make([]mmioBinding, len(b.mmio))
	copy(mmio, b.mmio)

	return &Chipset{
		devices: devices,
		mmio:    mmio,
	}, nil
}

func regionsOverlap(baseA, sizeA, baseB, sizeB uint64) bool {
	endA := baseA + sizeA
	endB := baseB + sizeB
	return baseA < endB && baseB < endA
}

// Chipset holds the built dispatch tables for simulated devices.
type Chipset struct {
	devices map[string]ChipsetDevice
	mmio    []mmioBinding
}
