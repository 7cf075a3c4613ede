package plic

import "fmt"

// Register map of the QEMU virt / SiFive PLIC. All offsets are relative to
// the base of the controller's register window.
const (
	DefaultPriorityBase   uint64 = 0x000000 // one word per source (RW)
	DefaultPendingBase    uint64 = 0x001000 // one bit per source (R)
	DefaultEnableBase     uint64 = 0x002000 // one bit per source, per context (RW)
	DefaultEnableShift    uint   = 7        // 0x80 byte stride per context
	DefaultThresholdBase  uint64 = 0x200000 // one word per context (RW)
	DefaultThresholdShift uint   = 12       // 0x1000 byte stride per context
	DefaultClaimBase      uint64 = 0x200004 // claim on read, complete on write (RW)
	DefaultClaimShift     uint   = 12

	DefaultNumSources    uint32 = 127
	DefaultNumPriorities uint32 = 7
)

const wordSize = 4

// Layout describes the geometry of a PLIC register window: how many sources
// and priority levels the controller implements and where each register
// block lives. The values are fixed properties of the target hardware; the
// driver performs no discovery.
type Layout struct {
	// NumSources is the highest valid source index. Source 0 is reserved by
	// the hardware and never used.
	NumSources uint32

	// NumPriorities is the highest priority level the controller implements.
	NumPriorities uint32

	PriorityBase uint64
	PendingBase  uint64

	EnableBase  uint64
	EnableShift uint

	ThresholdBase  uint64
	ThresholdShift uint

	ClaimBase  uint64
	ClaimShift uint
}

// DefaultLayout returns the register map used by QEMU's virt machine and
// SiFive parts.
func DefaultLayout() Layout {
	return Layout{
		NumSources:     DefaultNumSources,
		NumPriorities:  DefaultNumPriorities,
		PriorityBase:   DefaultPriorityBase,
		PendingBase:    DefaultPendingBase,
		EnableBase:     DefaultEnableBase,
		EnableShift:    DefaultEnableShift,
		ThresholdBase:  DefaultThresholdBase,
		ThresholdShift: DefaultThresholdShift,
		ClaimBase:      DefaultClaimBase,
		ClaimShift:     DefaultClaimShift,
	}
}

// Validate checks that the layout is internally consistent.
func (l Layout) Validate() error {
	if l.NumSources == 0 {
		return fmt.Errorf("plic: layout has no interrupt sources")
	}
	if l.NumPriorities == 0 {
		return fmt.Errorf("plic: layout has no priority levels")
	}
	if uint64(1)<<l.EnableShift < uint64(l.NumSources+1+31)/32*wordSize {
		return fmt.Errorf("plic: enable stride 0x%x too small for %d sources", uint64(1)<<l.EnableShift, l.NumSources)
	}
	return nil
}

// WindowSize reports the number of bytes of register window the layout
// occupies for the given number of harts.
func (l Layout) WindowSize(numHarts uint32) uint64 {
	if numHarts == 0 {
		numHarts = 1
	}
	end := l.PriorityBase + uint64(l.NumSources+1)*wordSize
	if e := l.EnableBase + uint64(numHarts)<<l.EnableShift; e > end {
		end = e
	}
	if e := l.ThresholdBase + uint64(numHarts)<<l.ThresholdShift; e > end {
		end = e
	}
	if e := l.ClaimBase + uint64(numHarts-1)<<l.ClaimShift + wordSize; e > end {
		end = e
	}
	return end
}

// priorityOffset returns the offset of the priority word for source src.
func (l Layout) priorityOffset(src uint32) uint64 {
	return l.PriorityBase + uint64(src)*wordSize
}

// enableOffset returns the offset of the enable word holding src's bit for
// the given hart, and the bit position within that word.
func (l Layout) enableOffset(hart, src uint32) (uint64, uint) {
	off := l.EnableBase + uint64(hart)<<l.EnableShift + uint64(src/32)*wordSize
	return off, uint(src % 32)
}

// pendingOffset returns the offset of the pending word holding src's bit.
func (l Layout) pendingOffset(src uint32) (uint64, uint) {
	return l.PendingBase + uint64(src/32)*wordSize, uint(src % 32)
}

// thresholdOffset returns the offset of the given hart's threshold register.
func (l Layout) thresholdOffset(hart uint32) uint64 {
	return l.ThresholdBase + uint64(hart)<<l.ThresholdShift
}

// claimOffset returns the offset of the given hart's claim/complete register.
func (l Layout) claimOffset(hart uint32) uint64 {
	return l.ClaimBase + uint64(hart)<<l.ClaimShift
}
