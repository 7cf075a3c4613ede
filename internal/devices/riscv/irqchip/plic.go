// Package irqchip provides a device model of the RISC-V platform-level
// interrupt controller for driver tests and platform bring-up.
package irqchip

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/metalbus/plic/internal/chipset"
	"github.com/metalbus/plic/internal/hw"
	"github.com/metalbus/plic/plic"
)

// DefaultBaseAddress is where QEMU's virt machine places the PLIC.
const DefaultBaseAddress uint64 = 0x0c000000

const wordSize = 4

// CompletionHook is notified when a hart completes a claimed source.
type CompletionHook interface {
	PLICComplete(hart int, src uint32)
}

type plicStats struct {
	claims    uint64
	spurious  uint64
	completes uint64
	perSource []uint64
}

// PLIC models the platform-level interrupt controller: per-source priority
// and gateway state shared by all harts, and per-hart enable bits, a
// threshold, and a claim/complete register. Input lines are level
// sensitive; a claim masks the source everywhere until the claiming hart
// completes it.
type PLIC struct {
	mu sync.Mutex

	base   uint64
	layout plic.Layout

	priorities []uint32
	pending    []uint32
	claimed    []uint32
	lines      []bool

	harts []*hartContext

	hook   CompletionHook
	notify []func()
	stats  plicStats
}

type hartContext struct {
	enable    []uint32
	threshold uint32
	ready     chipset.LineInterrupt
}

// New builds a PLIC at the given base address with one context per hart.
func New(base uint64, layout plic.Layout, numHarts int) *PLIC {
	if numHarts <= 0 {
		numHarts = 1
	}
	words := int(layout.NumSources/32) + 1
	p := &PLIC{
		base:       base,
		layout:     layout,
		priorities: make([]uint32, layout.NumSources+1),
		pending:    make([]uint32, words),
		claimed:    make([]uint32, words),
		lines:      make([]bool, layout.NumSources+1),
		harts:      make([]*hartContext, numHarts),
	}
	for i := range p.harts {
		p.harts[i] = &hartContext{
			enable: make([]uint32, words),
			ready:  chipset.LineInterruptDetached(),
		}
	}
	return p
}

// Init implements hw.Device.
func (p *PLIC) Init() error { return nil }

// Reset implements chipset.ChipsetDevice, returning the controller to its
// power-on state. Input line levels are preserved; latched requests are not.
func (p *PLIC) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.priorities {
		p.priorities[i] = 0
	}
	for i := range p.pending {
		p.pending[i] = 0
		p.claimed[i] = 0
	}
	for _, hart := range p.harts {
		for i := range hart.enable {
			hart.enable[i] = 0
		}
		hart.threshold = 0
	}
	p.stats = plicStats{}
	p.syncOutputsLocked()
	return nil
}

// SupportsMmio implements chipset.ChipsetDevice.
func (p *PLIC) SupportsMmio() *chipset.MmioIntercept {
	return &chipset.MmioIntercept{
		Regions: p.MMIORegions(),
		Handler: p,
	}
}

// MMIORegions implements hw.MemoryMappedIODevice.
func (p *PLIC) MMIORegions() []hw.MMIORegion {
	return []hw.MMIORegion{
		{Address: p.base, Size: p.layout.WindowSize(uint32(len(p.harts)))},
	}
}

// SetReadyLine wires hart's external-interrupt-pending output. The level is
// high whenever the hart has a claimable source.
func (p *PLIC) SetReadyLine(hart int, line chipset.LineInterrupt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hart < 0 || hart >= len(p.harts) {
		return
	}
	if line == nil {
		line = chipset.LineInterruptDetached()
	}
	p.harts[hart].ready = line
	p.syncOutputsLocked()
}

// SetCompletionHook installs a hook invoked when a claim is completed. The
// hook runs with the model unlocked and may call back into it.
func (p *PLIC) SetCompletionHook(hook CompletionHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = hook
}

// SetIRQ changes the level of a given input line. It implements
// chipset.InterruptSink so source devices can be wired through a LineSet.
func (p *PLIC) SetIRQ(line uint32, level bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if line == 0 || line > p.layout.NumSources {
		return
	}
	p.lines[line] = level
	word, bit := line/32, line%32
	if level {
		// The gateway holds a claimed source until completion.
		if p.claimed[word]&(1<<bit) == 0 {
			p.pending[word] |= 1 << bit
		}
	} else {
		p.pending[word] &^= 1 << bit
	}
	p.syncOutputsLocked()
}

// ReadMMIO implements hw.MemoryMappedIODevice.
func (p *PLIC) ReadMMIO(addr uint64, data []byte) error {
	if len(data) != wordSize {
		return fmt.Errorf("plic: invalid read size %d", len(data))
	}
	off := addr - p.base

	p.mu.Lock()
	value, err := p.readRegisterLocked(off)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(data, value)
	return nil
}

// WriteMMIO implements hw.MemoryMappedIODevice.
func (p *PLIC) WriteMMIO(addr uint64, data []byte) error {
	if len(data) != wordSize {
		return fmt.Errorf("plic: invalid write size %d", len(data))
	}
	off := addr - p.base
	value := binary.LittleEndian.Uint32(data)

	p.mu.Lock()
	err := p.writeRegisterLocked(off, value)
	notify := p.notify
	p.notify = nil
	p.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return err
}

func (p *PLIC) readRegisterLocked(off uint64) (uint32, error) {
	l := p.layout

	if src, ok := wordIndex(off, l.PriorityBase, uint64(l.NumSources+1)*wordSize); ok {
		return p.priorities[src], nil
	}
	if word, ok := wordIndex(off, l.PendingBase, uint64(len(p.pending))*wordSize); ok {
		return p.pending[word], nil
	}
	if hart, rem, ok := p.hartBlock(off, l.EnableBase, l.EnableShift); ok {
		if word, ok := wordIndex(rem, 0, uint64(len(p.harts[hart].enable))*wordSize); ok {
			return p.harts[hart].enable[word], nil
		}
	}
	if hart, rem, ok := p.hartBlock(off, l.ThresholdBase, l.ThresholdShift); ok && rem == 0 {
		return p.harts[hart].threshold, nil
	}
	if hart, rem, ok := p.hartBlock(off, l.ClaimBase, l.ClaimShift); ok && rem == 0 {
		return p.claimLocked(hart), nil
	}
	return 0, fmt.Errorf("plic: invalid read offset 0x%x", off)
}

func (p *PLIC) writeRegisterLocked(off uint64, value uint32) error {
	l := p.layout

	if src, ok := wordIndex(off, l.PriorityBase, uint64(l.NumSources+1)*wordSize); ok {
		// Hardware clamps to the implemented priority range; source 0 has
		// no priority register.
		if src != 0 {
			p.priorities[src] = min(value, l.NumPriorities)
		}
		p.syncOutputsLocked()
		return nil
	}
	if hart, rem, ok := p.hartBlock(off, l.EnableBase, l.EnableShift); ok {
		if word, ok := wordIndex(rem, 0, uint64(len(p.harts[hart].enable))*wordSize); ok {
			if word == 0 {
				// Source 0 is hardwired disabled.
				value &^= 1
			}
			p.harts[hart].enable[word] = value
			p.syncOutputsLocked()
			return nil
		}
	}
	if hart, rem, ok := p.hartBlock(off, l.ThresholdBase, l.ThresholdShift); ok && rem == 0 {
		p.harts[hart].threshold = min(value, l.NumPriorities)
		p.syncOutputsLocked()
		return nil
	}
	if hart, rem, ok := p.hartBlock(off, l.ClaimBase, l.ClaimShift); ok && rem == 0 {
		p.completeLocked(hart, value)
		return nil
	}
	return fmt.Errorf("plic: invalid write offset 0x%x", off)
}

// claimLocked selects the best claimable source for hart, latches the
// claim, and returns the source index, or 0 when nothing is claimable.
func (p *PLIC) claimLocked(hart int) uint32 {
	src := p.bestClaimableLocked(hart)
	if src == 0 {
		p.stats.spurious++
		return 0
	}
	word, bit := src/32, src%32
	p.pending[word] &^= 1 << bit
	p.claimed[word] |= 1 << bit
	p.stats.claims++
	p.statPerSourceLocked(src)
	p.syncOutputsLocked()
	return src
}

// completeLocked releases a claimed source. Completions for sources that
// were never claimed are ignored, as in hardware.
func (p *PLIC) completeLocked(hart int, src uint32) {
	if src == 0 || src > p.layout.NumSources {
		return
	}
	word, bit := src/32, src%32
	if p.claimed[word]&(1<<bit) == 0 {
		return
	}
	p.claimed[word] &^= 1 << bit
	if p.lines[src] {
		// Level-sensitive gateway: the request re-pends immediately.
		p.pending[word] |= 1 << bit
	}
	p.stats.completes++
	p.syncOutputsLocked()
	if hook := p.hook; hook != nil {
		// Run the hook after the lock is dropped so it may call back into
		// the model.
		p.notify = append(p.notify, func() { hook.PLICComplete(hart, src) })
	}
}

// bestClaimableLocked returns the pending, enabled source with the highest
// priority strictly above hart's threshold. Ties go to the lowest index.
func (p *PLIC) bestClaimableLocked(hart int) uint32 {
	ctx := p.harts[hart]
	var best, bestPrio uint32
	for src := uint32(1); src <= p.layout.NumSources; src++ {
		word, bit := src/32, src%32
		if p.pending[word]&(1<<bit) == 0 {
			continue
		}
		if ctx.enable[word]&(1<<bit) == 0 {
			continue
		}
		prio := p.priorities[src]
		if prio <= ctx.threshold {
			continue
		}
		if prio > bestPrio {
			best, bestPrio = src, prio
		}
	}
	return best
}

func (p *PLIC) syncOutputsLocked() {
	for hart, ctx := range p.harts {
		ctx.ready.SetLevel(p.bestClaimableLocked(hart) != 0)
	}
}

func (p *PLIC) statPerSourceLocked(src uint32) {
	if p.stats.perSource == nil {
		p.stats.perSource = make([]uint64, p.layout.NumSources+1)
	}
	p.stats.perSource[src]++
}

func (p *PLIC) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("PLIC(sources=%d, harts=%d, claims=%d, completes=%d)",
		p.layout.NumSources, len(p.harts), p.stats.claims, p.stats.completes)
}

// hartBlock resolves off into a per-hart register block: which hart's block
// it falls in and the remainder within that block.
func (p *PLIC) hartBlock(off, base uint64, shift uint) (int, uint64, bool) {
	if off < base {
		return 0, 0, false
	}
	hart := (off - base) >> shift
	if hart >= uint64(len(p.harts)) {
		return 0, 0, false
	}
	return int(hart), off - base - hart<<shift, true
}

// wordIndex resolves off into a word index within [base, base+size).
func wordIndex(off, base, size uint64) (uint32, bool) {
	if off < base || off >= base+size || (off-base)%wordSize != 0 {
		return 0, false
	}
	return uint32((off - base) / wordSize), true
}

var (
	_ hw.MemoryMappedIODevice = (*PLIC)(nil)
	_ chipset.ChipsetDevice   = (*PLIC)(nil)
	_ chipset.InterruptSink   = (*PLIC)(nil)
)
