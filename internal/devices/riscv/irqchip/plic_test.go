package irqchip

import (
	"encoding/binary"
	"testing"

	"github.com/metalbus/plic/plic"
)

const testBase = 0x0c000000

func newTestPLIC(numHarts int) *PLIC {
	return New(testBase, plic.DefaultLayout(), numHarts)
}

func readReg(t *testing.T, p *PLIC, off uint64) uint32 {
	t.Helper()
	buf := make([]byte, 4)
	if err := p.ReadMMIO(testBase+off, buf); err != nil {
		t.Fatalf("read at 0x%x: %v", off, err)
	}
	return binary.LittleEndian.Uint32(buf)
}

func writeReg(t *testing.T, p *PLIC, off uint64, value uint32) {
	t.Helper()
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	if err := p.WriteMMIO(testBase+off, buf); err != nil {
		t.Fatalf("write at 0x%x: %v", off, err)
	}
}

// Register offsets for hart 0 in the default layout.
const (
	threshold0 = 0x200000
	claim0     = 0x200004
	enable0    = 0x2000
)

func priorityOff(src uint32) uint64 { return uint64(src) * 4 }

func armSource(t *testing.T, p *PLIC, src, priority uint32) {
	t.Helper()
	writeReg(t, p, priorityOff(src), priority)
	word := uint64(src / 32 * 4)
	writeReg(t, p, enable0+word, readReg(t, p, enable0+word)|1<<(src%32))
}

func TestClaimArbitration(t *testing.T) {
	p := newTestPLIC(1)

	armSource(t, p, 3, 2)
	armSource(t, p, 5, 7)
	armSource(t, p, 9, 7)
	p.SetIRQ(3, true)
	p.SetIRQ(5, true)
	p.SetIRQ(9, true)

	// Highest priority wins; equal priorities go to the lowest index.
	for _, want := range []uint32{5, 9, 3, 0} {
		if got := readReg(t, p, claim0); got != want {
			t.Fatalf("claim = %d, want %d", got, want)
		}
	}
}

func TestGatewayHoldsClaimedSource(t *testing.T) {
	p := newTestPLIC(1)
	armSource(t, p, 4, 1)

	p.SetIRQ(4, true)
	if got := readReg(t, p, claim0); got != 4 {
		t.Fatalf("claim = %d, want 4", got)
	}

	// The line is still high but the claim holds the gateway shut.
	if got := readReg(t, p, claim0); got != 0 {
		t.Fatalf("claim while outstanding = %d, want 0", got)
	}

	// Completion re-arms the gateway and the request re-pends.
	writeReg(t, p, claim0, 4)
	if got := readReg(t, p, 0x1000); got != 1<<4 {
		t.Fatalf("pending word = 0x%x, want source 4 re-pended", got)
	}
	if got := readReg(t, p, claim0); got != 4 {
		t.Fatalf("claim after completion = %d, want 4", got)
	}
}

func TestLoweredLineClearsPending(t *testing.T) {
	p := newTestPLIC(1)
	armSource(t, p, 4, 1)

	p.SetIRQ(4, true)
	p.SetIRQ(4, false)
	if got := readReg(t, p, claim0); got != 0 {
		t.Fatalf("claim after line lowered = %d, want 0", got)
	}
}

func TestThresholdBoundary(t *testing.T) {
	p := newTestPLIC(1)
	armSource(t, p, 3, 5)
	p.SetIRQ(3, true)

	writeReg(t, p, threshold0, 5)
	if got := readReg(t, p, claim0); got != 0 {
		t.Fatalf("claim with priority == threshold = %d, want 0", got)
	}

	writeReg(t, p, threshold0, 4)
	if got := readReg(t, p, claim0); got != 3 {
		t.Fatalf("claim with priority > threshold = %d, want 3", got)
	}
}

func TestSourceZeroHardwiredDisabled(t *testing.T) {
	p := newTestPLIC(1)

	writeReg(t, p, enable0, 0xffffffff)
	if got := readReg(t, p, enable0); got != 0xfffffffe {
		t.Fatalf("enable word 0 = 0x%x, want bit 0 clear", got)
	}

	// Source 0 has no priority register either.
	writeReg(t, p, priorityOff(0), 7)
	if got := readReg(t, p, priorityOff(0)); got != 0 {
		t.Fatalf("priority 0 = %d, want 0", got)
	}
}

func TestPriorityAndThresholdClamp(t *testing.T) {
	p := newTestPLIC(1)

	writeReg(t, p, priorityOff(3), 100)
	if got := readReg(t, p, priorityOff(3)); got != plic.DefaultNumPriorities {
		t.Fatalf("priority = %d, want clamped to %d", got, plic.DefaultNumPriorities)
	}

	writeReg(t, p, threshold0, 100)
	if got := readReg(t, p, threshold0); got != plic.DefaultNumPriorities {
		t.Fatalf("threshold = %d, want clamped to %d", got, plic.DefaultNumPriorities)
	}
}

func TestReadyLineFollowsClaimableState(t *testing.T) {
	p := newTestPLIC(1)

	var level bool
	p.SetReadyLine(0, levelRecorder{&level})

	armSource(t, p, 6, 2)
	if level {
		t.Fatalf("ready high with no request")
	}

	p.SetIRQ(6, true)
	if !level {
		t.Fatalf("ready low with claimable source")
	}

	if got := readReg(t, p, claim0); got != 6 {
		t.Fatalf("claim = %d, want 6", got)
	}
	if level {
		t.Fatalf("ready high while source is claimed")
	}

	writeReg(t, p, claim0, 6)
	if !level {
		t.Fatalf("ready low after completion with line still high")
	}
}

type levelRecorder struct {
	level *bool
}

func (r levelRecorder) SetLevel(high bool) { *r.level = high }
func (r levelRecorder) PulseInterrupt() {
	r.SetLevel(true)
	r.SetLevel(false)
}

func TestHartEnableIsolation(t *testing.T) {
	p := newTestPLIC(2)

	writeReg(t, p, priorityOff(5), 3)
	// Enable for hart 1 only: hart 1's enable block is one stride up.
	writeReg(t, p, enable0+0x80, 1<<5)
	p.SetIRQ(5, true)

	if got := readReg(t, p, claim0); got != 0 {
		t.Fatalf("hart 0 claim = %d, want 0", got)
	}
	if got := readReg(t, p, claim0+0x1000); got != 5 {
		t.Fatalf("hart 1 claim = %d, want 5", got)
	}
}

type reenteringHook struct {
	p *PLIC
}

func (h reenteringHook) PLICComplete(hart int, src uint32) {
	// Service the device from the completion callback.
	h.p.SetIRQ(src, false)
}

func TestCompletionHookMayReenterModel(t *testing.T) {
	p := newTestPLIC(1)
	p.SetCompletionHook(reenteringHook{p})
	armSource(t, p, 4, 1)

	p.SetIRQ(4, true)
	if got := readReg(t, p, claim0); got != 4 {
		t.Fatalf("claim = %d, want 4", got)
	}

	// Completion re-pends the still-high line first, then the hook lowers
	// it; the request must end up cleared rather than deadlocking.
	writeReg(t, p, claim0, 4)
	if got := readReg(t, p, 0x1000); got != 0 {
		t.Fatalf("pending word = 0x%x, want 0", got)
	}
	if got := readReg(t, p, claim0); got != 0 {
		t.Fatalf("claim after reentrant completion = %d, want 0", got)
	}
}

func TestCompleteWithoutClaimIgnored(t *testing.T) {
	p := newTestPLIC(1)
	armSource(t, p, 4, 1)

	writeReg(t, p, claim0, 4)
	if got := readReg(t, p, 0x1000); got != 0 {
		t.Fatalf("pending word = 0x%x after stray completion, want 0", got)
	}
}

func TestResetClearsConfiguration(t *testing.T) {
	p := newTestPLIC(1)
	armSource(t, p, 4, 1)
	p.SetIRQ(4, true)

	if err := p.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if got := readReg(t, p, priorityOff(4)); got != 0 {
		t.Fatalf("priority survived reset: %d", got)
	}
	if got := readReg(t, p, enable0); got != 0 {
		t.Fatalf("enable word survived reset: 0x%x", got)
	}
	if got := readReg(t, p, claim0); got != 0 {
		t.Fatalf("claim after reset = %d, want 0", got)
	}
}

func TestInvalidAccess(t *testing.T) {
	p := newTestPLIC(1)

	if err := p.ReadMMIO(testBase+0x2, make([]byte, 4)); err == nil {
		t.Fatalf("expected error for unaligned offset")
	}
	if err := p.ReadMMIO(testBase, make([]byte, 2)); err == nil {
		t.Fatalf("expected error for short read")
	}
	if err := p.WriteMMIO(testBase+0x300000, make([]byte, 4)); err == nil {
		t.Fatalf("expected error for offset outside any block")
	}
}
