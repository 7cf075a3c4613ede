package plic_test

import (
	"testing"

	"github.com/metalbus/plic/internal/chipset"
	"github.com/metalbus/plic/internal/devices/riscv/irqchip"
	"github.com/metalbus/plic/plic"
)

const testBase = 0x0c000000

type completionRecorder struct {
	completes []uint32
}

func (r *completionRecorder) PLICComplete(hart int, src uint32) {
	r.completes = append(r.completes, src)
}

// newSimulatedController wires a driver to the simulated controller the way
// a platform would: through the register bus.
func newSimulatedController(t *testing.T, numHarts int) (*plic.Controller, *irqchip.PLIC, *completionRecorder) {
	t.Helper()

	model := irqchip.New(testBase, plic.DefaultLayout(), numHarts)
	rec := &completionRecorder{}
	model.SetCompletionHook(rec)

	builder := chipset.NewBuilder()
	if err := builder.RegisterDevice("plic", model); err != nil {
		t.Fatalf("register device: %v", err)
	}
	bus, err := builder.Build()
	if err != nil {
		t.Fatalf("build chipset: %v", err)
	}
	if err := bus.Init(); err != nil {
		t.Fatalf("init chipset: %v", err)
	}

	c, err := plic.New(plic.Config{Window: bus.Window(testBase)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, model, rec
}

func TestInitLeavesNothingClaimable(t *testing.T) {
	c, model, _ := newSimulatedController(t, 1)
	c.Init()

	// Even with a line asserted, priority 0 keeps the source unclaimable.
	model.SetIRQ(3, true)
	if src := c.Claim(); src != 0 {
		t.Fatalf("claim after Init = %d, want 0", src)
	}
}

func TestDispatchScenario(t *testing.T) {
	c, model, rec := newSimulatedController(t, 1)

	c.Init()
	c.SetPriority(3, 5)
	c.Enable(3)
	c.SetThreshold(0)

	// The handler services the device, which drops its request line.
	var calls []uint32
	c.SetHandler(3, func(src uint32) {
		calls = append(calls, src)
		model.SetIRQ(src, false)
	})

	model.SetIRQ(3, true)
	if !c.Pending(3) {
		t.Fatalf("source 3 should be pending before the trap")
	}

	c.HandleTrap()

	if len(calls) != 1 || calls[0] != 3 {
		t.Fatalf("handler calls = %v, want [3]", calls)
	}
	if len(rec.completes) != 1 || rec.completes[0] != 3 {
		t.Fatalf("completions = %v, want [3]", rec.completes)
	}
}

func TestThresholdMasksClaim(t *testing.T) {
	c, model, _ := newSimulatedController(t, 1)

	c.Init()
	c.SetPriority(3, 5)
	c.Enable(3)
	model.SetIRQ(3, true)

	// Priority equal to the threshold must not be claimable.
	c.SetThreshold(5)
	if src := c.Claim(); src != 0 {
		t.Fatalf("claim with priority == threshold = %d, want 0", src)
	}

	c.SetThreshold(4)
	if src := c.Claim(); src != 3 {
		t.Fatalf("claim with priority > threshold = %d, want 3", src)
	}
	c.Complete(3)
}

func TestDisableRestoresMaskedState(t *testing.T) {
	c, model, _ := newSimulatedController(t, 1)

	c.Init()
	c.SetPriority(7, 2)
	model.SetIRQ(7, true)

	if src := c.Claim(); src != 0 {
		t.Fatalf("claim before enable = %d, want 0", src)
	}

	c.Enable(7)
	c.Disable(7)

	if src := c.Claim(); src != 0 {
		t.Fatalf("claim after enable/disable pair = %d, want 0", src)
	}
}

func TestClaimMasksUntilComplete(t *testing.T) {
	c, model, _ := newSimulatedController(t, 1)

	c.Init()
	c.SetPriority(9, 1)
	c.Enable(9)
	model.SetIRQ(9, true)

	if src := c.Claim(); src != 9 {
		t.Fatalf("first claim = %d, want 9", src)
	}
	// Claimed and not completed: the line is still high but the gateway
	// holds the source back, from every hart.
	if src := c.Claim(); src != 0 {
		t.Fatalf("claim while outstanding = %d, want 0", src)
	}

	c.Complete(9)
	if src := c.Claim(); src != 9 {
		t.Fatalf("claim after completion with line high = %d, want 9", src)
	}
}

func TestHartsAreIndependent(t *testing.T) {
	model := irqchip.New(testBase, plic.DefaultLayout(), 2)
	builder := chipset.NewBuilder()
	if err := builder.RegisterDevice("plic", model); err != nil {
		t.Fatalf("register device: %v", err)
	}
	bus, err := builder.Build()
	if err != nil {
		t.Fatalf("build chipset: %v", err)
	}

	window := bus.Window(testBase)
	harts := make([]*plic.Controller, 2)
	for i := range harts {
		id := uint32(i)
		c, err := plic.New(plic.Config{Window: window, HartID: func() uint32 { return id }})
		if err != nil {
			t.Fatalf("New hart %d: %v", i, err)
		}
		c.Init()
		harts[i] = c
	}

	// Enabled and prioritized for hart 1 only.
	harts[1].SetPriority(5, 3)
	harts[1].Enable(5)
	model.SetIRQ(5, true)

	if src := harts[0].Claim(); src != 0 {
		t.Fatalf("hart 0 claim = %d, want 0", src)
	}
	if src := harts[1].Claim(); src != 5 {
		t.Fatalf("hart 1 claim = %d, want 5", src)
	}
	harts[1].Complete(5)
}
