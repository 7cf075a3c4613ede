// Package plic drives a RISC-V Platform-Level Interrupt Controller.
//
// The PLIC aggregates external interrupt sources, applies a per-source
// priority and a per-hart threshold, and hands each hart at most one claimed
// interrupt at a time. A Controller wraps the controller's register window
// for one calling context: configuration calls run from normal execution,
// and HandleTrap is wired into the platform's external-interrupt trap
// vector.
//
// Source and priority counts and the register map are fixed properties of
// the target hardware, described by a Layout. The driver performs no
// discovery and no locking; see the field comments on Config for the
// concurrency contract.
package plic

import "fmt"

// Handler services one interrupt source. It is invoked from trap context
// with the source index it was registered for.
type Handler func(src uint32)

// Config describes the controller a Controller drives.
type Config struct {
	// Window is the controller's register window. Required.
	Window RegisterWindow

	// Layout is the register map. The zero value selects DefaultLayout.
	Layout Layout

	// HartID returns the identifier of the calling hart, typically read
	// from mhartid by the platform. Every per-hart register access calls
	// it, so configuration and trap handling may run on different harts.
	// Nil means hart 0.
	HartID func() uint32
}

// Controller drives one PLIC.
//
// Per-hart registers (enable bits, threshold, claim/complete) are disjoint
// between harts, so concurrent configuration from different harts does not
// contend. The priority registers and the handler table are shared across
// harts with no locking: the platform is expected to perform configuration
// and registration once, on one hart, before enabling the sources involved.
type Controller struct {
	win    RegisterWindow
	layout Layout
	hartID func() uint32

	// handlers has one slot per source index including the reserved slot 0,
	// which is never registered. Dispatch indexes it unchecked.
	handlers []Handler
}

// New builds a Controller over the given register window. It touches no
// hardware; call Init to quiesce the controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Window == nil {
		return nil, fmt.Errorf("plic: config has no register window")
	}
	layout := cfg.Layout
	if layout == (Layout{}) {
		layout = DefaultLayout()
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	hartID := cfg.HartID
	if hartID == nil {
		hartID = func() uint32 { return 0 }
	}
	return &Controller{
		win:      cfg.Window,
		layout:   layout,
		hartID:   hartID,
		handlers: make([]Handler, layout.NumSources+1),
	}, nil
}

// Layout returns the register map the controller was built with.
func (c *Controller) Layout() Layout {
	return c.layout
}

// Init brings the controller to a quiescent state for the calling hart:
// every source disabled with priority 0 and the hart's threshold at 0.
// Nothing is claimable until application code re-enables and re-prioritizes
// sources. Must run before any other operation on a given hart; running it
// again resets that hart's configuration.
func (c *Controller) Init() {
	for src := uint32(1); src <= c.layout.NumSources; src++ {
		c.Disable(src)
		c.SetPriority(src, 0)
	}
	c.SetThreshold(0)
}

// Enable sets the enable bit for src in the calling hart's enable vector.
// Enabling an already-enabled source is a no-op. Panics if src is 0 or
// above the layout's source count.
func (c *Controller) Enable(src uint32) {
	c.mustSource(src)
	off, bit := c.layout.enableOffset(c.hartID(), src)
	c.win.Write32(off, c.win.Read32(off)|1<<bit)
}

// Disable clears the enable bit for src in the calling hart's enable
// vector. Symmetric to Enable; idempotent.
func (c *Controller) Disable(src uint32) {
	c.mustSource(src)
	off, bit := c.layout.enableOffset(c.hartID(), src)
	c.win.Write32(off, c.win.Read32(off)&^(1<<bit))
}

// SetPriority writes src's priority register, shared by all harts. Priority
// 0 disables the source regardless of its enable bit. Panics if src is 0 or
// above the layout's source count.
func (c *Controller) SetPriority(src, priority uint32) {
	c.mustSource(src)
	c.win.Write32(c.layout.priorityOffset(src), priority)
}

// SetThreshold writes the calling hart's threshold register. Sources with
// priority at or below the threshold are masked for this hart. Out-of-range
// levels are left to the hardware to clamp.
func (c *Controller) SetThreshold(level uint32) {
	c.win.Write32(c.layout.thresholdOffset(c.hartID()), level)
}

// Pending reports whether src is pending delivery. The pending bits are
// maintained by the hardware; this is a diagnostic read, not part of the
// claim flow. Panics if src is 0 or above the layout's source count.
func (c *Controller) Pending(src uint32) bool {
	c.mustSource(src)
	off, bit := c.layout.pendingOffset(src)
	return c.win.Read32(off)&(1<<bit) != 0
}

// SetHandler stores fn in the dispatch table slot for src, replacing any
// previous handler. Registration does not touch the enable bit or priority:
// a source must be registered, enabled and prioritized above the hart's
// threshold before it is delivered. Panics if src is 0 or above the
// layout's source count.
//
// The table is shared and unlocked; complete registration before enabling
// the source, or serialize against dispatch externally.
func (c *Controller) SetHandler(src uint32, fn Handler) {
	c.mustSource(src)
	c.handlers[src] = fn
}

// HandleTrap is the external-interrupt trap entry point: it claims the
// highest-priority pending source for the calling hart, invokes its
// handler, and completes the claim. Wire it directly into the platform's
// trap vector; calling it outside trap context races with hardware claim
// state.
func (c *Controller) HandleTrap() {
	src := c.claim()

	// No handler check: an unregistered claimed source is a configuration
	// bug, and the nil call crashes hard rather than costing a branch here.
	c.handlers[src](src)

	c.complete(src)
}

// claim atomically selects the highest-priority pending enabled source
// above the calling hart's threshold, marks it claimed, and returns its
// index. Returns 0 if nothing is pending. The selection happens in the
// hardware as a side effect of the register read.
func (c *Controller) claim() uint32 {
	return c.win.Read32(c.layout.claimOffset(c.hartID()))
}

// complete signals that servicing of src has finished and the source may be
// reported as pending again. Must be called exactly once per successful
// claim, with the claimed index; HandleTrap guarantees the pairing by
// holding the index across the handler call.
func (c *Controller) complete(src uint32) {
	c.win.Write32(c.layout.claimOffset(c.hartID()), src)
}

// mustSource panics unless src is a configurable source index. Source 0 is
// reserved by the hardware.
func (c *Controller) mustSource(src uint32) {
	if src == 0 || src > c.layout.NumSources {
		panic(fmt.Sprintf("plic: source %d out of range [1, %d]", src, c.layout.NumSources))
	}
}
