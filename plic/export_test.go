package plic

// claim and complete are unexported so callers cannot break the pairing the
// trap path guarantees; the driver-against-model tests still need to reach
// their boundary cases directly.

func (c *Controller) Claim() uint32 { return c.claim() }

func (c *Controller) Complete(src uint32) { c.complete(src) }
