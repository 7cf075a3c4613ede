package plic

// RegisterWindow provides 32-bit access to the controller's register
// window. Offsets are byte offsets from the window base and are always
// word-aligned; accesses must reach the device as single, ordered 32-bit
// loads and stores.
//
// The driver computes every offset itself, so implementations are plain
// address plumbing: a raw pointer on bare metal, an mmap of the register
// region on a hosted platform, or a device model in tests.
type RegisterWindow interface {
	Read32(offset uint64) uint32
	Write32(offset uint64, value uint32)
}
