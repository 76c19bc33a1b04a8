// Package pmm defines the physical frame number type shared by the frame
// allocator, the hardware page table entries and the VMM.
package pmm

import (
	"math"

	"coldcore/kernel/mem"
)

// Frame describes a physical memory page index (a 4 KiB-aligned physical
// frame identified by its frame number).
type Frame uintptr

// InvalidFrame is returned by allocators when they fail to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is not the sentinel InvalidFrame value.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the start of this frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FromAddress returns the Frame that contains the given physical address,
// rounding down if the address is not page-aligned.
func FromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> mem.PageShift)
}
