// Package vm implements the virtual memory manager layer: VM objects with
// pluggable fill policies, and the process-level object list and page-fault
// dispatcher built on top of the paging package.
package vm

import "coldcore/kernel/mem"

// Region describes a page-aligned, contiguous range of virtual address
// space as a base virtual address and a page count.
type Region struct {
	Base  uintptr
	Pages uint64
}

// End returns the address one byte past the end of the region.
func (r Region) End() uintptr {
	return r.Base + uintptr(r.Pages)*uintptr(mem.PageSize)
}

// Contains reports whether vaddr falls inside the region.
func (r Region) Contains(vaddr uintptr) bool {
	return vaddr >= r.Base && vaddr < r.End()
}

// Overlaps reports whether r and other share any page.
func (r Region) Overlaps(other Region) bool {
	return r.Base < other.End() && other.Base < r.End()
}

// pageIndex returns vaddr's offset from the region's base, in pages. The
// caller must ensure vaddr lies within the region.
func (r Region) pageIndex(vaddr uintptr) uint64 {
	return uint64(vaddr-r.Base) / uint64(mem.PageSize)
}
