package vm

import (
	"coldcore/kernel"
	"coldcore/kernel/mem"
	"coldcore/kernel/mem/pmm"
)

// FillPolicy governs how a VM object's pages are populated and how it
// participates in page-fault handling. Nothing and Scrub embed basePolicy
// to pick up the documented defaults; Inject falls back to the same
// defaults for any callback left nil.
type FillPolicy interface {
	// PopulatePage fills a freshly allocated frame before the mapping is
	// reinstalled with the object's declared permissions.
	PopulatePage(region Region, proc *Process, relIndex uint64, vaddr uintptr, frame pmm.Frame) *kernel.Error

	// RequestsAllPagesFilled reports whether construction should eagerly
	// map every page of the region rather than on demand.
	RequestsAllPagesFilled() bool

	// PageSafelyReleasable reports whether the page at vaddr can be
	// reclaimed without first writing it back anywhere.
	PageSafelyReleasable(vaddr uintptr) bool

	// PageFaultHandler lets the policy participate in page-fault
	// dispatch (e.g. copy-on-write, demand paging beyond the basic
	// demand-mapping algorithm).
	PageFaultHandler(info PageFaultInfo) PageFaultResponse
}

// basePolicy supplies the documented default behavior for every FillPolicy
// callback, so a concrete policy only needs to override what it changes.
type basePolicy struct{}

func (basePolicy) RequestsAllPagesFilled() bool             { return false }
func (basePolicy) PageSafelyReleasable(uintptr) bool         { return false }
func (basePolicy) PageFaultHandler(PageFaultInfo) PageFaultResponse {
	return notAttached()
}

// Nothing leaves newly allocated frames as the allocator returns them
// (zeroed); PopulatePage is a no-op.
type Nothing struct{ basePolicy }

// PopulatePage implements FillPolicy.
func (Nothing) PopulatePage(Region, *Process, uint64, uintptr, pmm.Frame) *kernel.Error {
	return nil
}

// Scrub fills every newly allocated frame with a repeating byte pattern.
type Scrub struct {
	basePolicy
	Byte byte
}

// PopulatePage implements FillPolicy.
func (p Scrub) PopulatePage(_ Region, _ *Process, _ uint64, vaddr uintptr, _ pmm.Frame) *kernel.Error {
	kernel.Memset(vaddr, p.Byte, uintptr(mem.PageSize))
	return nil
}

// Inject delegates every callback to caller-supplied functions, falling
// back to the documented defaults for any left nil.
type Inject struct {
	Populate         func(region Region, proc *Process, relIndex uint64, vaddr uintptr, frame pmm.Frame) *kernel.Error
	AllPagesFilled   func() bool
	SafelyReleasable func(vaddr uintptr) bool
	FaultHandler     func(info PageFaultInfo) PageFaultResponse
}

// PopulatePage implements FillPolicy.
func (p Inject) PopulatePage(region Region, proc *Process, relIndex uint64, vaddr uintptr, frame pmm.Frame) *kernel.Error {
	if p.Populate == nil {
		return nil
	}
	return p.Populate(region, proc, relIndex, vaddr, frame)
}

// RequestsAllPagesFilled implements FillPolicy.
func (p Inject) RequestsAllPagesFilled() bool {
	if p.AllPagesFilled == nil {
		return false
	}
	return p.AllPagesFilled()
}

// PageSafelyReleasable implements FillPolicy.
func (p Inject) PageSafelyReleasable(vaddr uintptr) bool {
	if p.SafelyReleasable == nil {
		return false
	}
	return p.SafelyReleasable(vaddr)
}

// PageFaultHandler implements FillPolicy.
func (p Inject) PageFaultHandler(info PageFaultInfo) PageFaultResponse {
	if p.FaultHandler == nil {
		return notAttached()
	}
	return p.FaultHandler(info)
}
