package vm

import (
	"sync"

	"coldcore/kernel"
	"coldcore/kernel/mem"
	"coldcore/kernel/mem/pmm"
	"coldcore/kernel/mem/pmm/allocator"
	"coldcore/kernel/paging"
)

var (
	// ErrOutsideRegion is returned when a demand-mapping request targets
	// an address outside the object's region.
	ErrOutsideRegion = &kernel.Error{Module: "vm", Message: "address does not fall inside this object's region"}

	// ErrOverlappingRegion is returned when inserting a VM object whose
	// region intersects one already owned by the process.
	ErrOverlappingRegion = &kernel.Error{Module: "vm", Message: "region overlaps an existing VM object"}
)

// kernelFillPerm is the permissive, kernel-only permission set a page is
// mapped with while its contents are being populated, before being
// reinstalled with the object's declared (possibly more restrictive or
// user-accessible) permissions.
const kernelFillPerm = paging.PermRead | paging.PermWrite

// Object is a VM object: a region of virtual address space, a permission
// set, and a fill policy governing how its pages are populated.
type Object struct {
	mu     sync.Mutex
	region Region
	perm   paging.Perm
	policy FillPolicy

	root  *paging.Root
	alloc *allocator.Allocator
	proc  *Process

	// mapped tracks, by page index relative to region.Base, which frame
	// backs each page this object has demand-mapped.
	mapped map[uint64]pmm.Frame
}

// NewObject constructs a VM object covering region with the given
// permissions and fill policy, owned by proc. If the policy requests all
// pages filled, every page in the region is demand-mapped immediately; proc
// must already be set at that point since a fill policy's PopulatePage
// callback is allowed to use it (e.g. to reach proc.Allocator()/proc.Root()
// for objects that need more than their own frame).
func NewObject(region Region, perm paging.Perm, policy FillPolicy, root *paging.Root, alloc *allocator.Allocator, proc *Process) (*Object, *kernel.Error) {
	obj := &Object{
		region: region,
		perm:   perm,
		policy: policy,
		root:   root,
		alloc:  alloc,
		proc:   proc,
		mapped: make(map[uint64]pmm.Frame),
	}

	if policy.RequestsAllPagesFilled() {
		for i := uint64(0); i < region.Pages; i++ {
			vaddr := region.Base + uintptr(i)*uintptr(mem.PageSize)
			if err := obj.MapPage(vaddr); err != nil {
				return nil, err
			}
		}
	}

	return obj, nil
}

// MapPage runs the demand-mapping algorithm for vaddr: allocate a frame,
// map it with permissive kernel flags so the fill policy can write to it,
// invoke the fill policy, then reinstall the mapping with the object's
// declared permissions.
func (o *Object) MapPage(vaddr uintptr) *kernel.Error {
	if !o.region.Contains(vaddr) {
		return ErrOutsideRegion
	}

	frame, err := o.alloc.AllocFrame()
	if err != nil {
		return err
	}

	if _, _, err := o.root.CorrelatePage(vaddr, frame, paging.OptOverride, kernelFillPerm); err != nil {
		return err
	}

	relIndex := o.region.pageIndex(vaddr)
	if err := o.policy.PopulatePage(o.region, o.proc, relIndex, vaddr, frame); err != nil {
		return err
	}

	// REDUCE_PERM is always supplied alongside CHECK_PERM: the object's
	// declared permissions may be either stricter or laxer than the
	// kernel-fill permissions the page was just mapped with.
	if _, _, err := o.root.CorrelatePage(vaddr, frame, paging.OptOverride|paging.OptCheckPerm|paging.OptReducePerm, o.perm); err != nil {
		return err
	}

	o.mu.Lock()
	o.mapped[relIndex] = frame
	o.mu.Unlock()
	return nil
}

// handleFault forwards a page fault inside this object's region to its
// fill policy. Demand-driven fault handling (calling MapPage from the
// fault path) is the fill policy's decision, not this layer's: a Nothing
// or Scrub object that hasn't been pre-populated reports
// NotAttachedHandler for faults inside its own region, the same as the
// default the fill policy interface documents.
func (o *Object) handleFault(info PageFaultInfo) PageFaultResponse {
	return o.policy.PageFaultHandler(info)
}

// Region returns the object's covered virtual address range.
func (o *Object) Region() Region { return o.region }
