package vm

import (
	"sync"

	"coldcore/kernel"
	"coldcore/kernel/kfmt"
	"coldcore/kernel/mem/pmm/allocator"
	"coldcore/kernel/paging"
)

// Process owns a page-table root, a frame allocator, and a disjoint list
// of VM objects covering parts of its address space.
type Process struct {
	mu      sync.Mutex
	root    *paging.Root
	alloc   *allocator.Allocator
	objects []*Object
}

// NewProcess creates a process with no VM objects yet attached.
func NewProcess(root *paging.Root, alloc *allocator.Allocator) *Process {
	return &Process{root: root, alloc: alloc}
}

// Root returns the process's page-table root.
func (p *Process) Root() *paging.Root { return p.root }

// Allocator returns the process's frame allocator.
func (p *Process) Allocator() *allocator.Allocator { return p.alloc }

func (p *Process) overlapsLocked(region Region) bool {
	for _, existing := range p.objects {
		if existing.region.Overlaps(region) {
			return true
		}
	}
	return false
}

// InsertVMObject adds an already-constructed object to the process,
// rejecting it if its region overlaps any object already present.
func (p *Process) InsertVMObject(obj *Object) *kernel.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.overlapsLocked(obj.region) {
		return ErrOverlappingRegion
	}
	obj.proc = p
	p.objects = append(p.objects, obj)
	return nil
}

// InplaceNewVMObject is an atomic create-and-insert: it checks for
// overlap before constructing the (potentially expensive, eagerly-filled)
// object, and again afterwards in case a concurrent insert raced it.
func (p *Process) InplaceNewVMObject(region Region, perm paging.Perm, policy FillPolicy) (*Object, *kernel.Error) {
	p.mu.Lock()
	if p.overlapsLocked(region) {
		p.mu.Unlock()
		return nil, ErrOverlappingRegion
	}
	p.mu.Unlock()

	obj, err := NewObject(region, perm, policy, p.root, p.alloc, p)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.overlapsLocked(region) {
		return nil, ErrOverlappingRegion
	}
	p.objects = append(p.objects, obj)
	return obj, nil
}

// PageFaultHandler finds the first VM object covering info.VAddr and
// delegates to its fill policy. It returns RespNotAttachedHandler if no
// object covers the address.
func (p *Process) PageFaultHandler(info PageFaultInfo) PageFaultResponse {
	p.mu.Lock()
	var covering *Object
	for _, obj := range p.objects {
		if obj.region.Contains(info.VAddr) {
			covering = obj
			break
		}
	}
	p.mu.Unlock()

	if covering == nil {
		kfmt.Printf("[vm] page fault at 0x%x has no covering VM object\n", info.VAddr)
		return notAttached()
	}

	resp := covering.handleFault(info)
	if resp.Kind == RespCriticalFault || resp.Kind == RespNoAccess {
		kfmt.Printf("[vm] page fault at 0x%x escalated, kind: %d\n", info.VAddr, uint8(resp.Kind))
	}
	return resp
}
