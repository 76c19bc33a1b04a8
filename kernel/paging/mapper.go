package paging

import (
	"sync"
	"sync/atomic"

	"coldcore/kernel"
	"coldcore/kernel/cpu"
	"coldcore/kernel/mem"
	"coldcore/kernel/mem/pmm"
)

// Options is a bitset of mapping-request flags.
type Options uint8

const (
	// OptOverride replaces an already-present leaf instead of failing.
	OptOverride Options = 1 << iota

	// OptCheckPerm permits upgrading a leaf to a more permissive mapping.
	OptCheckPerm

	// OptReducePerm permits downgrading a leaf to a less permissive mapping.
	OptReducePerm

	// OptNoWaitForLock fails fast with AlreadyLocked instead of blocking
	// on a contended table lock.
	OptNoWaitForLock

	// OptNoFlush skips the TLB invalidation for the affected page.
	OptNoFlush
)

var (
	ErrPhysTranslationErr            = &kernel.Error{Module: "paging", Message: "virtual address does not resolve to a physical frame"}
	ErrPageAlreadyMapped             = &kernel.Error{Module: "paging", Message: "page is already mapped and OVERRIDE was not set"}
	ErrExistingPermissionsTooStrict  = &kernel.Error{Module: "paging", Message: "upgrade requires CHECK_PERM"}
	ErrExistingPermissionsPermissive = &kernel.Error{Module: "paging", Message: "downgrade requires REDUCE_PERM"}
	ErrAlreadyLocked                 = &kernel.Error{Module: "paging", Message: "table lock is contended"}
	ErrEmpty                         = &kernel.Error{Module: "paging", Message: "no mapping present at this address"}
	ErrAlreadyLoaded                 = &kernel.Error{Module: "paging", Message: "root is already the active page table"}
)

var rootAddrCounter atomic.Uint64

// nextRootAddr hands out a fresh synthetic "physical address" for a newly
// created root so that cpu.LoadRoot/IsLoaded have something stable to
// compare, standing in for the frame a real root page table would occupy.
func nextRootAddr() uintptr {
	return uintptr(rootAddrCounter.Add(uint64(mem.PageSize)))
}

// Root owns a level-4 shadow/hardware tree and the physical address the
// MMU would use to identify it.
type Root struct {
	mu   sync.RWMutex
	l4   *level4Table
	addr uintptr
}

// NewRoot creates an empty root page table with no mappings.
func NewRoot() *Root {
	return &Root{l4: &level4Table{}, addr: nextRootAddr()}
}

// InheritFrom populates r with a deep copy of parent's shadow tree. r keeps
// its own identity (physical address) so it can be loaded independently of
// parent.
func (r *Root) InheritFrom(parent *Root) {
	parent.mu.RLock()
	defer parent.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.l4 = parent.l4.clone()
}

// Load installs r as the active root page table. Reloading the already
// active root is reported as ErrAlreadyLoaded rather than repeated.
func (r *Root) Load() *kernel.Error {
	if cpu.IsLoaded(r.addr) {
		return ErrAlreadyLoaded
	}
	cpu.LoadRoot(r.addr)
	return nil
}

// IsLoaded reports whether r is the currently active root page table.
func (r *Root) IsLoaded() bool {
	return cpu.IsLoaded(r.addr)
}

func (r *Root) lock(opts Options) bool {
	if opts&OptNoWaitForLock != 0 {
		return r.mu.TryLock()
	}
	r.mu.Lock()
	return true
}

// CorrelatePage installs a mapping from vaddr to frame with the requested
// permissions, honoring opts. It returns the previous frame occupying
// vaddr, if any.
func (r *Root) CorrelatePage(vaddr uintptr, frame pmm.Frame, opts Options, perm Perm) (prev pmm.Frame, hadPrev bool, err *kernel.Error) {
	if !r.lock(opts) {
		return pmm.InvalidFrame, false, ErrAlreadyLocked
	}
	defer r.mu.Unlock()

	i4, i3, i2, i1 := indices(vaddr)
	l3 := r.l4.childFor(i4)
	if l3.kinds[i3] == slotLargeLeaf {
		// A 1 GiB large leaf already covers this address; demoting it to
		// finer-grained mappings on the fly is not supported.
		return pmm.InvalidFrame, false, ErrPageAlreadyMapped
	}
	l2 := l3.childFor(i3)
	if l2.kinds[i2] == slotLargeLeaf {
		// Same demotion restriction at the 2 MiB level.
		return pmm.InvalidFrame, false, ErrPageAlreadyMapped
	}
	l1 := l2.childFor(i2)

	leaf := &l1.slots[i1]
	if leaf.present() {
		if opts&OptOverride == 0 {
			return pmm.InvalidFrame, false, ErrPageAlreadyMapped
		}

		existing := permForFlags(leaf.flags)
		switch {
		case morePermissive(existing, perm) && opts&OptCheckPerm == 0:
			return pmm.InvalidFrame, false, ErrExistingPermissionsTooStrict
		case lessPermissive(existing, perm) && opts&OptReducePerm == 0:
			return pmm.InvalidFrame, false, ErrExistingPermissionsPermissive
		}

		prev, hadPrev = leaf.frame, true
	}

	leaf.flags = flagsForPerm(perm)
	leaf.frame = frame

	if opts&OptNoFlush == 0 {
		cpu.FlushTLBEntry(vaddr)
	}

	return prev, hadPrev, nil
}

// Translate resolves vaddr to the physical frame currently backing it,
// descending through large leaves at level 3 or level 2 when present.
func (r *Root) Translate(vaddr uintptr) (pmm.Frame, *kernel.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i4, i3, i2, i1 := indices(vaddr)

	l3 := r.l4.children[i4]
	if l3 == nil {
		return pmm.InvalidFrame, ErrPhysTranslationErr
	}

	if l3.kinds[i3] == slotLargeLeaf {
		if !l3.slots[i3].present() {
			return pmm.InvalidFrame, ErrPhysTranslationErr
		}
		return largePageFrame(l3.slots[i3].frame, vaddr, 30), nil
	}
	if l3.kinds[i3] != slotChild {
		return pmm.InvalidFrame, ErrPhysTranslationErr
	}

	l2 := l3.children[i3]
	if l2.kinds[i2] == slotLargeLeaf {
		if !l2.slots[i2].present() {
			return pmm.InvalidFrame, ErrPhysTranslationErr
		}
		return largePageFrame(l2.slots[i2].frame, vaddr, 21), nil
	}
	if l2.kinds[i2] != slotChild {
		return pmm.InvalidFrame, ErrPhysTranslationErr
	}

	l1 := l2.children[i2]
	leaf := l1.slots[i1]
	if !leaf.present() {
		return pmm.InvalidFrame, ErrPhysTranslationErr
	}
	return leaf.frame, nil
}

// Unmap removes the mapping at vaddr, returning the frame that had been
// installed there. It returns ErrEmpty if no mapping was present.
func (r *Root) Unmap(vaddr uintptr, opts Options) (pmm.Frame, *kernel.Error) {
	if !r.lock(opts) {
		return pmm.InvalidFrame, ErrAlreadyLocked
	}
	defer r.mu.Unlock()

	i4, i3, i2, i1 := indices(vaddr)

	l3 := r.l4.children[i4]
	if l3 == nil || l3.kinds[i3] != slotChild {
		return pmm.InvalidFrame, ErrEmpty
	}
	l2 := l3.children[i3]
	if l2.kinds[i2] != slotChild {
		return pmm.InvalidFrame, ErrEmpty
	}
	l1 := l2.children[i2]

	leaf := &l1.slots[i1]
	if !leaf.present() {
		return pmm.InvalidFrame, ErrEmpty
	}

	frame := leaf.frame
	*leaf = entry{}

	if opts&OptNoFlush == 0 {
		cpu.FlushTLBEntry(vaddr)
	}
	return frame, nil
}
