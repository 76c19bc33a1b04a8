package paging

import (
	"coldcore/kernel/mem"
	"coldcore/kernel/mem/pmm"
)

// slotsPerTable is the x86_64 fan-out: 9 address bits per level.
const slotsPerTable = 512

// slotKind distinguishes the three states a level-2 or level-3 shadow slot
// can be in: absent, owning a child table, or a large leaf mapping.
type slotKind uint8

const (
	slotAbsent slotKind = iota
	slotChild
	slotLargeLeaf
)

// level1Table is the bottom of the tree: 512 4 KiB leaf entries.
type level1Table struct {
	slots [slotsPerTable]entry
}

// level2Table holds either 2 MiB large leaves or pointers to a level1Table.
type level2Table struct {
	slots    [slotsPerTable]entry
	kinds    [slotsPerTable]slotKind
	children [slotsPerTable]*level1Table
}

// level3Table holds either 1 GiB large leaves or pointers to a level2Table.
type level3Table struct {
	slots    [slotsPerTable]entry
	kinds    [slotsPerTable]slotKind
	children [slotsPerTable]*level2Table
}

// level4Table is the root: every slot is either absent or points to a
// level3Table. Large pages do not exist at this level on amd64.
type level4Table struct {
	slots    [slotsPerTable]entry
	children [slotsPerTable]*level3Table
}

// indices splits a virtual address into its four 9-bit table indices and
// the 12-bit page offset, in (i4, i3, i2, i1) order.
func indices(vaddr uintptr) (i4, i3, i2, i1 int) {
	i4 = int((vaddr >> 39) & 0x1ff)
	i3 = int((vaddr >> 30) & 0x1ff)
	i2 = int((vaddr >> 21) & 0x1ff)
	i1 = int((vaddr >> 12) & 0x1ff)
	return
}

// intermediateFlags is installed on a freshly created owning child: it is
// deliberately permissive (present, writable, and usable by user code) so
// that CHECK_PERM upgrades performed at the leaf are never blocked by a
// stricter ancestor. Lazily created intermediate tables carry permissive
// flags up front rather than being upgraded later.
const intermediateFlags = FlagPresent | FlagRW | FlagUser

func (t *level4Table) childFor(i4 int) *level3Table {
	if t.children[i4] == nil {
		t.children[i4] = &level3Table{}
		t.slots[i4] = entry{flags: intermediateFlags}
	}
	return t.children[i4]
}

func (t *level3Table) childFor(i3 int) *level2Table {
	if t.kinds[i3] != slotChild {
		t.kinds[i3] = slotChild
		t.children[i3] = &level2Table{}
		t.slots[i3] = entry{flags: intermediateFlags}
	}
	return t.children[i3]
}

func (t *level2Table) childFor(i2 int) *level1Table {
	if t.kinds[i2] != slotChild {
		t.kinds[i2] = slotChild
		t.children[i2] = &level1Table{}
		t.slots[i2] = entry{flags: intermediateFlags}
	}
	return t.children[i2]
}

func (t *level3Table) clone() *level3Table {
	clone := &level3Table{slots: t.slots, kinds: t.kinds}
	for i, child := range t.children {
		if child != nil {
			clone.children[i] = child.clone()
		}
	}
	return clone
}

func (t *level2Table) clone() *level2Table {
	clone := &level2Table{slots: t.slots, kinds: t.kinds}
	for i, child := range t.children {
		if child != nil {
			clone.children[i] = child.clone()
		}
	}
	return clone
}

func (t *level1Table) clone() *level1Table {
	clone := &level1Table{slots: t.slots}
	return clone
}

func (t *level4Table) clone() *level4Table {
	clone := &level4Table{slots: t.slots}
	for i, child := range t.children {
		if child != nil {
			clone.children[i] = child.clone()
		}
	}
	return clone
}

// largePageFrame resolves a large-leaf entry's base frame plus the offset
// contributed by the lower address bits that a large page absorbs.
func largePageFrame(base pmm.Frame, lowerBits uintptr, lowerBitCount uint) pmm.Frame {
	return base + pmm.Frame((lowerBits&((1<<lowerBitCount)-1))>>mem.PageShift)
}
