// Package cpu stands in for the handful of privileged instructions a real
// amd64 kernel would issue with inline assembly (loading CR3 and invlpg).
// There is no hardware backing it: the
// state lives in a package-level struct that the paging package reads and
// writes, which lets the rest of the memory core be exercised by ordinary
// host tests. A freestanding build would replace this file with one
// declaring the same functions backed by real assembly.
package cpu

import "sync/atomic"

// MMU simulates the subset of CPU state the paging subsystem depends on:
// the active page table root and a generation counter standing in for the
// TLB.
type MMU struct {
	activeRoot   atomic.Uint64
	flushCount   atomic.Uint64
	flushedAddrs []uintptr
}

// Default is the simulated MMU used by the rest of the module. Tests may
// swap it out with a fresh one to get isolated state.
var Default = &MMU{}

// ActiveRoot returns the physical address of the currently loaded root page
// table, mirroring what reading CR3 would return.
func (m *MMU) ActiveRoot() uintptr {
	return uintptr(m.activeRoot.Load())
}

// LoadRoot installs physAddr as the active root page table and flushes the
// entire TLB, mirroring a CR3 write.
func (m *MMU) LoadRoot(physAddr uintptr) {
	m.activeRoot.Store(uint64(physAddr))
	m.flushCount.Add(1)
	m.flushedAddrs = nil
}

// FlushTLBEntry invalidates a single virtual address translation,
// mirroring invlpg.
func (m *MMU) FlushTLBEntry(virtAddr uintptr) {
	m.flushCount.Add(1)
	m.flushedAddrs = append(m.flushedAddrs, virtAddr)
}

// FlushCount returns how many TLB invalidations (full or single-entry) have
// been issued, so a test can check that a mapping change was followed by a
// flush.
func (m *MMU) FlushCount() uint64 {
	return m.flushCount.Load()
}

// IsLoaded reports whether physAddr is the currently active root page
// table.
func (m *MMU) IsLoaded(physAddr uintptr) bool {
	return m.ActiveRoot() == physAddr
}

// ActiveRoot, LoadRoot, FlushTLBEntry, IsLoaded and FlushCount are free
// functions that act on the package-level Default MMU; the paging package
// calls these. They are plain functions, not variables: isolating their
// state means replacing Default.
func ActiveRoot() uintptr                { return Default.ActiveRoot() }
func LoadRoot(physAddr uintptr)          { Default.LoadRoot(physAddr) }
func FlushTLBEntry(virtAddr uintptr)     { Default.FlushTLBEntry(virtAddr) }
func IsLoaded(physAddr uintptr) bool     { return Default.IsLoaded(physAddr) }
func FlushCount() uint64                 { return Default.FlushCount() }
