package paging

import (
	"testing"

	"coldcore/kernel/mem/pmm"
)

const testVAddr = uintptr(0x0000_7f00_0000_0000)

func TestRoundTripMapping(t *testing.T) {
	r := NewRoot()
	frame := pmm.Frame(42)

	if _, _, err := r.CorrelatePage(testVAddr, frame, 0, PermRead|PermWrite); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := r.Translate(testVAddr)
	if err != nil {
		t.Fatalf("unexpected translate error: %v", err)
	}
	if got != frame {
		t.Fatalf("expected frame %d, got %d", frame, got)
	}
}

func TestSecondInstallWithoutOverrideFails(t *testing.T) {
	r := NewRoot()
	if _, _, err := r.CorrelatePage(testVAddr, pmm.Frame(1), 0, PermRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err := r.CorrelatePage(testVAddr, pmm.Frame(2), 0, PermRead)
	if err != ErrPageAlreadyMapped {
		t.Fatalf("expected ErrPageAlreadyMapped, got %v", err)
	}

	got, terr := r.Translate(testVAddr)
	if terr != nil || got != pmm.Frame(1) {
		t.Fatalf("expected prior mapping to survive, got %d err=%v", got, terr)
	}
}

func TestCheckPermIdempotence(t *testing.T) {
	r := NewRoot()
	frame := pmm.Frame(7)

	if _, _, err := r.CorrelatePage(testVAddr, frame, OptOverride|OptCheckPerm, PermRead|PermWrite|PermExec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := r.CorrelatePage(testVAddr, frame, OptOverride|OptCheckPerm, PermRead|PermWrite|PermExec); err != nil {
		t.Fatalf("expected idempotent re-install to succeed, got %v", err)
	}

	got, err := r.Translate(testVAddr)
	if err != nil || got != frame {
		t.Fatalf("expected frame %d to survive idempotent re-install, got %d err=%v", frame, got, err)
	}
}

func TestUpgradeRequiresCheckPerm(t *testing.T) {
	r := NewRoot()
	if _, _, err := r.CorrelatePage(testVAddr, pmm.Frame(1), 0, PermRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err := r.CorrelatePage(testVAddr, pmm.Frame(1), OptOverride, PermRead|PermWrite)
	if err != ErrExistingPermissionsTooStrict {
		t.Fatalf("expected ErrExistingPermissionsTooStrict, got %v", err)
	}

	if _, _, err := r.CorrelatePage(testVAddr, pmm.Frame(1), OptOverride|OptCheckPerm, PermRead|PermWrite); err != nil {
		t.Fatalf("expected upgrade with CHECK_PERM to succeed, got %v", err)
	}
}

func TestDowngradeRequiresReducePerm(t *testing.T) {
	r := NewRoot()
	if _, _, err := r.CorrelatePage(testVAddr, pmm.Frame(1), 0, PermRead|PermWrite); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err := r.CorrelatePage(testVAddr, pmm.Frame(1), OptOverride, PermRead)
	if err != ErrExistingPermissionsPermissive {
		t.Fatalf("expected ErrExistingPermissionsPermissive, got %v", err)
	}

	if _, _, err := r.CorrelatePage(testVAddr, pmm.Frame(1), OptOverride|OptReducePerm, PermRead); err != nil {
		t.Fatalf("expected downgrade with REDUCE_PERM to succeed, got %v", err)
	}
}

func TestLoadAndIsLoaded(t *testing.T) {
	r1 := NewRoot()
	r2 := NewRoot()

	if err := r1.Load(); err != nil {
		t.Fatalf("unexpected error loading r1: %v", err)
	}
	if !r1.IsLoaded() || r2.IsLoaded() {
		t.Fatalf("expected only r1 to be loaded")
	}

	if err := r1.Load(); err != ErrAlreadyLoaded {
		t.Fatalf("expected ErrAlreadyLoaded reloading the active root, got %v", err)
	}

	if err := r2.Load(); err != nil {
		t.Fatalf("unexpected error loading r2: %v", err)
	}
	if !r2.IsLoaded() || r1.IsLoaded() {
		t.Fatalf("expected only r2 to be loaded after switching")
	}
}

func TestInheritFromDeepCopiesTree(t *testing.T) {
	parent := NewRoot()
	if _, _, err := parent.CorrelatePage(testVAddr, pmm.Frame(9), 0, PermRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	child := NewRoot()
	child.InheritFrom(parent)

	got, err := child.Translate(testVAddr)
	if err != nil || got != pmm.Frame(9) {
		t.Fatalf("expected inherited mapping, got %d err=%v", got, err)
	}

	// Mutating the child must not affect the parent: a deep copy, not a
	// shared tree.
	if _, _, err := child.CorrelatePage(testVAddr, pmm.Frame(99), OptOverride, PermRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parentFrame, err := parent.Translate(testVAddr)
	if err != nil || parentFrame != pmm.Frame(9) {
		t.Fatalf("expected parent mapping to be unaffected, got %d err=%v", parentFrame, err)
	}
}

func TestUnmapReturnsInstalledFrame(t *testing.T) {
	r := NewRoot()
	if _, _, err := r.CorrelatePage(testVAddr, pmm.Frame(5), 0, PermRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame, err := r.Unmap(testVAddr, 0)
	if err != nil || frame != pmm.Frame(5) {
		t.Fatalf("expected to unmap frame 5, got %d err=%v", frame, err)
	}

	if _, err := r.Translate(testVAddr); err != ErrPhysTranslationErr {
		t.Fatalf("expected ErrPhysTranslationErr after unmap, got %v", err)
	}

	if _, err := r.Unmap(testVAddr, 0); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty unmapping an already-empty address, got %v", err)
	}
}
