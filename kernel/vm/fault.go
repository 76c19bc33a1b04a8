package vm

import (
	"coldcore/kernel"
	"coldcore/kernel/paging"
)

// PageFaultInfo describes the hardware fault the trap layer observed.
type PageFaultInfo struct {
	IsPresent    bool
	WriteAccess  bool
	ExecuteFault bool
	UserFault    bool
	VAddr        uintptr
}

// ResponseKind enumerates the possible outcomes of dispatching a page
// fault to a process's attached objects.
type ResponseKind uint8

const (
	// RespHandled means the fault was resolved and the faulting
	// instruction can be retried.
	RespHandled ResponseKind = iota

	// RespNoAccess means a mapping exists but does not grant the access
	// the fault requested.
	RespNoAccess

	// RespCriticalFault means handling the fault itself failed (e.g. the
	// frame allocator is out of memory).
	RespCriticalFault

	// RespNotAttachedHandler means no VM object covers the faulting
	// address, or the covering object declines to handle faults.
	RespNotAttachedHandler
)

// PageFaultResponse is the outcome of PageFaultHandler.
type PageFaultResponse struct {
	Kind ResponseKind

	// PagePerm and RequestPerm are populated when Kind == RespNoAccess.
	PagePerm    paging.Perm
	RequestPerm paging.Perm
	Page        uintptr

	// Err is populated when Kind == RespCriticalFault.
	Err *kernel.Error
}

func handled() PageFaultResponse { return PageFaultResponse{Kind: RespHandled} }

func notAttached() PageFaultResponse { return PageFaultResponse{Kind: RespNotAttachedHandler} }

func criticalFault(err *kernel.Error) PageFaultResponse {
	return PageFaultResponse{Kind: RespCriticalFault, Err: err}
}

func noAccess(page uintptr, pagePerm, requestPerm paging.Perm) PageFaultResponse {
	return PageFaultResponse{Kind: RespNoAccess, Page: page, PagePerm: pagePerm, RequestPerm: requestPerm}
}
