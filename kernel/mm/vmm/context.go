package vmm

import (
	"kfs/kernel"
	"kfs/kernel/mm"
)

// Context is the capability an AddressSpace uses to obtain, release and
// access the physical pages that hold its page directory and page tables.
//
// Implementations must hand out pages that the AddressSpace owns until it
// releases them, and Map must keep returning a valid pointer for every page
// it handed out. Before paging is enabled Map must be the identity function.
type Context interface {
	// AllocFrame reserves a physical page.
	AllocFrame() (mm.Frame, *kernel.Error)

	// FreeFrame releases a page obtained from AllocFrame. The caller
	// guarantees that no live mapping references it.
	FreeFrame(mm.Frame)

	// Map returns an address through which the contents of frame can be
	// read and written.
	Map(frame mm.Frame) uintptr
}
