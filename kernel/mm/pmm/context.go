package pmm

import (
	"kfs/kernel"
	"kfs/kernel/mm"
)

// FrameContext lets an address space draw its page tables from the
// kernel-wide frame allocator once the boot sequence has installed it.
type FrameContext struct{}

// AllocFrame reserves a frame through AllocFrame.
func (FrameContext) AllocFrame() (mm.Frame, *kernel.Error) { return AllocFrame() }

// FreeFrame releases frame through FreeFrame.
func (FrameContext) FreeFrame(frame mm.Frame) { FreeFrame(frame) }

// Map returns the address through which frame can be accessed.
func (FrameContext) Map(frame mm.Frame) uintptr { return mm.PhysToVirt(frame.Address()) }
