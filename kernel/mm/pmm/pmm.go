// Package pmm contains the physical memory allocators: the bump allocator
// used while the kernel bootstraps and the frame allocator used afterwards.
package pmm

import (
	"kfs/kernel"
	"kfs/kernel/mm"
	"kfs/kernel/sync"
)

var (
	// frameAllocator is the kernel-wide frame allocator installed by Init.
	frameAllocator *FrameAllocator

	// frameAllocatorMu guards frameAllocator. Finding it locked means the
	// allocator was entered re-entrantly, which stops the kernel.
	frameAllocatorMu sync.Mutex

	errAlreadyInitialized = &kernel.Error{Module: "pmm", Message: "frame allocator already initialized"}
	errNotInitialized     = &kernel.Error{Module: "pmm", Message: "frame allocator not initialized"}
)

// Init installs alloc as the kernel-wide frame allocator. It may only be
// called once; a second call stops the kernel.
func Init(alloc *FrameAllocator) {
	frameAllocatorMu.Lock()
	if frameAllocator != nil {
		frameAllocatorMu.Unlock()
		panicFn(errAlreadyInitialized)
		return
	}

	frameAllocator = alloc
	frameAllocatorMu.Unlock()
}

// AllocFrame reserves a frame from the kernel-wide frame allocator. It
// returns ErrOutOfMemory if no frames are left or if Init has not been
// called yet.
func AllocFrame() (mm.Frame, *kernel.Error) {
	frameAllocatorMu.Lock()
	if frameAllocator == nil {
		frameAllocatorMu.Unlock()
		return mm.InvalidFrame, ErrOutOfMemory
	}

	frame, err := frameAllocator.AllocFrame()
	frameAllocatorMu.Unlock()
	return frame, err
}

// FreeFrame returns frame to the kernel-wide frame allocator.
func FreeFrame(frame mm.Frame) {
	frameAllocatorMu.Lock()
	if frameAllocator == nil {
		frameAllocatorMu.Unlock()
		panicFn(errNotInitialized)
		return
	}

	frameAllocator.FreeFrame(frame)
	frameAllocatorMu.Unlock()
}

// RemainingMemory returns the free memory tracked by the kernel-wide frame
// allocator.
func RemainingMemory() mm.Size {
	frameAllocatorMu.Lock()
	defer frameAllocatorMu.Unlock()

	if frameAllocator == nil {
		return 0
	}
	return frameAllocator.RemainingMemory()
}
