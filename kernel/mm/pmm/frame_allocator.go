package pmm

import (
	"kfs/kernel"
	"kfs/kernel/kfmt"
	"kfs/kernel/mm"
)

var (
	// panicFn is mocked by tests and is automatically inlined by the compiler.
	panicFn = kfmt.Panic

	// ErrOutOfMemory is returned when an allocator has no memory left to
	// satisfy a request.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	errFreeListFull = &kernel.Error{Module: "pmm", Message: "frame free list is full"}
)

// FrameAllocator keeps the free physical frames on a stack backed by a
// fixed-size slice. The slice is sized at boot to the number of frames that
// will ever be released into the allocator. Both operations run in constant
// time and the most recently released frame is handed out first.
type FrameAllocator struct {
	frames []mm.Frame
	count  int
}

// NewFrameAllocator returns an empty allocator that stores free frames in
// storage.
func NewFrameAllocator(storage []mm.Frame) *FrameAllocator {
	return &FrameAllocator{frames: storage}
}

// FreeFrame pushes frame onto the free list. The caller must own frame and
// must not release it twice. Releasing a frame into a full list stops the
// kernel.
func (alloc *FrameAllocator) FreeFrame(frame mm.Frame) {
	if alloc.count == len(alloc.frames) {
		kfmt.Printf("[pmm] cannot release frame at 0x%x: free list holds %d frames\n", frame.Address(), len(alloc.frames))
		panicFn(errFreeListFull)
		return
	}

	alloc.frames[alloc.count] = frame
	alloc.count++
}

// AllocFrame pops the most recently released frame. It returns
// ErrOutOfMemory if the free list is empty.
func (alloc *FrameAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.count == 0 {
		return mm.InvalidFrame, ErrOutOfMemory
	}

	alloc.count--
	return alloc.frames[alloc.count], nil
}

// FreeFrames returns the number of frames on the free list.
func (alloc *FrameAllocator) FreeFrames() int { return alloc.count }

// Capacity returns the number of frames the free list can hold.
func (alloc *FrameAllocator) Capacity() int { return len(alloc.frames) }

// RemainingMemory returns the amount of free memory tracked by the allocator.
func (alloc *FrameAllocator) RemainingMemory() mm.Size {
	return mm.Size(alloc.count) * mm.Size(mm.PageSize)
}
