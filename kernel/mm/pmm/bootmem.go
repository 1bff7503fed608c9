package pmm

import (
	"kfs/kernel"
	"kfs/kernel/kfmt"
	"kfs/kernel/mm"
	"unsafe"
)

var (
	errBadAlignment   = &kernel.Error{Module: "boot_mem_alloc", Message: "alignment must be a power of two"}
	errBootMemRelease = &kernel.Error{Module: "boot_mem_alloc", Message: "boot memory cannot be released"}
)

// BootMemAllocator hands out physical memory from a fixed window while the
// kernel bootstraps. Allocations grow downwards from the top of the window
// and are never reclaimed; whatever the allocator hands out stays reserved
// for the lifetime of the kernel.
//
// BootMemAllocator also implements vmm.Context so that it can supply the
// page directory and page tables of the boot address space.
type BootMemAllocator struct {
	base uintptr
	top  uintptr

	// initialTop is used to report how much memory was consumed.
	initialTop uintptr
}

// NewBootMemAllocator returns an allocator for the physical range
// [base, top). The caller guarantees that nothing else uses that range.
func NewBootMemAllocator(base, top uintptr) *BootMemAllocator {
	return &BootMemAllocator{base: base, top: top, initialTop: top}
}

// Base returns the lowest address the allocator may hand out.
func (alloc *BootMemAllocator) Base() uintptr { return alloc.base }

// Top returns the current top of the window. Every address in [Top(),
// initial top) has been handed out.
func (alloc *BootMemAllocator) Top() uintptr { return alloc.top }

// Used returns the number of bytes consumed so far, including the bytes
// skipped to satisfy alignment requests.
func (alloc *BootMemAllocator) Used() mm.Size {
	return mm.Size(alloc.initialTop - alloc.top)
}

// AllocRaw reserves size bytes aligned to align and returns the physical
// address of the block. The top of the window is lowered by size and then
// aligned down, so up to align-1 bytes may be skipped per call.
//
// AllocRaw returns ErrOutOfMemory and leaves the allocator unchanged if the
// block does not fit above the base of the window. An align value that is
// not a power of two stops the kernel.
func (alloc *BootMemAllocator) AllocRaw(size, align uintptr) (uintptr, *kernel.Error) {
	if align == 0 || align&(align-1) != 0 {
		kfmt.Printf("[boot_mem_alloc] invalid alignment: %d\n", align)
		panicFn(errBadAlignment)
		return 0, errBadAlignment
	}

	if size > alloc.top {
		return 0, ErrOutOfMemory
	}

	addr := mm.AlignDown(alloc.top-size, align)
	if addr < alloc.base {
		return 0, ErrOutOfMemory
	}

	alloc.top = addr
	return addr, nil
}

// AllocSlice reserves memory for count contiguous values of type T and
// returns it as a slice accessed through mm.PhysToVirt. The contents of the
// slice are not initialized. Requests whose byte size does not fit in a
// uintptr fail with ErrOutOfMemory.
func AllocSlice[T any](alloc *BootMemAllocator, count int) ([]T, *kernel.Error) {
	var zero T

	elemSize := unsafe.Sizeof(zero)
	if count < 0 || (elemSize != 0 && uintptr(count) > ^uintptr(0)/elemSize) {
		return nil, ErrOutOfMemory
	}

	addr, err := alloc.AllocRaw(elemSize*uintptr(count), unsafe.Alignof(zero))
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*T)(unsafe.Pointer(mm.PhysToVirt(addr))), count), nil
}

// AllocFrame reserves one page-aligned page.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	addr, err := alloc.AllocRaw(mm.PageSize, mm.PageSize)
	if err != nil {
		return mm.InvalidFrame, err
	}

	return mm.FrameFromAddress(addr), nil
}

// FreeFrame stops the kernel: boot memory is never reclaimed.
func (alloc *BootMemAllocator) FreeFrame(frame mm.Frame) {
	kfmt.Printf("[boot_mem_alloc] attempted to release frame at 0x%x\n", frame.Address())
	panicFn(errBootMemRelease)
}

// Map returns the address through which frame can be accessed.
func (alloc *BootMemAllocator) Map(frame mm.Frame) uintptr {
	return mm.PhysToVirt(frame.Address())
}
