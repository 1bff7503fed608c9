package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the size of a frame and of a regular page in bytes.
	PageSize = uintptr(1 << PageShift)

	// HugePageShift is equal to log2(HugePageSize).
	HugePageShift = uintptr(22)

	// HugePageSize defines the size of a page mapped directly by a page
	// directory entry (4 MiB with 32-bit non-PAE paging).
	HugePageSize = uintptr(1 << HugePageShift)

	// LowMemoryLimit marks the end of the legacy first MiB of physical
	// memory. Frames below it are never handed to the frame allocator.
	LowMemoryLimit = uintptr(1 << 20)

	// MaxPhysAddr is the start of the highest frame that a 32-bit page table
	// entry can address while keeping every page start representable.
	MaxPhysAddr = uint64(0xfffff000)
)
