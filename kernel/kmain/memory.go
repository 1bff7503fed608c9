package kmain

import (
	"kfs/kernel"
	"kfs/kernel/cpu"
	"kfs/kernel/kfmt"
	"kfs/kernel/mm"
	"kfs/kernel/mm/pmm"
	"kfs/kernel/mm/vmm"
	"kfs/multiboot"
	"unsafe"
)

const (
	// maxMemRegions is the number of memory map entries kept by the boot
	// sequence. Additional entries are ignored.
	maxMemRegions = 64

	// bootWindowSlackPages is added to the bootstrap window on top of the
	// frame list storage. It covers the page directory, the page table for
	// a range that does not end on a 4 MiB boundary and alignment losses.
	bootWindowSlackPages = 4

	// maxReservedRanges bounds the ranges kept out of the frame allocator:
	// the kernel image, the boot loader data and the bootstrap window.
	maxReservedRanges = 8
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	visitMemRegionsFn  = multiboot.VisitMemRegions
	visitBootCmdLineFn = multiboot.VisitBootCmdLine
	visitBootDataFn    = multiboot.VisitBootData
	activatePDTFn      = vmm.HardwareDirectory.Activate
	enablePagingFn     = cpu.EnablePaging
	installAllocatorFn = pmm.Init

	// bootMemMap receives a copy of the boot loader's memory map. It is
	// not allocated on the stack to keep the boot stack usage low.
	bootMemMap memoryMap

	// bootReserved collects the physical ranges that must not be handed to
	// the frame allocator.
	bootReserved reservedRanges

	errNoAvailableMemory = &kernel.Error{Module: "kmain", Message: "no available memory above 1 MiB"}
	errNoBootWindow      = &kernel.Error{Module: "kmain", Message: "no available region can hold the bootstrap memory window"}
	errTooManyReserved   = &kernel.Error{Module: "kmain", Message: "too many reserved memory ranges"}
)

// memoryMap is a fixed-capacity copy of the memory map reported by the boot
// loader.
type memoryMap struct {
	entries [maxMemRegions]multiboot.MemoryMapEntry
	count   int

	// dropped counts the entries that did not fit.
	dropped int
}

// load replaces the contents of the map with the regions reported by the
// boot loader.
func (m *memoryMap) load() {
	m.count, m.dropped = 0, 0
	visitMemRegionsFn(func(entry *multiboot.MemoryMapEntry) bool {
		if m.count == maxMemRegions {
			m.dropped++
			return true
		}

		m.entries[m.count] = *entry
		m.count++
		return true
	})
}

// print logs the memory map and returns the amount of available memory.
func (m *memoryMap) print() mm.Size {
	var totalFree mm.Size

	kfmt.Printf("[kmain] system memory map:\n")
	for i := 0; i < m.count; i++ {
		region := &m.entries[i]
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mm.Size(region.Length)
		}
	}

	if m.dropped != 0 {
		kfmt.Printf("[kmain] memory map truncated: %d regions ignored\n", m.dropped)
	}

	kfmt.Printf("[kmain] found %s of available memory\n", kfmt.ByteSize(totalFree))
	return totalFree
}

// upperBound returns the end of the highest available region, clamped to
// the 32-bit physical address space and aligned down to a page boundary.
func (m *memoryMap) upperBound() uintptr {
	var top uint64

	for i := 0; i < m.count; i++ {
		region := &m.entries[i]
		if region.Type != multiboot.MemAvailable {
			continue
		}

		end := region.PhysAddress + region.Length
		if end < region.PhysAddress {
			end = ^uint64(0)
		}
		if end > top {
			top = end
		}
	}

	if top > mm.MaxPhysAddr {
		top = mm.MaxPhysAddr
	}

	return mm.AlignDown(uintptr(top), mm.PageSize)
}

// usableRange returns the page-aligned part of the i-th region that lies
// inside [mm.LowMemoryLimit, upper). The last return value is false if the
// region is not available or no full page remains.
func (m *memoryMap) usableRange(i int, upper uintptr) (uintptr, uintptr, bool) {
	region := &m.entries[i]
	if region.Type != multiboot.MemAvailable {
		return 0, 0, false
	}

	start, end := region.PhysAddress, region.PhysAddress+region.Length
	if end < start {
		end = ^uint64(0)
	}
	if start < uint64(mm.LowMemoryLimit) {
		start = uint64(mm.LowMemoryLimit)
	}
	if end > uint64(upper) {
		end = uint64(upper)
	}
	if start >= end {
		return 0, 0, false
	}

	alignedStart, alignedEnd := mm.AlignUp(uintptr(start), mm.PageSize), mm.AlignDown(uintptr(end), mm.PageSize)
	if alignedStart >= alignedEnd {
		return 0, 0, false
	}

	return alignedStart, alignedEnd, true
}

// frameUsable reports whether the frame at addr, taken from the usable
// range of the i-th region, may be handed out. The boot loader's map may
// contain overlapping entries: a frame touched by an entry of any other type
// is never usable and a frame already covered by an earlier available entry
// is only reported for that entry.
func (m *memoryMap) frameUsable(i int, addr, upper uintptr) bool {
	for j := 0; j < m.count; j++ {
		if j == i {
			continue
		}

		region := &m.entries[j]
		if region.Type != multiboot.MemAvailable {
			if regionOverlapsFrame(region, addr) {
				return false
			}
			continue
		}

		if j < i {
			if start, end, ok := m.usableRange(j, upper); ok && addr >= start && addr < end {
				return false
			}
		}
	}

	return true
}

// regionOverlapsFrame returns true if any byte of the frame at addr lies
// inside region.
func regionOverlapsFrame(region *multiboot.MemoryMapEntry, addr uintptr) bool {
	if region.Length == 0 {
		return false
	}

	start, end := region.PhysAddress, region.PhysAddress+region.Length
	if end < start {
		end = ^uint64(0)
	}

	frameStart := uint64(addr)
	return start < frameStart+uint64(mm.PageSize) && frameStart < end
}

// countFrames returns the number of distinct frames that lie completely
// inside an available region, at or above mm.LowMemoryLimit and below upper.
func (m *memoryMap) countFrames(upper uintptr) int {
	var count int
	for i := 0; i < m.count; i++ {
		start, end, ok := m.usableRange(i, upper)
		if !ok {
			continue
		}

		for addr := start; addr < end; addr += mm.PageSize {
			if m.frameUsable(i, addr, upper) {
				count++
			}
		}
	}
	return count
}

// findBootWindow returns the top size bytes of the largest run of usable
// frames below upper that contains no reserved frame.
func (m *memoryMap) findBootWindow(upper, size uintptr, reserved *reservedRanges) (physRange, *kernel.Error) {
	var best physRange

	consider := func(candidate physRange) {
		if candidate.end > candidate.start && candidate.size() > best.size() {
			best = candidate
		}
	}

	for i := 0; i < m.count; i++ {
		start, end, ok := m.usableRange(i, upper)
		if !ok {
			continue
		}

		runStart := start
		for addr := start; addr < end; addr += mm.PageSize {
			if m.frameUsable(i, addr, upper) && !reserved.contains(addr) {
				continue
			}

			consider(physRange{runStart, addr})
			runStart = addr + mm.PageSize
		}
		consider(physRange{runStart, end})
	}

	if best.size() < size {
		kfmt.Printf("[kmain] bootstrap window needs %s; largest usable block has %s\n", kfmt.ByteSize(size), kfmt.ByteSize(best.size()))
		return physRange{}, errNoBootWindow
	}

	return physRange{best.end - size, best.end}, nil
}

// depositFrames releases every usable frame below upper that does not
// belong to a reserved range into alloc and returns the number of released
// frames. Each frame is released at most once.
func (m *memoryMap) depositFrames(alloc *pmm.FrameAllocator, upper uintptr, reserved *reservedRanges) int {
	var count int

	for i := 0; i < m.count; i++ {
		start, end, ok := m.usableRange(i, upper)
		if !ok {
			continue
		}

		for addr := start; addr < end; addr += mm.PageSize {
			if reserved.contains(addr) || !m.frameUsable(i, addr, upper) {
				continue
			}

			alloc.FreeFrame(mm.FrameFromAddress(addr))
			count++
		}
	}

	return count
}

// reservedRanges is a fixed-capacity list of page-aligned physical ranges.
type reservedRanges struct {
	ranges [maxReservedRanges]physRange
	count  int
}

func (r *reservedRanges) reset() {
	r.count = 0
}

// add records [start, end) widened to page boundaries.
func (r *reservedRanges) add(start, end uintptr) {
	if r.count == maxReservedRanges {
		panicFn(errTooManyReserved)
		return
	}

	alignedEnd := mm.AlignUp(end, mm.PageSize)
	if alignedEnd < end {
		alignedEnd = ^uintptr(0)
	}

	r.ranges[r.count] = physRange{mm.AlignDown(start, mm.PageSize), alignedEnd}
	r.count++
}

func (r *reservedRanges) contains(addr uintptr) bool {
	for i := 0; i < r.count; i++ {
		if r.ranges[i].contains(addr) {
			return true
		}
	}
	return false
}

// physRange is the physical address range [start, end).
type physRange struct {
	start, end uintptr
}

func (r physRange) size() uintptr {
	if r.end <= r.start {
		return 0
	}
	return r.end - r.start
}

func (r physRange) contains(addr uintptr) bool {
	return addr >= r.start && addr < r.end
}

// memLimitFromCmdLine returns the limit requested with "mem=<MiB>" on the
// kernel command line. Invalid values are ignored.
func memLimitFromCmdLine() (uintptr, bool) {
	var (
		limit uint64
		found bool
	)

	visitBootCmdLineFn(func(key, value string) bool {
		if key != "mem" {
			return true
		}

		mib, ok := parseDecimal(value)
		if !ok || mib == 0 {
			kfmt.Printf("[kmain] ignoring invalid mem= value %s\n", value)
			return true
		}

		limit, found = mib<<20, true
		return true
	})

	if !found {
		return 0, false
	}

	if limit > mm.MaxPhysAddr {
		limit = mm.MaxPhysAddr
	}
	return uintptr(limit), true
}

// parseDecimal parses an unsigned base-10 number of at most 6 digits. It is
// used instead of strconv because the boot sequence runs before any
// allocator exists and strconv allocates its errors.
func parseDecimal(s string) (uint64, bool) {
	if len(s) == 0 || len(s) > 6 {
		return 0, false
	}

	var v uint64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		v = v*10 + uint64(s[i]-'0')
	}
	return v, true
}

// setupBootAddressSpace identity-maps [0, upper) with page tables taken from
// bootAlloc, loads the page directory into CR3 and turns paging on.
func setupBootAddressSpace(bootAlloc *pmm.BootMemAllocator, upper uintptr) *kernel.Error {
	as, err := vmm.NewAddressSpace(bootAlloc)
	if err != nil {
		return err
	}

	if err = as.MapRange(0, 0, upper, vmm.FlagRW); err != nil {
		return err
	}

	pdt := as.Leak()
	activatePDTFn(pdt)
	enablePagingFn()

	kfmt.Printf("[kmain] paging enabled; identity-mapped 0x0 - 0x%x with page directory at 0x%x\n", upper, pdt.Address())
	return nil
}

// initMemory brings up paging and the kernel-wide frame allocator:
//   - the memory map is copied and the identity-map limit is derived from it
//     and the mem= command line option
//   - the boot address space and the frame list are carved out of a
//     bootstrap window at the top of the largest usable block
//   - every usable frame outside the kernel image, the boot loader data and
//     the window is handed to the frame allocator
func initMemory(kernelStart, kernelEnd uintptr) *kernel.Error {
	bootMemMap.load()
	bootMemMap.print()

	kernelImage := physRange{mm.AlignDown(kernelStart, mm.PageSize), mm.AlignUp(kernelEnd, mm.PageSize)}
	kfmt.Printf("[kmain] kernel loaded at 0x%x - 0x%x\n", kernelImage.start, kernelImage.end)

	bootReserved.reset()
	bootReserved.add(kernelImage.start, kernelImage.end)
	visitBootDataFn(func(start, end uintptr) bool {
		bootReserved.add(start, end)
		return true
	})

	upper := bootMemMap.upperBound()
	if limit, ok := memLimitFromCmdLine(); ok && limit < upper {
		upper = mm.AlignDown(limit, mm.PageSize)
		kfmt.Printf("[kmain] mem= limits usable memory to %s\n", kfmt.ByteSize(upper))
	}

	if upper < kernelImage.end {
		upper = kernelImage.end
	}

	frameCount := bootMemMap.countFrames(upper)
	if frameCount == 0 {
		return errNoAvailableMemory
	}

	windowSize := mm.AlignUp(uintptr(frameCount)*unsafe.Sizeof(mm.Frame(0)), mm.PageSize) + bootWindowSlackPages*mm.PageSize
	window, err := bootMemMap.findBootWindow(upper, windowSize, &bootReserved)
	if err != nil {
		return err
	}

	bootAlloc := pmm.NewBootMemAllocator(window.start, window.end)
	if err = setupBootAddressSpace(bootAlloc, upper); err != nil {
		return err
	}

	storage, err := pmm.AllocSlice[mm.Frame](bootAlloc, frameCount)
	if err != nil {
		return err
	}

	frameAlloc := pmm.NewFrameAllocator(storage)
	bootReserved.add(window.start, window.end)
	deposited := bootMemMap.depositFrames(frameAlloc, upper, &bootReserved)
	installAllocatorFn(frameAlloc)

	kfmt.Printf("[kmain] frame allocator: %d of %d frames free (%s)\n", deposited, frameCount, kfmt.ByteSize(frameAlloc.RemainingMemory()))
	kfmt.Printf("[kmain] bootstrap memory: used %s of %s at 0x%x\n", kfmt.ByteSize(bootAlloc.Used()), kfmt.ByteSize(windowSize), window.start)
	return nil
}
