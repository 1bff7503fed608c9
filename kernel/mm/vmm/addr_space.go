package vmm

import (
	"kfs/kernel"
	"kfs/kernel/cpu"
	"kfs/kernel/kfmt"
	"kfs/kernel/mm"
	"unsafe"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	activePDTFn     = cpu.ActivePDT
	switchPDTFn     = cpu.SwitchPDT
	flushTLBEntryFn = cpu.FlushTLBEntry

	// ErrAlreadyMapped is returned when a mapping request overlaps a
	// present mapping at either the directory or the table level.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual address is already mapped"}

	// ErrInvalidMapping is returned when trying to unmap a virtual address
	// that is not mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errMisalignedAddress = &kernel.Error{Module: "vmm", Message: "address is not aligned to the mapping granularity"}
	errReservedFlags     = &kernel.Error{Module: "vmm", Message: "FlagPresent and FlagHugePage are managed by the address space"}
)

// AddressSpace owns a page directory together with the Context used to
// allocate and access the page tables it references. Every present entry
// reachable from the directory points to a page obtained through that
// Context.
type AddressSpace struct {
	ctx     Context
	pdFrame mm.Frame
}

// NewAddressSpace allocates and zeroes a page directory through ctx.
func NewAddressSpace(ctx Context) (*AddressSpace, *kernel.Error) {
	frame, err := ctx.AllocFrame()
	if err != nil {
		return nil, err
	}

	kernel.Memset(ctx.Map(frame), 0, mm.PageSize)
	return &AddressSpace{ctx: ctx, pdFrame: frame}, nil
}

// PageDirectory returns the physical address of the page directory.
func (as *AddressSpace) PageDirectory() uintptr {
	return as.pdFrame.Address()
}

// table returns the PageTable stored in the physical page at physAddr.
func (as *AddressSpace) table(physAddr uintptr) *PageTable {
	return (*PageTable)(unsafe.Pointer(as.ctx.Map(mm.FrameFromAddress(physAddr))))
}

func (as *AddressSpace) directory() *PageTable {
	return as.table(as.pdFrame.Address())
}

// Translate returns the physical address that virtAddr maps to. The second
// return value is false if virtAddr is not mapped.
func (as *AddressSpace) Translate(virtAddr uintptr) (uintptr, bool) {
	pde := as.directory().Entry(DirectoryIndex(virtAddr))
	switch {
	case !pde.IsPresent():
		return 0, false
	case pde.IsHugePage():
		return pde.Address4MiB() + HugePageOffset(virtAddr), true
	}

	pte := as.table(pde.Address4KiB()).Entry(TableIndexOf(virtAddr))
	if !pte.IsPresent() {
		return 0, false
	}

	return pte.Address4KiB() + PageOffset(virtAddr), true
}

// Map4KiB maps the 4 KiB page at virtAddr to the physical page at physAddr.
// If the 4 MiB region containing virtAddr has no page table yet, one is
// allocated through the Context. The flags of an existing directory entry
// are merged with flags; they are never removed.
//
// Both addresses must be page-aligned and flags must not contain FlagPresent
// or FlagHugePage; violating either requirement stops the kernel.
func (as *AddressSpace) Map4KiB(virtAddr, physAddr uintptr, flags PageTableEntryFlag) *kernel.Error {
	if err := checkMapRequest(virtAddr, physAddr, mm.PageSize, flags); err != nil {
		return err
	}

	pde := as.directory().Entry(DirectoryIndex(virtAddr))
	switch {
	case !pde.IsPresent():
		tableFrame, err := as.ctx.AllocFrame()
		if err != nil {
			return err
		}

		kernel.Memset(as.ctx.Map(tableFrame), 0, mm.PageSize)
		*pde = newEntry(tableFrame.Address(), flags|FlagPresent)
	case pde.IsHugePage():
		return ErrAlreadyMapped
	default:
		pde.SetFlags(flags)
	}

	pte := as.table(pde.Address4KiB()).Entry(TableIndexOf(virtAddr))
	if pte.IsPresent() {
		return ErrAlreadyMapped
	}

	*pte = newEntry(physAddr, flags|FlagPresent)
	return nil
}

// Map4MiB maps the 4 MiB page at virtAddr to the physical memory at physAddr
// using a single page directory entry. The directory entry must not be
// present, whether it maps a huge page or points to a page table.
//
// Both addresses must be 4 MiB aligned and flags must not contain
// FlagPresent or FlagHugePage; violating either requirement stops the kernel.
func (as *AddressSpace) Map4MiB(virtAddr, physAddr uintptr, flags PageTableEntryFlag) *kernel.Error {
	if err := checkMapRequest(virtAddr, physAddr, mm.HugePageSize, flags); err != nil {
		return err
	}

	pde := as.directory().Entry(DirectoryIndex(virtAddr))
	if pde.IsPresent() {
		return ErrAlreadyMapped
	}

	*pde = newEntry(physAddr, flags|FlagPresent|FlagHugePage)
	return nil
}

// MapRange maps size bytes starting at virtAddr to the physical memory
// starting at physAddr. A 4 MiB page is used whenever at least 4 MiB remain
// and both current addresses are 4 MiB aligned; otherwise a 4 KiB page is
// used.
//
// MapRange stops at the first error and returns it. Pages mapped before the
// failing one stay mapped.
func (as *AddressSpace) MapRange(virtAddr, physAddr, size uintptr, flags PageTableEntryFlag) *kernel.Error {
	if !mm.IsAligned(virtAddr|physAddr|size, mm.PageSize) {
		kfmt.Printf("[vmm] MapRange(0x%x, 0x%x, 0x%x): arguments must be page-aligned\n", virtAddr, physAddr, size)
		panicFn(errMisalignedAddress)
		return errMisalignedAddress
	}

	var err *kernel.Error
	for size != 0 {
		if size >= mm.HugePageSize && mm.IsAligned(virtAddr|physAddr, mm.HugePageSize) {
			if err = as.Map4MiB(virtAddr, physAddr, flags); err != nil {
				return err
			}
			virtAddr, physAddr, size = virtAddr+mm.HugePageSize, physAddr+mm.HugePageSize, size-mm.HugePageSize
			continue
		}

		if err = as.Map4KiB(virtAddr, physAddr, flags); err != nil {
			return err
		}
		virtAddr, physAddr, size = virtAddr+mm.PageSize, physAddr+mm.PageSize, size-mm.PageSize
	}

	return nil
}

// Unmap removes the 4 KiB or 4 MiB mapping that contains virtAddr and
// flushes the matching TLB entry if this address space is the active one.
// Page tables are kept even when they become empty. It returns
// ErrInvalidMapping if virtAddr is not mapped.
func (as *AddressSpace) Unmap(virtAddr uintptr) *kernel.Error {
	var pte *PageTableEntry

	pde := as.directory().Entry(DirectoryIndex(virtAddr))
	switch {
	case !pde.IsPresent():
		return ErrInvalidMapping
	case pde.IsHugePage():
		pte = pde
	default:
		pte = as.table(pde.Address4KiB()).Entry(TableIndexOf(virtAddr))
		if !pte.IsPresent() {
			return ErrInvalidMapping
		}
	}

	*pte = 0
	if activePDTFn() == as.PageDirectory() {
		flushTLBEntryFn(virtAddr)
	}

	return nil
}

// Leak hands the page directory over to the hardware. The AddressSpace drops
// its Context so nothing can release the directory or its tables through it,
// and must not be used afterwards.
func (as *AddressSpace) Leak() HardwareDirectory {
	hd := HardwareDirectory{pdFrame: as.pdFrame}
	as.ctx = nil
	as.pdFrame = mm.InvalidFrame
	return hd
}

// HardwareDirectory is a page directory owned by the MMU. The memory it
// references is never released.
type HardwareDirectory struct {
	pdFrame mm.Frame
}

// Address returns the physical address of the page directory.
func (hd HardwareDirectory) Address() uintptr {
	return hd.pdFrame.Address()
}

// Activate loads the page directory into CR3.
func (hd HardwareDirectory) Activate() {
	switchPDTFn(hd.Address())
}

// checkMapRequest stops the kernel if virtAddr or physAddr are not aligned
// to pageSize or if flags contains bits reserved to the address space.
func checkMapRequest(virtAddr, physAddr, pageSize uintptr, flags PageTableEntryFlag) *kernel.Error {
	if !mm.IsAligned(virtAddr|physAddr, pageSize) {
		kfmt.Printf("[vmm] cannot map 0x%x -> 0x%x: not aligned to 0x%x\n", virtAddr, physAddr, pageSize)
		panicFn(errMisalignedAddress)
		return errMisalignedAddress
	}

	if flags&internalFlags != 0 {
		panicFn(errReservedFlags)
		return errReservedFlags
	}

	return nil
}
