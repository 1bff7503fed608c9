package vmm

// PageTableEntryFlag describes a flag that can be applied to a page table
// or page directory entry.
type PageTableEntryFlag uint32

// PageTableEntry is a single 32-bit entry of a page directory or page table.
// Bits 0-8 hold the flags and bits 12-31 the physical address of the
// referenced page. A page directory entry with FlagHugePage set maps a 4 MiB
// page whose address occupies bits 22-31.
type PageTableEntry uint32

// newEntry builds an entry pointing at physAddr with the given flags.
func newEntry(physAddr uintptr, flags PageTableEntryFlag) PageTableEntry {
	return PageTableEntry((uint32(physAddr) & ptePhysPageMask) | (uint32(flags) & pteFlagMask))
}

// IsPresent returns true if FlagPresent is set.
func (pte PageTableEntry) IsPresent() bool {
	return pte.HasFlags(FlagPresent)
}

// IsHugePage returns true if FlagHugePage is set. The result is only
// meaningful for page directory entries.
func (pte PageTableEntry) IsHugePage() bool {
	return pte.HasFlags(FlagHugePage)
}

// Address4KiB returns the 4 KiB aligned physical address stored in the entry.
// Calling it on a huge page entry returns a meaningless value; check
// IsHugePage first.
func (pte PageTableEntry) Address4KiB() uintptr {
	return uintptr(uint32(pte) & ptePhysPageMask)
}

// Address4MiB returns the physical address of the 4 MiB page mapped by a huge
// page directory entry.
func (pte PageTableEntry) Address4MiB() uintptr {
	return uintptr(uint32(pte) & pdeHugePageMask)
}

// Flags returns the flag bits of the entry.
func (pte PageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint32(pte) & pteFlagMask)
}

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint32(*pte) | uint32(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint32(*pte) &^ uint32(flags))
}
