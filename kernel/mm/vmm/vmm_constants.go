package vmm

const (
	// entriesPerTable is the number of entries in a page directory or a
	// page table. Each entry is 4 bytes wide so a table fills one page.
	entriesPerTable = 1024

	// entryIndexMask extracts a 10-bit table index.
	entryIndexMask = entriesPerTable - 1

	// ptePhysPageMask extracts the physical address of the page table or
	// 4 KiB page that an entry points to (bits 12-31).
	ptePhysPageMask = uint32(0xfffff000)

	// pdeHugePageMask extracts the physical address of a 4 MiB page from a
	// page directory entry with FlagHugePage set (bits 22-31).
	pdeHugePageMask = uint32(0xffc00000)

	// pteFlagMask covers the flag bits of an entry.
	pteFlagMask = uint32(0x00000fff)
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is only meaningful on page directory entries and is set
	// when the entry maps a 4 MiB page instead of pointing to a page table.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal
)

// internalFlags are managed by the mapping code and may not be requested by
// callers.
const internalFlags = FlagPresent | FlagHugePage
