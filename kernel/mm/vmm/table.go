package vmm

import (
	"kfs/kernel"
	"kfs/kernel/kfmt"
	"kfs/kernel/mm"
)

var (
	// panicFn is mocked by tests and is automatically inlined by the compiler.
	panicFn = kfmt.Panic

	errIndexOutOfRange = &kernel.Error{Module: "vmm", Message: "page table index out of range"}
)

// PageTable is a page directory or a page table. It always occupies exactly
// one 4 KiB aligned physical page.
type PageTable [entriesPerTable]PageTableEntry

// TableIndex is an index into a PageTable. Values are validated when the
// index is built so lookups need no further checks.
type TableIndex uint16

// NewTableIndex returns the TableIndex for v. An index outside [0, 1024) is
// a programming error and stops the kernel.
func NewTableIndex(v uintptr) TableIndex {
	if v >= entriesPerTable {
		kfmt.Printf("[vmm] table index %d out of range\n", v)
		panicFn(errIndexOutOfRange)
		return 0
	}

	return TableIndex(v)
}

// DirectoryIndex returns the page directory index (bits 22-31) of virtAddr.
func DirectoryIndex(virtAddr uintptr) TableIndex {
	return NewTableIndex(uintptr(uint32(virtAddr) >> mm.HugePageShift))
}

// TableIndexOf returns the page table index (bits 12-21) of virtAddr.
func TableIndexOf(virtAddr uintptr) TableIndex {
	return NewTableIndex(uintptr(uint32(virtAddr)>>mm.PageShift) & entryIndexMask)
}

// PageOffset returns the offset of virtAddr inside its 4 KiB page.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}

// HugePageOffset returns the offset of virtAddr inside its 4 MiB page.
func HugePageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.HugePageSize - 1)
}

// Entry returns a pointer to the entry at index.
func (t *PageTable) Entry(index TableIndex) *PageTableEntry {
	return &t[index]
}
