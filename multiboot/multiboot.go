// Package multiboot reads the information structure that a Multiboot
// (version 1) compliant boot loader passes to the kernel.
package multiboot

import (
	"kfs/kernel/mm"
	"unsafe"
)

var (
	// infoData holds the physical address of the multiboot info structure.
	infoData uintptr

	cmdLineKV map[string]string
)

// Bits of info.flags that mark the presence of optional fields.
const (
	flagCmdLine = 1 << 2
	flagMemMap  = 1 << 6
)

// maxCmdLineLen bounds the scan for the command line terminator.
const maxCmdLineLen = 4096

// info describes the fixed-layout part of the multiboot info structure. All
// fields are 32 bits wide so the Go layout matches the boot loader's.
type info struct {
	flags uint32

	// Amount of lower and upper memory in KiB (flag bit 0).
	memLower, memUpper uint32

	bootDevice uint32

	// Physical address of the NUL-terminated command line (flag bit 2).
	cmdLine uint32

	modsCount, modsAddr uint32

	// a.out symbol table or ELF section header table.
	syms [4]uint32

	// Size in bytes and physical address of the memory map (flag bit 6).
	mmapLength, mmapAddr uint32
}

// Layout of a memory map record. Records are packed: the 64-bit fields are
// only 4-byte aligned. The size field does not count itself.
const (
	mmapSizeOffset   = 0
	mmapBaseOffset   = 4
	mmapLengthOffset = 12
	mmapTypeOffset   = 20
	mmapSizeFieldLen = 4
	mmapMinEntrySize = 20
)

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemPreserved indicates memory that must be preserved when hibernating.
	MemPreserved

	// MemDefective indicates memory occupied by defective RAM modules.
	MemDefective

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemPreserved:
		return "preserved (NVS)"
	case MemDefective:
		return "defective"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// CmdLineVisitor is invoked by VisitBootCmdLine for each key-value pair of the
// kernel command line. The strings alias boot loader memory and must be copied
// if they need to outlive the call. The visitor must return true to continue
// or false to abort the scan.
type CmdLineVisitor func(key, value string) bool

// BootDataVisitor is invoked by VisitBootData for each physical range
// [start, end) holding boot loader data. The visitor must return true to
// continue or false to abort the scan.
type BootDataVisitor func(start, end uintptr) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// physical address. This function must be invoked before invoking any other
// function exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
	cmdLineKV = nil
}

func getInfo() *info {
	if infoData == 0 {
		return nil
	}
	return (*info)(unsafe.Pointer(mm.PhysToVirt(infoData)))
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
// Region types that the kernel does not know about are reported as
// MemReserved.
func VisitMemRegions(visitor MemRegionVisitor) {
	mbInfo := getInfo()
	if mbInfo == nil || mbInfo.flags&flagMemMap == 0 {
		return
	}

	var (
		entry  MemoryMapEntry
		curPtr = uintptr(mbInfo.mmapAddr)
		endPtr = curPtr + uintptr(mbInfo.mmapLength)
	)

	for curPtr+mmapSizeFieldLen+mmapMinEntrySize <= endPtr {
		recPtr := mm.PhysToVirt(curPtr)
		entrySize := readUint32(recPtr + mmapSizeOffset)
		if entrySize < mmapMinEntrySize {
			return
		}

		entry.PhysAddress = readUint64(recPtr + mmapBaseOffset)
		entry.Length = readUint64(recPtr + mmapLengthOffset)
		entry.Type = MemoryEntryType(readUint32(recPtr + mmapTypeOffset))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(&entry) {
			return
		}

		curPtr += mmapSizeFieldLen + uintptr(entrySize)
	}
}

// VisitBootData reports the physical memory occupied by the info structure,
// the memory map and the command line. This memory must not be reused while
// any function of this package may still be called.
func VisitBootData(visitor BootDataVisitor) {
	mbInfo := getInfo()
	if mbInfo == nil {
		return
	}

	if !visitor(infoData, infoData+unsafe.Sizeof(*mbInfo)) {
		return
	}

	if mbInfo.flags&flagMemMap != 0 && mbInfo.mmapLength != 0 {
		start := uintptr(mbInfo.mmapAddr)
		if !visitor(start, start+uintptr(mbInfo.mmapLength)) {
			return
		}
	}

	if mbInfo.flags&flagCmdLine != 0 && mbInfo.cmdLine != 0 {
		// include the NUL terminator
		start := uintptr(mbInfo.cmdLine)
		visitor(start, start+uintptr(len(bootCmdLine()))+1)
	}
}

// VisitBootCmdLine invokes visitor for each whitespace-separated field of the
// kernel command line. A field of the form "key=value" is split at the first
// '='; a bare field "foo" is reported as key and value "foo". Unlike
// GetBootCmdLine, VisitBootCmdLine does not allocate and can be used before
// any allocator is available.
func VisitBootCmdLine(visitor CmdLineVisitor) {
	cmdLine := bootCmdLine()

	for start := 0; start < len(cmdLine); {
		for start < len(cmdLine) && isSpace(cmdLine[start]) {
			start++
		}

		end, sep := start, -1
		for ; end < len(cmdLine) && !isSpace(cmdLine[end]); end++ {
			if cmdLine[end] == '=' && sep == -1 {
				sep = end
			}
		}

		if end > start {
			field := cmdLine[start:end]
			key, value := field, field
			if sep != -1 {
				key, value = cmdLine[start:sep], cmdLine[sep+1:end]
			}

			if !visitor(bytesToString(key), bytesToString(value)) {
				return
			}
		}

		start = end
	}
}

// GetBootCmdLine returns the command line key-value pairs passed to the
// kernel. The returned map owns copies of the keys and values. This function
// must only be invoked once the Go heap is usable. The boot sequence keeps
// the pages reported by VisitBootData out of the frame allocator so the
// command line is still intact at that point.
func GetBootCmdLine() map[string]string {
	if cmdLineKV != nil {
		return cmdLineKV
	}

	cmdLineKV = make(map[string]string)
	VisitBootCmdLine(func(key, value string) bool {
		cmdLineKV[string([]byte(key))] = string([]byte(value))
		return true
	})

	return cmdLineKV
}

// bootCmdLine returns the command line bytes excluding the NUL terminator.
func bootCmdLine() []byte {
	mbInfo := getInfo()
	if mbInfo == nil || mbInfo.flags&flagCmdLine == 0 || mbInfo.cmdLine == 0 {
		return nil
	}

	ptr := mm.PhysToVirt(uintptr(mbInfo.cmdLine))
	n := 0
	for n < maxCmdLineLen && *(*byte)(unsafe.Pointer(ptr + uintptr(n))) != 0 {
		n++
	}

	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// bytesToString returns a string sharing the memory of b.
func bytesToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// readUint32 and readUint64 perform little-endian loads from addresses that
// are only guaranteed to be 4-byte aligned.
func readUint32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

func readUint64(addr uintptr) uint64 {
	return uint64(readUint32(addr)) | uint64(readUint32(addr+4))<<32
}
