// Package mm contains the types shared by the physical and virtual memory
// managers.
package mm

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = ^Frame(0)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address of the start of this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Addresses that are not page-aligned are rounded down.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address of the start of this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page that contains the given virtual address.
// Addresses that are not page-aligned are rounded down.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

// PhysToVirtFn converts a physical address into an address the CPU can
// dereference.
type PhysToVirtFn func(physAddr uintptr) uintptr

var (
	// physToVirt points to the conversion function registered with
	// SetPhysToVirt.
	physToVirt PhysToVirtFn = identityMap
)

func identityMap(physAddr uintptr) uintptr { return physAddr }

// SetPhysToVirt registers the function used by PhysToVirt. Passing nil
// restores the identity conversion, which is correct both before paging is
// enabled and afterwards, since the boot address space identity-maps all
// usable memory.
func SetPhysToVirt(fn PhysToVirtFn) {
	if fn == nil {
		fn = identityMap
	}
	physToVirt = fn
}

// PhysToVirt returns a dereferenceable address for physAddr.
func PhysToVirt(physAddr uintptr) uintptr { return physToVirt(physAddr) }
