package kernel

import "unsafe"

// Memset sets size bytes starting at addr to value. After writing the first
// byte the filled prefix is doubled with copy on every iteration, so a page
// is cleared with log2(PageSize) copy calls instead of a byte loop.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	target[0] = value
	for filled := uintptr(1); filled < size; filled *= 2 {
		copy(target[filled:], target[:filled])
	}
}
