package pmm

import (
	"kfs/kernel/mm"
	"unsafe"
)

// physArena backs a fake physical address range with Go memory and exposes
// it through mm.PhysToVirt.
type physArena struct {
	base uintptr
	mem  []byte
}

func newPhysArena(base uintptr, size mm.Size) *physArena {
	arena := &physArena{base: base, mem: make([]byte, size)}
	mm.SetPhysToVirt(arena.physToVirt)
	return arena
}

func (arena *physArena) physToVirt(physAddr uintptr) uintptr {
	if physAddr < arena.base || physAddr-arena.base >= uintptr(len(arena.mem)) {
		panic("physArena: address outside of the arena")
	}
	return uintptr(unsafe.Pointer(&arena.mem[physAddr-arena.base]))
}

func (arena *physArena) release() {
	mm.SetPhysToVirt(nil)
}
