// Package kmain contains the kernel entry point and the boot sequence that
// brings up paging and physical memory management.
package kmain

import (
	"kfs/kernel"
	"kfs/kernel/cpu"
	"kfs/kernel/kfmt"
	"kfs/multiboot"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	panicFn             = kfmt.Panic
	disableInterruptsFn = cpu.DisableInterrupts

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code passes the physical address of the
// multiboot info structure provided by the bootloader as well as the physical
// addresses for the kernel start/end.
//
// Kmain masks interrupts first and runs with paging off. It sets up the
// identity mapped boot address space, enables paging and installs the
// kernel-wide frame allocator. Any failure is fatal.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	disableInterruptsFn()
	multiboot.SetInfoPtr(multibootInfoPtr)

	if err := initMemory(kernelStart, kernelEnd); err != nil {
		panicFn(err)
		return
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}
