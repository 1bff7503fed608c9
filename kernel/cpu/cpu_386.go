// Package cpu exposes the privileged x86 instructions used by the memory
// core. The functions are implemented in assembly.
package cpu

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt disables interrupts and stops instruction execution. It never returns.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page directory to point to the specified physical
// address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page
// directory.
func ActivePDT() uintptr

// EnablePaging turns on 4 MiB page support (CR4.PSE) and then paging
// (CR0.PG). CR3 must already point to a valid page directory that maps the
// code executing this instruction.
func EnablePaging()
