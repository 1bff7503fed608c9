//go:build !386
// +build !386

package cpu

// Hosted builds (unit tests on a development machine) cannot execute
// privileged instructions. Callers reach these functions through
// package-level function variables that tests replace, so reaching one of
// the stubs below means a test forgot to install a mock.

func privileged(name string) {
	panic("cpu: " + name + " requires ring 0 on a 386 target")
}

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() { privileged("DisableInterrupts") }

// Halt disables interrupts and stops instruction execution.
func Halt() { privileged("Halt") }

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr) { privileged("FlushTLBEntry") }

// SwitchPDT sets the root page directory to point to the specified physical
// address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr) { privileged("SwitchPDT") }

// ActivePDT returns the physical address of the currently active page
// directory.
func ActivePDT() uintptr {
	privileged("ActivePDT")
	return 0
}

// EnablePaging turns on 4 MiB page support and paging.
func EnablePaging() { privileged("EnablePaging") }
