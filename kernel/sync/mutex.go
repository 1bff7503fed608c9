// Package sync provides the kernel's mutual exclusion primitive.
package sync

import (
	"kfs/kernel"
	"kfs/kernel/kfmt"
	"runtime"
	"sync/atomic"
)

var (
	// panicFn is mocked by tests and is automatically inlined by the compiler.
	panicFn = kfmt.Panic

	errAlreadyLocked = &kernel.Error{Module: "sync", Message: "attempted to lock a mutex that was already being used"}
)

// Mutex protects state shared between the boot path, steady-state code and
// interrupt handlers. The kernel has no way to block or yield, so a Mutex
// never waits: finding it already locked means the same resource is being
// used re-entrantly, which is a bug, and Lock stops the kernel.
//
// The zero value is an unlocked mutex.
type Mutex struct {
	state uint32

	// Location of the call that currently holds the lock.
	lockedAtFile string
	lockedAtLine int
}

// TryLock attempts to acquire the mutex and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	if !atomic.CompareAndSwapUint32(&m.state, 0, 1) {
		return false
	}

	_, m.lockedAtFile, m.lockedAtLine, _ = runtime.Caller(1)
	return true
}

// Lock acquires the mutex. If the mutex is already held, Lock reports both
// the location that holds it and the location of the failed attempt and then
// halts the kernel.
func (m *Mutex) Lock() {
	if atomic.CompareAndSwapUint32(&m.state, 0, 1) {
		_, m.lockedAtFile, m.lockedAtLine, _ = runtime.Caller(1)
		return
	}

	_, file, line, _ := runtime.Caller(1)
	kfmt.Printf("[sync] mutex locked at %s:%d\n", m.lockedAtFile, m.lockedAtLine)
	kfmt.Printf("[sync] lock attempted at %s:%d\n", file, line)
	panicFn(errAlreadyLocked)
}

// Unlock releases the mutex. It must only be called by the holder.
func (m *Mutex) Unlock() {
	m.lockedAtFile, m.lockedAtLine = "", 0
	atomic.StoreUint32(&m.state, 0)
}
