package pmm

import (
	"kfs/kernel/kfmt"
	"kfs/kernel/mm"
	"kfs/kernel/mm/vmm"
	"testing"
)

var _ vmm.Context = FrameContext{}

func resetFrameAllocator() {
	frameAllocator = nil
	panicFn = kfmt.Panic
}

func TestGlobalFrameAllocatorBeforeInit(t *testing.T) {
	defer resetFrameAllocator()

	frame, err := AllocFrame()
	if err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory before Init; got %v", err)
	}
	if frame.Valid() {
		t.Fatal("expected an invalid frame before Init")
	}

	if got := RemainingMemory(); got != 0 {
		t.Fatalf("expected no remaining memory before Init; got %d", got)
	}

	var panicErr interface{}
	panicFn = func(e interface{}) { panicErr = e }

	FreeFrame(mm.Frame(1))
	if panicErr != errNotInitialized {
		t.Fatalf("expected releasing a frame before Init to stop the kernel; got %v", panicErr)
	}
}

func TestGlobalFrameAllocator(t *testing.T) {
	defer resetFrameAllocator()

	alloc := NewFrameAllocator(make([]mm.Frame, 4))
	alloc.FreeFrame(mm.FrameFromAddress(0x100000))
	alloc.FreeFrame(mm.FrameFromAddress(0x101000))
	Init(alloc)

	if exp, got := 2*mm.Size(mm.PageSize), RemainingMemory(); got != exp {
		t.Fatalf("expected %d bytes of remaining memory; got %d", exp, got)
	}

	frame, err := AllocFrame()
	if err != nil {
		t.Fatal(err)
	}
	if exp, got := uintptr(0x101000), frame.Address(); got != exp {
		t.Fatalf("expected frame at 0x%x; got 0x%x", exp, got)
	}

	FreeFrame(frame)
	if exp, got := 2, alloc.FreeFrames(); got != exp {
		t.Fatalf("expected %d free frames; got %d", exp, got)
	}

	t.Run("second Init", func(t *testing.T) {
		var panicErr interface{}
		panicFn = func(e interface{}) { panicErr = e }

		Init(NewFrameAllocator(nil))

		if panicErr != errAlreadyInitialized {
			t.Fatalf("expected a second Init to stop the kernel; got %v", panicErr)
		}
		if frameAllocator != alloc {
			t.Fatal("expected the first allocator to stay installed")
		}
	})

	t.Run("re-entrant access", func(t *testing.T) {
		frameAllocatorMu.Lock()
		defer frameAllocatorMu.Unlock()

		// Lock stops the kernel; the hosted halt primitive panics instead
		// of halting.
		defer func() {
			if recover() == nil {
				t.Fatal("expected re-entrant access to stop the kernel")
			}
		}()

		_, _ = AllocFrame()
	})
}

func TestFrameContext(t *testing.T) {
	defer resetFrameAllocator()

	arena := newPhysArena(0x100000, 16*mm.Kb)
	defer arena.release()

	alloc := NewFrameAllocator(make([]mm.Frame, 4))
	for addr := uintptr(0x100000); addr < 0x104000; addr += mm.PageSize {
		alloc.FreeFrame(mm.FrameFromAddress(addr))
	}
	Init(alloc)

	as, err := vmm.NewAddressSpace(FrameContext{})
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := uintptr(0x103000), as.PageDirectory(); got != exp {
		t.Fatalf("expected the page directory to use the last released frame (0x%x); got 0x%x", exp, got)
	}

	if err = as.Map4KiB(0xc0000000, 0xb8000, vmm.FlagRW); err != nil {
		t.Fatal(err)
	}

	if phys, mapped := as.Translate(0xc0000010); !mapped || phys != 0xb8010 {
		t.Fatalf("expected 0xc0000010 to translate to 0xb8010; got 0x%x, %t", phys, mapped)
	}

	if exp, got := 2*mm.Size(mm.PageSize), RemainingMemory(); got != exp {
		t.Fatalf("expected two frames to be consumed; %d bytes remain", got)
	}

	frame, _ := FrameContext{}.AllocFrame()
	FrameContext{}.FreeFrame(frame)
	if exp, got := 2, alloc.FreeFrames(); got != exp {
		t.Fatalf("expected FreeFrame to return the frame to the global allocator; got %d free frames", got)
	}
}
