package pmm

import (
	"kfs/kernel/kfmt"
	"kfs/kernel/mm"
	"testing"
)

func TestFrameAllocatorLIFOOrder(t *testing.T) {
	alloc := NewFrameAllocator(make([]mm.Frame, 3))

	for _, addr := range []uintptr{0x100000, 0x101000, 0x102000} {
		alloc.FreeFrame(mm.FrameFromAddress(addr))
	}

	for _, expAddr := range []uintptr{0x102000, 0x101000, 0x100000} {
		frame, err := alloc.AllocFrame()
		if err != nil {
			t.Fatal(err)
		}

		if got := frame.Address(); got != expAddr {
			t.Fatalf("expected frame at 0x%x; got 0x%x", expAddr, got)
		}
	}

	frame, err := alloc.AllocFrame()
	if err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}
	if frame.Valid() {
		t.Fatal("expected an invalid frame on error")
	}
}

func TestFrameAllocatorStackDiscipline(t *testing.T) {
	alloc := NewFrameAllocator(make([]mm.Frame, 64))

	alloc.FreeFrame(mm.Frame(10))
	alloc.FreeFrame(mm.Frame(20))
	if frame, _ := alloc.AllocFrame(); frame != mm.Frame(20) {
		t.Fatalf("expected the most recently released frame; got %d", frame)
	}
	if frame, _ := alloc.AllocFrame(); frame != mm.Frame(10) {
		t.Fatalf("expected frame 10; got %d", frame)
	}

	// interleave releases and allocations; every deposited frame must come
	// back exactly once.
	seen := make(map[mm.Frame]int)
	next := mm.Frame(256)
	for round := 0; round < 8; round++ {
		for i := 0; i < 5; i++ {
			alloc.FreeFrame(next)
			next++
		}
		for i := 0; i < 3; i++ {
			frame, err := alloc.AllocFrame()
			if err != nil {
				t.Fatal(err)
			}
			seen[frame]++
		}
	}

	for {
		frame, err := alloc.AllocFrame()
		if err != nil {
			break
		}
		seen[frame]++
	}

	if exp := int(next - 256); len(seen) != exp {
		t.Fatalf("expected %d distinct frames; got %d", exp, len(seen))
	}
	for frame, count := range seen {
		if count != 1 {
			t.Errorf("frame %d was handed out %d times", frame, count)
		}
	}
}

func TestFrameAllocatorAccounting(t *testing.T) {
	alloc := NewFrameAllocator(make([]mm.Frame, 8))

	if exp, got := 8, alloc.Capacity(); got != exp {
		t.Fatalf("expected capacity %d; got %d", exp, got)
	}

	if got := alloc.RemainingMemory(); got != 0 {
		t.Fatalf("expected a new allocator to be empty; got %d bytes", got)
	}

	for i := 0; i < 5; i++ {
		alloc.FreeFrame(mm.Frame(i + 1))
	}

	if exp, got := 5*mm.Size(mm.PageSize), alloc.RemainingMemory(); got != exp {
		t.Fatalf("expected %d bytes of free memory; got %d", exp, got)
	}

	_, _ = alloc.AllocFrame()
	if exp, got := 4, alloc.FreeFrames(); got != exp {
		t.Fatalf("expected %d free frames; got %d", exp, got)
	}
}

func TestFrameAllocatorOverflow(t *testing.T) {
	defer func() {
		panicFn = kfmt.Panic
	}()

	var panicErr interface{}
	panicFn = func(e interface{}) { panicErr = e }

	alloc := NewFrameAllocator(make([]mm.Frame, 2))
	alloc.FreeFrame(mm.Frame(1))
	alloc.FreeFrame(mm.Frame(2))

	if panicErr != nil {
		t.Fatalf("unexpected kernel stop: %v", panicErr)
	}

	alloc.FreeFrame(mm.Frame(3))

	if panicErr != errFreeListFull {
		t.Fatalf("expected the kernel to be stopped with errFreeListFull; got %v", panicErr)
	}

	if frame, _ := alloc.AllocFrame(); frame != mm.Frame(2) {
		t.Fatalf("expected the rejected frame not to be stored; got %d", frame)
	}
}
