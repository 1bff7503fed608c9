package vmm

import (
	"kfs/kernel/kfmt"
	"testing"
)

func TestAddressDecomposition(t *testing.T) {
	specs := []struct {
		virtAddr          uintptr
		expDirIndex       TableIndex
		expTableIndex     TableIndex
		expPageOffset     uintptr
		expHugePageOffset uintptr
	}{
		{0, 0, 0, 0, 0},
		{0x1000, 0, 1, 0, 0x1000},
		{0x1fff, 0, 1, 0xfff, 0x1fff},
		{0x3ff000, 0, 1023, 0, 0x3ff000},
		{0x400000, 1, 0, 0, 0},
		{0xc0101234, 768, 257, 0x234, 0x101234},
		{0xffffffff, 1023, 1023, 0xfff, 0x3fffff},
	}

	for specIndex, spec := range specs {
		if got := DirectoryIndex(spec.virtAddr); got != spec.expDirIndex {
			t.Errorf("[spec %d] expected directory index %d; got %d", specIndex, spec.expDirIndex, got)
		}
		if got := TableIndexOf(spec.virtAddr); got != spec.expTableIndex {
			t.Errorf("[spec %d] expected table index %d; got %d", specIndex, spec.expTableIndex, got)
		}
		if got := PageOffset(spec.virtAddr); got != spec.expPageOffset {
			t.Errorf("[spec %d] expected page offset 0x%x; got 0x%x", specIndex, spec.expPageOffset, got)
		}
		if got := HugePageOffset(spec.virtAddr); got != spec.expHugePageOffset {
			t.Errorf("[spec %d] expected huge page offset 0x%x; got 0x%x", specIndex, spec.expHugePageOffset, got)
		}
	}
}

func TestNewTableIndex(t *testing.T) {
	defer func() {
		panicFn = kfmt.Panic
	}()

	var panicCalled bool
	panicFn = func(e interface{}) {
		if e != errIndexOutOfRange {
			t.Errorf("expected panic with errIndexOutOfRange; got %v", e)
		}
		panicCalled = true
	}

	for _, v := range []uintptr{0, 1, 512, 1023} {
		if got := NewTableIndex(v); uintptr(got) != v {
			t.Errorf("expected NewTableIndex(%d) to return %d; got %d", v, v, got)
		}
	}

	if panicCalled {
		t.Fatal("expected in-range indices not to stop the kernel")
	}

	for _, v := range []uintptr{1024, 4095} {
		panicCalled = false
		NewTableIndex(v)
		if !panicCalled {
			t.Errorf("expected NewTableIndex(%d) to stop the kernel", v)
		}
	}
}

func TestPageTableEntry(t *testing.T) {
	var table PageTable

	table.Entry(NewTableIndex(7)).SetFlags(FlagPresent)

	if !table[7].IsPresent() {
		t.Fatal("expected Entry to return a pointer into the table")
	}

	for i := uintptr(0); i < entriesPerTable; i++ {
		if got := table.Entry(NewTableIndex(i)); got != &table[i] {
			t.Fatalf("expected Entry(%d) to point to entry %d", i, i)
		}
	}
}
