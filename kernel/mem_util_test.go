package kernel

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	// memset with a 0 size should be a no-op
	Memset(uintptr(0), 0x00, 0)

	for _, size := range []uintptr{1, 3, 4096, 4096 * 3, 4096*2 + 17} {
		buf := make([]byte, size+1)
		for i := range buf {
			buf[i] = 0xFE
		}

		Memset(uintptr(unsafe.Pointer(&buf[0])), 0x00, size)

		for i := uintptr(0); i < size; i++ {
			if got := buf[i]; got != 0x00 {
				t.Errorf("[size %d] expected byte %d to be 0x00; got 0x%x", size, i, got)
				break
			}
		}

		if got := buf[size]; got != 0xFE {
			t.Errorf("[size %d] expected byte past the end of the region to be untouched; got 0x%x", size, got)
		}
	}
}
