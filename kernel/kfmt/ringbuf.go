package kfmt

import "io"

// ringBufferSize is large enough to hold a full 80x25 text screen. It must
// be a power of 2.
const ringBufferSize = 2048

// ringBuffer keeps the most recent ringBufferSize bytes written to it. Once
// full, each new byte evicts the oldest one.
type ringBuffer struct {
	buffer       [ringBufferSize]byte
	start, count int
}

// Write appends p to the buffer, overwriting the oldest data if needed. It
// never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[(rb.start+rb.count)&(ringBufferSize-1)] = b
		if rb.count == ringBufferSize {
			rb.start = (rb.start + 1) & (ringBufferSize - 1)
		} else {
			rb.count++
		}
	}

	return len(p), nil
}

// Read drains up to len(p) of the oldest buffered bytes into p. It returns
// io.EOF once the buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	n := 0
	for ; n < len(p) && rb.count > 0; n++ {
		p[n] = rb.buffer[rb.start]
		rb.start = (rb.start + 1) & (ringBufferSize - 1)
		rb.count--
	}

	return n, nil
}
