package kfmt

import "io"

// ByteSize is a byte count that %s renders in binary units, e.g.
// "512 B", "4 MiB" or "126.93 MiB". The fractional part is truncated to two
// digits and omitted when it is zero.
type ByteSize uint64

var byteSizeUnits = [...]string{"KiB", "MiB", "GiB", "TiB", "PiB"}

// fmtByteSize writes the human-readable form of size to w.
func fmtByteSize(w io.Writer, size ByteSize) {
	val := uint64(size)
	if val < 1024 {
		fmtInt(w, val, 10, 0)
		fmtString(w, " B", 0)
		return
	}

	unit := 0
	for val >= 1024*1024 && unit < len(byteSizeUnits)-1 {
		val /= 1024
		unit++
	}

	fmtInt(w, val/1024, 10, 0)
	if frac := ((val % 1024) * 100) / 1024; frac != 0 {
		writeByte(w, '.')
		writeByte(w, digits[frac/10])
		writeByte(w, digits[frac%10])
	}
	writeByte(w, ' ')
	fmtString(w, byteSizeUnits[unit], 0)
}
