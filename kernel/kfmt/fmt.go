// Package kfmt implements the kernel's diagnostic output: an allocation-free
// Printf, a ring buffer that captures output until a sink is attached, and
// the fatal-stop path used for unrecoverable errors.
package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	digits = "0123456789abcdef"

	// numFmtBuf is the scratch space used by fmtInt. Numbers are written
	// right-to-left so no reversal pass is needed.
	numFmtBuf [maxBufSize]byte

	// singleByte is used as a shared buffer for passing single characters
	// to doWrite.
	singleByte = []byte(" ")

	// earlyPrintBuffer captures Printf output while no sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink receives Printf output. A nil sink redirects output to
	// earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the target for calls to Printf to w and replays any data
// accumulated in the early print buffer into it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf provides a minimal Printf implementation that does not allocate
// memory, so it can be used while the memory core is still bootstrapping.
//
// The supported verbs are:
//
//	%s string, []byte or ByteSize (rendered in human-readable units)
//	%o base 8 integer
//	%d base 10 integer
//	%x base 16 integer, lower-case letters
//	%t boolean
//	%% a literal percent sign
//
// An optional decimal width may precede the verb. Strings and base-10
// integers are left-padded with spaces; base-8 and base-16 integers are
// left-padded with zeroes.
//
// Arguments are never checked for io.Stringer or error implementations;
// values of any other type are reported as %!(WRONGTYPE).
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var argIndex int

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			writeByte(w, format[i])
			continue
		}

		width := 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			doWrite(w, errNoVerb)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			writeByte(w, '%')
			continue
		case 'o', 'd', 'x', 's', 't':
		default:
			doWrite(w, errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			doWrite(w, errMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'o':
			fmtInt(w, arg, 8, width)
		case 'd':
			fmtInt(w, arg, 10, width)
		case 'x':
			fmtInt(w, arg, 16, width)
		case 's':
			fmtString(w, arg, width)
		case 't':
			fmtBool(w, arg)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

// fmtBool prints a formatted version of boolean value v.
func fmtBool(w io.Writer, v interface{}) {
	bVal, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case bVal:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

// fmtString prints a string, byte slice or ByteSize value, left-padding it
// with spaces up to padLen characters.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		// converting the string to a byte slice triggers a memory allocation
		// so it is written one byte at a time.
		for i := 0; i < len(castedVal); i++ {
			writeByte(w, castedVal[i])
		}
	case []byte:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		doWrite(w, castedVal)
	case ByteSize:
		fmtByteSize(w, castedVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtRepeat writes count copies of ch.
func fmtRepeat(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// fmtInt prints v in the requested base, applying the padding specified by
// padLen. All built-in signed and unsigned integer types are supported.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		uval     uint64
		sval     int64
		signed   bool
		negative bool
	)

	switch t := v.(type) {
	case uint8:
		uval = uint64(t)
	case uint16:
		uval = uint64(t)
	case uint32:
		uval = uint64(t)
	case uint64:
		uval = t
	case uint:
		uval = uint64(t)
	case uintptr:
		uval = uint64(t)
	case int8:
		sval, signed = int64(t), true
	case int16:
		sval, signed = int64(t), true
	case int32:
		sval, signed = int64(t), true
	case int64:
		sval, signed = t, true
	case int:
		sval, signed = int64(t), true
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if signed {
		if sval < 0 {
			negative = true
			uval = uint64(-sval)
		} else {
			uval = uint64(sval)
		}
	}

	if padLen > maxBufSize-1 {
		padLen = maxBufSize - 1
	}

	pos := maxBufSize
	for {
		pos--
		numFmtBuf[pos] = digits[uval%uint64(base)]
		uval /= uint64(base)
		if uval == 0 {
			break
		}
	}

	// Zero padding goes between the sign and the digits; space padding
	// goes in front of the sign and counts it towards the width.
	if base == 10 {
		if negative {
			pos--
			numFmtBuf[pos] = '-'
		}
		for maxBufSize-pos < padLen {
			pos--
			numFmtBuf[pos] = ' '
		}
	} else {
		for maxBufSize-pos < padLen {
			pos--
			numFmtBuf[pos] = '0'
		}
		if negative {
			pos--
			numFmtBuf[pos] = '-'
		}
	}

	doWrite(w, numFmtBuf[pos:])
}

// writeByte sends a single byte to w.
func writeByte(w io.Writer, b byte) {
	singleByte[0] = b
	doWrite(w, singleByte)
}

// doWrite is a proxy that uses the runtime.noescape hack to hide p from the
// compiler's escape analysis. Without it, the call through the io.Writer
// interface makes p escape and every Printf call would allocate.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		_, _ = w.Write(p)
	} else {
		_, _ = earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
