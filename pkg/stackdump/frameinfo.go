package stackdump

import (
	"fmt"
	"strings"

	"github.com/go-delve/crashwalk/pkg/regs"
)

// FrameInfo is filled in by a VMUnwinder with the description of one
// managed frame. Every field is optional.
type FrameInfo struct {
	ClassName  string
	MethodName string
	Signature  string
	FileName   string
	Line       int

	// State is the iteration state of the VMUnwinder. It is allocated,
	// zeroed, by the renderer when the unwinder asks for it and it lives
	// until the end of the render.
	State []byte
}

// HasInfo reports whether any descriptive field is set.
func (fi *FrameInfo) HasInfo() bool {
	return fi.ClassName != "" || fi.MethodName != "" || fi.Signature != "" || fi.FileName != ""
}

func (fi *FrameInfo) reset() {
	state := fi.State
	*fi = FrameInfo{State: state}
}

// name returns Class.methodSignature with the parts that are known.
func (fi *FrameInfo) name() string {
	var b strings.Builder
	if fi.ClassName != "" {
		b.WriteString(fi.ClassName)
		b.WriteByte('.')
	}
	if fi.MethodName != "" {
		b.WriteString(fi.MethodName)
	} else {
		b.WriteString("<unknown>")
	}
	b.WriteString(fi.Signature)
	return b.String()
}

func (fi *FrameInfo) source() string {
	switch {
	case fi.FileName == "":
		return "(Unknown Source)"
	case fi.Line > 0:
		return fmt.Sprintf("(%s:%d)", fi.FileName, fi.Line)
	default:
		return fmt.Sprintf("(%s)", fi.FileName)
	}
}

// VMUnwinder describes the managed frames of a runtime on top of the
// native stack.
//
// UnwindFrame is called with the registers of the current native frame.
// It returns 0 after describing one managed frame in info and advancing
// its own cursor, a positive N to ask for info.State to be allocated with
// N bytes before being called again, or a negative value when it has no
// frame to describe at r. With a negative return the fields of info may
// still hold a partial description of the native frame.
type VMUnwinder interface {
	UnwindFrame(r regs.Registers, info *FrameInfo) int
}

// VMUnwinderFunc adapts a function to the VMUnwinder interface.
type VMUnwinderFunc func(r regs.Registers, info *FrameInfo) int

func (f VMUnwinderFunc) UnwindFrame(r regs.Registers, info *FrameInfo) int {
	return f(r, info)
}
