// Package regs is the platform normalized snapshot of the CPU registers of
// one thread. The rest of crashwalk only uses the accessors of the
// Registers interface, never architecture specific field names.
package regs

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Registers is an interface for a generic register type. The
// interface encapsulates the generic values / actions
// we need independent of arch. The concrete register types
// will be different depending on OS/Arch.
type Registers interface {
	PC() uint64
	SP() uint64
	BP() uint64
	SetPC(uint64)
	SetSP(uint64)
	SetBP(uint64)
	// Slice returns the general purpose registers as (name, value) pairs
	// in the order they should be printed.
	Slice() []Register
	// Copy returns a copy of the registers that does not share any state
	// with the receiver.
	Copy() Registers
	Arch() *Arch
}

// Register represents a CPU register.
type Register struct {
	Name  string
	Value uint64
	// Text is the formatted value, flag registers also list the names of
	// the bits that are set.
	Text string
}

// AppendDwordReg appends a double word (32 bit) register to regs.
func AppendDwordReg(regs []Register, name string, value uint32) []Register {
	return append(regs, Register{name, uint64(value), fmt.Sprintf("%#08x", value)})
}

// AppendQwordReg appends a quad word (64 bit) register to regs.
func AppendQwordReg(regs []Register, name string, value uint64) []Register {
	return append(regs, Register{name, value, fmt.Sprintf("%#016x", value)})
}

// AppendEflagReg appends an EFLAGS/RFLAGS register of bitsize bits to regs.
func AppendEflagReg(regs []Register, name string, value uint64, bitsize int) []Register {
	return append(regs, Register{name, value, eflagsDescription.Describe(value, bitsize)})
}

// Dump writes one line per register of r to w.
func Dump(w io.Writer, r Registers) error {
	var b strings.Builder
	for _, reg := range r.Slice() {
		fmt.Fprintf(&b, "%-8s %s\n", reg.Name, reg.Text)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type flagRegisterDescr []flagDescr
type flagDescr struct {
	name string
	mask uint64
}

var eflagsDescription flagRegisterDescr = []flagDescr{
	{"CF", 1 << 0},
	{"", 1 << 1},
	{"PF", 1 << 2},
	{"AF", 1 << 4},
	{"ZF", 1 << 6},
	{"SF", 1 << 7},
	{"TF", 1 << 8},
	{"IF", 1 << 9},
	{"DF", 1 << 10},
	{"OF", 1 << 11},
	{"IOPL", 1<<12 | 1<<13},
	{"NT", 1 << 14},
	{"RF", 1 << 16},
	{"VM", 1 << 17},
	{"AC", 1 << 18},
	{"VIF", 1 << 19},
	{"VIP", 1 << 20},
	{"ID", 1 << 21},
}

func (descr flagRegisterDescr) Mask() uint64 {
	var r uint64
	for _, f := range descr {
		r = r | f.mask
	}
	return r
}

func (descr flagRegisterDescr) Describe(reg uint64, bitsize int) string {
	var r []string
	for _, f := range descr {
		if f.name == "" {
			continue
		}
		// rbm is f.mask with only the right-most bit set:
		// 0001 1100 -> 0000 0100
		rbm := f.mask & -f.mask
		if rbm == f.mask {
			if reg&f.mask != 0 {
				r = append(r, f.name)
			}
		} else {
			x := (reg & f.mask) >> uint64(math.Log2(float64(rbm)))
			r = append(r, fmt.Sprintf("%s=%x", f.name, x))
		}
	}
	if reg & ^descr.Mask() != 0 {
		r = append(r, fmt.Sprintf("unknown_flags=%x", reg&^descr.Mask()))
	}
	return fmt.Sprintf("%#0*x\t[%s]", bitsize/4+2, reg, strings.Join(r, " "))
}
