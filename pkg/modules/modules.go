// Package modules is the registry of loaded native modules and their
// address ranges. It is used to decide whether an address belongs to code,
// data or to nothing known at all.
package modules

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnsupported is returned by Enumerate on platforms where the address
// space of a process can not be listed.
var ErrUnsupported = errors.New("module enumeration not supported on this platform")

// SegmentKind classifies the contents of a segment.
type SegmentKind uint8

const (
	Unknown SegmentKind = iota
	Code
	Data
)

func (k SegmentKind) String() string {
	switch k {
	case Code:
		return "code"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// KindFromPerm returns the segment kind for a permission string in the
// /proc/<pid>/maps format ("r-xp", "rw-p", "---p").
func KindFromPerm(perm string) SegmentKind {
	if len(perm) < 3 {
		return Unknown
	}
	switch {
	case perm[2] == 'x':
		return Code
	case perm[0] == 'r' || perm[1] == 'w':
		return Data
	}
	return Unknown
}

// Segment is one contiguous address range of a module.
type Segment struct {
	Base uint64
	Size uint64
	Kind SegmentKind
	// Offset is the offset in the backing file of the first byte of the
	// segment, zero for anonymous memory.
	Offset uint64
}

// End returns the first address past the segment.
func (s Segment) End() uint64 {
	return s.Base + s.Size
}

// Contains returns true if addr is inside the segment.
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.Base && addr-s.Base < s.Size
}

// Module is a loaded executable, shared library or anonymous mapping.
type Module struct {
	// Path of the backing file, empty for anonymous memory.
	Path string
	// Name is the pseudo-name of an anonymous region, such as "[stack]" or
	// "[vdso]", if the operating system gave it one.
	Name string
	// Predefined is true when Name is a pseudo-name assigned by the
	// operating system rather than a file path.
	Predefined bool
	Segments   []Segment
}

// Anonymous returns true if the module is not backed by a file.
func (m *Module) Anonymous() bool {
	return m.Path == ""
}

// DisplayName returns Path, Name or "<anonymous>", whichever is set first.
func (m *Module) DisplayName() string {
	switch {
	case m.Path != "":
		return m.Path
	case m.Name != "":
		return m.Name
	}
	return "<anonymous>"
}

// Base returns the lowest address of the module.
func (m *Module) Base() uint64 {
	if len(m.Segments) == 0 {
		return 0
	}
	base := m.Segments[0].Base
	for _, seg := range m.Segments[1:] {
		if seg.Base < base {
			base = seg.Base
		}
	}
	return base
}

// Segment returns the segment of m containing addr, or nil.
func (m *Module) Segment(addr uint64) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Contains(addr) {
			return &m.Segments[i]
		}
	}
	return nil
}

// List is an ordered list of modules. The list owns its modules.
type List []*Module

// Find returns the first module with a segment containing addr, or nil.
func (l List) Find(addr uint64) *Module {
	m, _ := l.FindSegment(addr)
	return m
}

// FindSegment returns the first module with a segment containing addr and
// that segment. Both are nil when no module contains addr.
func (l List) FindSegment(addr uint64) (*Module, *Segment) {
	for _, m := range l {
		if seg := m.Segment(addr); seg != nil {
			return m, seg
		}
	}
	return nil, nil
}

// IsCode returns true if addr is inside a code segment.
func (l List) IsCode(addr uint64) bool {
	_, seg := l.FindSegment(addr)
	return seg != nil && seg.Kind == Code
}

// Dump writes the path of every file backed module followed by the address
// ranges of its segments.
func (l List) Dump(w io.Writer) error {
	var b strings.Builder
	for _, m := range l {
		if m.Anonymous() {
			continue
		}
		fmt.Fprintf(&b, "%s\n", m.Path)
		for _, seg := range m.Segments {
			fmt.Fprintf(&b, "\t%#016x - %#016x %s\n", seg.Base, seg.End(), seg.Kind)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Clear releases all modules. Calling Clear on an empty list is a no-op.
func (l *List) Clear() {
	for i := range *l {
		(*l)[i] = nil
	}
	*l = nil
}

// Range is one mapping of the address space, as reported by the operating
// system, before coalescing.
type Range struct {
	Base   uint64
	Size   uint64
	Kind   SegmentKind
	// Perm is the permission column of the mapping, for example "r-xp".
	Perm   string
	Offset uint64
	// Name is a file path, a bracketed pseudo-name or empty.
	Name string
}

func isPseudoName(name string) bool {
	return strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]")
}

// Build creates a module list from ranges sorted by address. Ranges backed
// by the same file are grouped under a single module, one segment per
// range. Every anonymous range becomes a module of its own.
func Build(ranges []Range) List {
	var l List
	byPath := make(map[string]*Module)
	for _, r := range ranges {
		if r.Size == 0 {
			continue
		}
		seg := Segment{Base: r.Base, Size: r.Size, Kind: r.Kind, Offset: r.Offset}
		m := &Module{Segments: []Segment{seg}}
		switch {
		case r.Name == "":
		case isPseudoName(r.Name):
			m.Name = r.Name
			m.Predefined = true
		default:
			if prev := byPath[r.Name]; prev != nil {
				prev.Segments = append(prev.Segments, seg)
				continue
			}
			m.Path = r.Name
			byPath[r.Name] = m
		}
		l = append(l, m)
	}
	return l
}
