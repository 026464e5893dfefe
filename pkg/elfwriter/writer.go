// Package elfwriter writes 64bit little endian ELF core files without
// holding their contents in memory: the file header is written first, then
// notes and segment contents, and the program headers last.
//
// Section headers are not written.
package elfwriter

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"io"
)

const (
	ehsize    = 64
	phentsize = 56
)

// Note is an entry of a PT_NOTE segment.
type Note struct {
	Type elf.NType
	Name string
	Data []byte
}

// Writer writes ELF files. The first error encountered is stored in Err
// and every following write is skipped.
type Writer struct {
	w     io.WriteSeeker
	Err   error
	Progs []*elf.ProgHeader

	seekProgHeader int64
	seekProgNum    int64
}

// New writes the file header described by fhdr to w, which must be
// positioned at its start.
func New(w io.WriteSeeker, fhdr *elf.FileHeader) (*Writer, error) {
	if fhdr.Class != elf.ELFCLASS64 || fhdr.Data != elf.ELFDATA2LSB {
		return nil, errors.New("only 64bit little endian ELF files can be written")
	}
	if seek, err := w.Seek(0, io.SeekCurrent); err != nil || seek != 0 {
		return nil, errors.New("ELF files must be written from the start of the file")
	}

	r := &Writer{w: w}

	// e_ident
	r.Write([]byte{0x7f, 'E', 'L', 'F', byte(fhdr.Class), byte(fhdr.Data), byte(fhdr.Version), byte(fhdr.OSABI), byte(fhdr.ABIVersion), 0, 0, 0, 0, 0, 0, 0})

	r.u16(uint16(fhdr.Type))    // e_type
	r.u16(uint16(fhdr.Machine)) // e_machine
	r.u32(uint32(fhdr.Version)) // e_version
	r.u64(fhdr.Entry)           // e_entry
	r.seekProgHeader = r.Here()
	r.u64(0)         // e_phoff
	r.u64(0)         // e_shoff
	r.u32(0)         // e_flags
	r.u16(ehsize)    // e_ehsize
	r.u16(phentsize) // e_phentsize
	r.seekProgNum = r.Here()
	r.u16(0)                     // e_phnum
	r.u16(0)                     // e_shentsize
	r.u16(0)                     // e_shnum
	r.u16(uint16(elf.SHN_UNDEF)) // e_shstrndx

	if r.Err != nil {
		return nil, r.Err
	}
	if r.Here() != ehsize {
		return nil, errors.New("internal error, ELF header size")
	}
	return r, nil
}

// WriteNotes writes notes at the current location and adds a PT_NOTE
// program header describing them.
func (w *Writer) WriteNotes(notes []Note) *elf.ProgHeader {
	if len(notes) == 0 {
		return nil
	}
	h := &elf.ProgHeader{
		Type:  elf.PT_NOTE,
		Align: 4,
	}
	w.Align(4)
	h.Off = uint64(w.Here())
	for i := range notes {
		note := &notes[i]
		// the name is NUL terminated, its size includes the terminator
		w.u32(uint32(len(note.Name) + 1))
		w.u32(uint32(len(note.Data)))
		w.u32(uint32(note.Type))
		w.Write(append([]byte(note.Name), 0))
		w.Align(4)
		w.Write(note.Data)
		w.Align(4)
	}
	h.Filesz = uint64(w.Here()) - h.Off
	w.Progs = append(w.Progs, h)
	return h
}

// BeginSegment aligns the file to h.Align and records the current
// location as the file offset of h. The contents of the segment are
// written with Write, then EndSegment must be called.
func (w *Writer) BeginSegment(h *elf.ProgHeader) {
	if h.Align > 1 {
		w.Align(int64(h.Align))
	}
	h.Off = uint64(w.Here())
}

// EndSegment sets the file size of h to what was written since
// BeginSegment and adds h to the program headers.
func (w *Writer) EndSegment(h *elf.ProgHeader) {
	h.Filesz = uint64(w.Here()) - h.Off
	w.Progs = append(w.Progs, h)
}

// WriteProgramHeaders writes the program headers at the current location
// and patches the file header accordingly. It returns the first error
// encountered while writing the file.
func (w *Writer) WriteProgramHeaders() error {
	w.Align(8)
	phoff := w.Here()

	for _, prog := range w.Progs {
		w.u32(uint32(prog.Type))
		w.u32(uint32(prog.Flags))
		w.u64(prog.Off)
		w.u64(prog.Vaddr)
		w.u64(prog.Paddr)
		w.u64(prog.Filesz)
		w.u64(prog.Memsz)
		w.u64(prog.Align)
	}

	w.seek(w.seekProgHeader)
	w.u64(uint64(phoff))
	w.seek(w.seekProgNum)
	w.u16(uint16(len(w.Progs)))
	if w.Err == nil {
		_, w.Err = w.w.Seek(0, io.SeekEnd)
	}
	return w.Err
}

// Here returns the current seek offset from the start of the file.
func (w *Writer) Here() int64 {
	r, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil && w.Err == nil {
		w.Err = err
	}
	return r
}

// Align writes as many padding bytes as needed to make the current file
// offset a multiple of align.
func (w *Writer) Align(align int64) {
	off := w.Here()
	alignOff := (off + (align - 1)) &^ (align - 1)
	if alignOff-off > 0 {
		w.Write(make([]byte, alignOff-off))
	}
}

func (w *Writer) Write(buf []byte) {
	if w.Err != nil {
		return
	}
	_, w.Err = w.w.Write(buf)
}

func (w *Writer) seek(off int64) {
	if w.Err != nil {
		return
	}
	_, w.Err = w.w.Seek(off, io.SeekStart)
}

func (w *Writer) u16(n uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], n)
	w.Write(buf[:])
}

func (w *Writer) u32(n uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], n)
	w.Write(buf[:])
}

func (w *Writer) u64(n uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	w.Write(buf[:])
}
