package memory

import "sort"

type region struct {
	addr uint64
	data []byte
}

func (r *region) end() uint64 {
	return r.addr + uint64(len(r.data))
}

// Snapshot is memory made of byte regions placed at virtual addresses, for
// example a copy of a thread stack taken at crash time. Accesses that are
// not entirely contained in one region fail.
type Snapshot struct {
	regions []region
}

// Map places data at addr. Regions must not overlap; the data is not copied.
func (s *Snapshot) Map(addr uint64, data []byte) {
	s.regions = append(s.regions, region{addr, data})
	sort.Slice(s.regions, func(i, j int) bool { return s.regions[i].addr < s.regions[j].addr })
}

func (s *Snapshot) find(addr uint64, size int) *region {
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].end() > addr })
	if i >= len(s.regions) {
		return nil
	}
	r := &s.regions[i]
	if addr < r.addr || addr+uint64(size) > r.end() || addr+uint64(size) < addr {
		return nil
	}
	return r
}

func (s *Snapshot) ReadMemory(buf []byte, addr uint64) (int, error) {
	r := s.find(addr, len(buf))
	if r == nil {
		return 0, &FaultError{Addr: addr, Size: len(buf)}
	}
	return copy(buf, r.data[addr-r.addr:]), nil
}

func (s *Snapshot) WriteMemory(addr uint64, data []byte) (int, error) {
	r := s.find(addr, len(data))
	if r == nil {
		return 0, &FaultError{Addr: addr, Size: len(data), Write: true}
	}
	return copy(r.data[addr-r.addr:], data), nil
}
