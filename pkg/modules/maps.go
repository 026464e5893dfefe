package modules

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseMaps builds a module list from the contents of a /proc/<pid>/maps
// file. A malformed line fails the whole parse; no partial list is
// returned.
func ParseMaps(r io.Reader) (List, error) {
	ranges, err := ReadRanges(r)
	if err != nil {
		return nil, err
	}
	return Build(ranges), nil
}

// ReadRanges returns every mapping listed in a /proc/<pid>/maps file, in
// file order.
func ReadRanges(r io.Reader) ([]Range, error) {
	var ranges []Range
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	lineno := 0
	for s.Scan() {
		lineno++
		line := s.Text()
		if line == "" {
			continue
		}
		rng, err := parseMapsLine(lineno, line)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return ranges, nil
}

func parseMapsLine(lineno int, in string) (Range, error) {
	var r Range
	fields := strings.SplitN(in, " ", 6)
	if len(fields) < 5 {
		return r, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (wrong number of fields)", lineno, in)
	}

	v := strings.Split(fields[0], "-")
	if len(v) != 2 {
		return r, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (bad first field)", lineno, in)
	}
	start, err := strconv.ParseUint(v[0], 16, 64)
	if err != nil {
		return r, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
	}
	end, err := strconv.ParseUint(v[1], 16, 64)
	if err != nil {
		return r, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
	}
	if end < start {
		return r, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (end before start)", lineno, in)
	}

	perm := fields[1]
	if len(perm) < 4 {
		return r, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (permissions column too short)", lineno, in)
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return r, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
	}

	// fields[3] -> device, fields[4] -> inode

	name := ""
	if len(fields) == 6 {
		// the name is padded to a column, the rest of the line is kept
		// verbatim since file names can contain spaces
		name = strings.TrimLeft(fields[5], " ")
		name = strings.TrimSuffix(name, " (deleted)")
	}
	if strings.HasPrefix(fields[3], "00:") && !strings.HasPrefix(name, "/") {
		offset = 0
	}

	r = Range{
		Base:   start,
		Size:   end - start,
		Kind:   KindFromPerm(perm),
		Perm:   perm[:4],
		Offset: offset,
		Name:   name,
	}
	return r, nil
}
