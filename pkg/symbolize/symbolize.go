// Package symbolize resolves native code addresses to function, file and
// line using an external symbolizer.
package symbolize

import (
	"context"
	"debug/elf"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/go-delve/crashwalk/pkg/logflags"
	"github.com/go-delve/crashwalk/pkg/modules"
)

// Unknown is printed in place of names the symbolizer could not resolve.
const Unknown = "??"

// Symbol is the best-effort description of a code address. Zero values
// mean unknown.
type Symbol struct {
	Function string
	File     string
	Line     int
}

// Known returns true if at least the function name was resolved.
func (s Symbol) Known() bool {
	return s.Function != "" && s.Function != Unknown
}

// Symbolizer resolves addresses inside a module file. The address is the
// one the symbolizer expects for the file, see FileAddress.
type Symbolizer interface {
	Symbolize(ctx context.Context, path string, addr uint64) (Symbol, error)
}

type elfInfo struct {
	typ   elf.Type
	loads []elf.ProgHeader
}

var (
	elfInfoMu sync.Mutex
	elfInfos  = map[string]*elfInfo{}
)

func readELFInfo(path string) *elfInfo {
	elfInfoMu.Lock()
	defer elfInfoMu.Unlock()
	if info, ok := elfInfos[path]; ok {
		return info
	}
	info := &elfInfo{typ: elf.ET_NONE}
	if f, err := elf.Open(path); err == nil {
		info.typ = f.Type
		for _, prog := range f.Progs {
			if prog.Type == elf.PT_LOAD {
				info.loads = append(info.loads, prog.ProgHeader)
			}
		}
		f.Close()
	}
	elfInfos[path] = info
	return info
}

// FileAddress converts pc, which is inside seg of m, into the address
// passed to the symbolizer. Executables that are not position independent
// are symbolized by absolute address. For everything else the file offset
// of pc is translated to a virtual address through the PT_LOAD containing
// it; the file offset is used when the file can not be read.
func FileAddress(m *modules.Module, seg *modules.Segment, pc uint64) uint64 {
	off := pc - seg.Base + seg.Offset
	if m.Path == "" {
		return off
	}
	info := readELFInfo(m.Path)
	if info.typ == elf.ET_EXEC {
		return pc
	}
	for _, prog := range info.loads {
		if off >= prog.Off && off < prog.Off+prog.Filesz {
			return off - prog.Off + prog.Vaddr
		}
	}
	return off
}

type cacheKey struct {
	path string
	addr uint64
}

type cacheEntry struct {
	sym Symbol
	err error
}

// Cache is a Symbolizer remembering the results of another one. Failures
// are remembered too, so a missing symbolizer is only run once per
// address.
type Cache struct {
	sym   Symbolizer
	cache *lru.Cache
}

// DefaultCacheSize is the number of results kept by a Cache by default.
const DefaultCacheSize = 1024

// NewCache returns a cache of size entries in front of sym.
func NewCache(sym Symbolizer, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{sym: sym, cache: c}, nil
}

func (c *Cache) Symbolize(ctx context.Context, path string, addr uint64) (Symbol, error) {
	key := cacheKey{path, addr}
	if v, ok := c.cache.Get(key); ok {
		e := v.(cacheEntry)
		return e.sym, e.err
	}
	sym, err := c.sym.Symbolize(ctx, path, addr)
	if ctx.Err() == nil {
		c.cache.Add(key, cacheEntry{sym, err})
	}
	if err != nil {
		logflags.SymbolizerLogger().Debugf("symbolizing %s+%#x: %v", path, addr, err)
	}
	return sym, err
}
