package modules

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnumerateSelf(t *testing.T) {
	l, err := Enumerate(0)
	require.NoError(t, err)
	require.NotEmpty(t, l)

	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)

	pc := uint64(reflect.ValueOf(TestEnumerateSelf).Pointer())
	m, seg := l.FindSegment(pc)
	require.NotNil(t, m, "test function at %#x not found in any module", pc)
	require.Equal(t, exe, m.Path)
	require.Equal(t, Code, seg.Kind)

	seen := make(map[string]bool)
	for _, m := range l {
		if m.Anonymous() {
			require.Len(t, m.Segments, 1)
			continue
		}
		require.False(t, seen[m.Path], "module %s listed twice", m.Path)
		seen[m.Path] = true
	}
}
