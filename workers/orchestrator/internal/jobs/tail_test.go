package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailLines(t *testing.T) {
	dir := t.TempDir()

	var b strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&b, "line %04d\n", i)
	}
	long := filepath.Join(dir, "long.log")
	require.NoError(t, os.WriteFile(long, []byte(b.String()), 0o644))

	lines, err := tailLines(long, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 1997", "line 1998", "line 1999"}, lines)

	short := filepath.Join(dir, "short.log")
	require.NoError(t, os.WriteFile(short, []byte("a\nb"), 0o644))
	lines, err = tailLines(short, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)

	empty := filepath.Join(dir, "empty.log")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	lines, err = tailLines(empty, 5)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = tailLines(filepath.Join(dir, "missing.log"), 5)
	assert.True(t, os.IsNotExist(err))
}
