//go:build linux

package extres

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHelper writes a shell script speaking the helper protocol with canned
// responses and returns its path.
func fakeHelper(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
while read -r line; do
	case "$line" in
	CODE*)
		printf 'inlined_callee\n/src/lib.cc:12:3\nmy_function\n/src/main.cc:42:7\n\n'
		;;
	DATA*)
		printf 'my_global\n4096 64\n\n'
		;;
	esac
done
`
	path := filepath.Join(t.TempDir(), "fake-symbolizer")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(fakeHelper(t), zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func TestSymbolizeCode(t *testing.T) {
	c := newTestClient(t)

	frames, err := c.SymbolizeCode("/usr/lib/libfoo.so", 0x1234, 4)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, "inlined_callee", frames[0].Function)
	assert.Equal(t, "/src/lib.cc", frames[0].File)
	assert.Equal(t, 12, frames[0].Line)
	assert.Equal(t, 3, frames[0].Column)

	assert.Equal(t, "my_function", frames[1].Function)
	assert.Equal(t, "/src/main.cc", frames[1].File)
	assert.Equal(t, 42, frames[1].Line)
	assert.Equal(t, 7, frames[1].Column)
}

func TestSymbolizeCodeTruncatesAndDrains(t *testing.T) {
	c := newTestClient(t)

	frames, err := c.SymbolizeCode("/usr/lib/libfoo.so", 0x1234, 1)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "inlined_callee", frames[0].Function)

	// The stream must still be usable after a truncated response.
	frames, err = c.SymbolizeCode("/usr/lib/libfoo.so", 0x5678, 4)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestSymbolizeData(t *testing.T) {
	c := newTestClient(t)

	sym, err := c.SymbolizeData("/usr/lib/libfoo.so", 0x1040)
	require.NoError(t, err)
	assert.Equal(t, "my_global", sym.Name)
	assert.Equal(t, uint64(4096), sym.Start)
	assert.Equal(t, uint64(64), sym.Size)
}

func TestMissingHelperBecomesUnavailable(t *testing.T) {
	c := NewClient("/nonexistent/symbolizer", zerolog.Nop())
	defer c.Close()

	assert.True(t, c.Available())

	_, err := c.SymbolizeCode("/usr/lib/libfoo.so", 0x1234, 4)
	assert.Error(t, err)
	assert.False(t, c.Available())

	// Later requests keep failing without panicking.
	_, err = c.SymbolizeData("/usr/lib/libfoo.so", 0x1040)
	assert.Error(t, err)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in       string
		wantFile string
		wantLine int
		wantCol  int
	}{
		{"/src/main.cc:42:7", "/src/main.cc", 42, 7},
		{"/src/main.cc:42", "/src/main.cc", 42, 0},
		{"C:/src/main.cc:42:7", "C:/src/main.cc", 42, 7},
		{"??:0", "", 0, 0},
		{"??", "", 0, 0},
		{"/src/main.cc", "/src/main.cc", 0, 0},
	}
	for _, tt := range tests {
		file, line, col := parseLocation(tt.in)
		assert.Equal(t, tt.wantFile, file, tt.in)
		assert.Equal(t, tt.wantLine, line, tt.in)
		assert.Equal(t, tt.wantCol, col, tt.in)
	}
}
