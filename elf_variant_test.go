//go:build linux

package symres

import (
	"debug/elf"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"unsafe"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fixtureBin is a helper binary built once per run. The test binary itself
// is linked without a symbol table or DWARF sections, so symbolization tests
// map this fixture into the process and resolve addresses inside the mapping.
var fixtureBin string

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	goTool, err := exec.LookPath("go")
	if err != nil {
		// No toolchain on this host; fixture-dependent tests skip.
		return m.Run()
	}

	dir, err := os.MkdirTemp("", "symres-test")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer os.RemoveAll(dir)

	bin := filepath.Join(dir, "fixture")
	cmd := exec.Command(goTool, "build", "-o", bin, "./testdata/fixture")
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "fixture build failed: %v\n%s", err, out)
		return 1
	}
	fixtureBin = bin

	return m.Run()
}

// fixtureMapping is the fixture binary mapped read-only into this process,
// which makes it appear as a file-backed module in /proc/self/maps without
// running it.
type fixtureMapping struct {
	path     string
	codeAddr uint64 // runtime address of fixtureTarget's entry point
	dataAddr uint64 // runtime address of fixtureData's first byte
	dataLink uint64 // link-time address of fixtureData
	dataSize uint64
}

func mapFixture(t *testing.T) fixtureMapping {
	t.Helper()
	if fixtureBin == "" {
		t.Skip("go tool not found, cannot build symbol fixture")
	}

	f, err := os.Open(fixtureBin)
	require.NoError(t, err)
	defer f.Close() // nolint:errcheck
	st, err := f.Stat()
	require.NoError(t, err)

	mem, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Munmap(mem) })
	base := uint64(uintptr(unsafe.Pointer(&mem[0])))

	ef, err := elf.Open(fixtureBin)
	require.NoError(t, err)
	defer ef.Close() // nolint:errcheck

	_, codeOff := fixtureSymbol(t, ef, "main.fixtureTarget")
	dataSym, dataOff := fixtureSymbol(t, ef, "main.fixtureData")

	return fixtureMapping{
		path:     fixtureBin,
		codeAddr: base + codeOff,
		dataAddr: base + dataOff,
		dataLink: dataSym.Value,
		dataSize: dataSym.Size,
	}
}

// fixtureSymbol finds a named symbol in the fixture and returns it together
// with its file offset, computed through the program headers the same way a
// runtime mapping would be translated back.
func fixtureSymbol(t *testing.T, ef *elf.File, name string) (elf.Symbol, uint64) {
	t.Helper()
	syms, err := ef.Symbols()
	require.NoError(t, err)
	for _, sym := range syms {
		if sym.Name != name {
			continue
		}
		for _, p := range ef.Progs {
			if p.Type == elf.PT_LOAD && sym.Value >= p.Vaddr && sym.Value < p.Vaddr+p.Filesz {
				return sym, sym.Value - p.Vaddr + p.Off
			}
		}
	}
	t.Fatalf("symbol %s not found in fixture", name)
	return elf.Symbol{}, 0
}

func newTestELFResolver(t *testing.T) *elfResolver {
	t.Helper()
	r, err := newELFResolver(zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestELFResolverResolveCode(t *testing.T) {
	fx := mapFixture(t)
	r := newTestELFResolver(t)

	frames := make([]AddressInfo, 4)
	n := r.ResolveCode(fx.codeAddr, frames)
	require.GreaterOrEqual(t, n, 1)
	require.LessOrEqual(t, n, 4)

	assert.Equal(t, fx.codeAddr, frames[0].Address)
	assert.True(t, frames[0].HasModule())
	assert.Contains(t, frames[0].Module(), filepath.Base(fx.path))
	assert.Contains(t, frames[0].Function(), "fixtureTarget")

	// Slots beyond the returned count stay untouched.
	for i := n; i < len(frames); i++ {
		assert.Equal(t, AddressInfo{}, frames[i], "slot %d", i)
	}

	for i := 0; i < n; i++ {
		frames[i].Clear()
	}
}

// A module without a symbol table still yields one module-identification
// frame. The test binary itself is such a module: go test links it without
// symtab or DWARF sections.
func TestELFResolverResolveCodeModuleOnly(t *testing.T) {
	r := newTestELFResolver(t)
	pc := uint64(reflect.ValueOf(TestELFResolverResolveCodeModuleOnly).Pointer())

	frames := make([]AddressInfo, 4)
	n := r.ResolveCode(pc, frames)
	require.GreaterOrEqual(t, n, 1)
	assert.Equal(t, pc, frames[0].Address)
	assert.True(t, frames[0].HasModule())

	for i := 0; i < n; i++ {
		frames[i].Clear()
	}
}

func TestELFResolverResolveCodeUnmappedAddress(t *testing.T) {
	r := newTestELFResolver(t)

	frames := make([]AddressInfo, 4)
	assert.Equal(t, 0, r.ResolveCode(1, frames))
	for i := range frames {
		assert.Equal(t, AddressInfo{}, frames[i])
	}
}

func TestELFResolverResolveCodeNoFrames(t *testing.T) {
	fx := mapFixture(t)
	r := newTestELFResolver(t)

	assert.Equal(t, 0, r.ResolveCode(fx.codeAddr, nil))
}

func TestELFResolverResolveData(t *testing.T) {
	fx := mapFixture(t)
	r := newTestELFResolver(t)

	var info DataInfo
	ok := r.ResolveData(fx.dataAddr, &info)
	require.True(t, ok)

	assert.Equal(t, fx.dataAddr, info.Address)
	assert.Contains(t, info.Name(), "fixtureData")
	assert.Equal(t, fx.dataAddr, info.Start)
	assert.Equal(t, fx.dataSize, info.Size)

	info.Clear()
}

func TestELFResolverResolveDataMiss(t *testing.T) {
	r := newTestELFResolver(t)

	var info DataInfo
	assert.False(t, r.ResolveData(1, &info))
	assert.Equal(t, DataInfo{}, info)
}

func TestELFResolverIsAvailable(t *testing.T) {
	r := newTestELFResolver(t)
	assert.True(t, r.IsAvailable())
	assert.False(t, r.IsExternalAvailable())
}

func TestELFResolverDemangle(t *testing.T) {
	r := newTestELFResolver(t)
	assert.Equal(t, "foo()", r.Demangle("_Z3foov"))
	assert.Equal(t, "main.main", r.Demangle("main.main"))
	assert.Equal(t, "", r.Demangle(""))
}

func TestELFResolverFlushAndSandboxing(t *testing.T) {
	fx := mapFixture(t)
	r := newTestELFResolver(t)

	frames := make([]AddressInfo, 2)
	n1 := r.ResolveCode(fx.codeAddr, frames)

	r.Flush()
	r.Flush()
	r.PrepareForSandboxing()

	frames2 := make([]AddressInfo, 2)
	n2 := r.ResolveCode(fx.codeAddr, frames2)
	assert.Equal(t, n1, n2)
	assert.Equal(t, frames[0].Function(), frames2[0].Function())
}

func TestELFResolverConcurrentResolve(t *testing.T) {
	fx := mapFixture(t)
	r := newTestELFResolver(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				frames := make([]AddressInfo, 3)
				_ = r.ResolveCode(fx.codeAddr, frames)
				var info DataInfo
				_ = r.ResolveData(fx.dataAddr, &info)
			}
		}()
	}
	wg.Wait()
}
