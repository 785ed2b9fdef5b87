// Package elfres resolves addresses against a single ELF image using DWARF
// debug info, falling back to the symbol table when DWARF is absent.
// ResolveCode reports inlined frames innermost-to-outermost.
package elfres

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Frame is one inlined-frame resolution of a code address.
type Frame struct {
	Function string
	File     string
	Line     int
	Column   int
}

// DataSym describes the symbol containing a data address.
type DataSym struct {
	Name  string
	Start uint64
	Size  uint64
}

// Image is an opened ELF module. Lookups are keyed by addresses in the
// image's own virtual address space; use VirtualAddr to translate a file
// offset obtained from a runtime mapping.
type Image struct {
	path    string
	f       *elf.File
	dw      *dwarf.Data
	funcs   []elf.Symbol // STT_FUNC, sorted by value
	objects []elf.Symbol // STT_OBJECT, sorted by value
	logger  zerolog.Logger

	mu        sync.RWMutex
	codeCache map[uint64][]Frame
}

// Open reads the ELF file at path. It fails only when the file has neither
// debug info nor a symbol table, mirroring a fully stripped binary.
func Open(path string, logger zerolog.Logger) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	im := &Image{
		path:      path,
		f:         f,
		logger:    logger.With().Str("component", "elfres").Str("image", path).Logger(),
		codeCache: make(map[uint64][]Frame),
	}

	dw, err := f.DWARF()
	if err != nil {
		im.logger.Debug().Err(err).Msg("DWARF debug info not available, using symbol table only")
	} else {
		im.dw = dw
	}

	syms, err := f.Symbols()
	if err != nil {
		// Shared objects often carry only a dynamic symbol table.
		syms, err = f.DynamicSymbols()
		if err != nil {
			im.logger.Debug().Err(err).Msg("Symbol table not available")
		}
	}
	for _, sym := range syms {
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_FUNC:
			im.funcs = append(im.funcs, sym)
		case elf.STT_OBJECT:
			im.objects = append(im.objects, sym)
		}
	}
	sort.Slice(im.funcs, func(i, j int) bool { return im.funcs[i].Value < im.funcs[j].Value })
	sort.Slice(im.objects, func(i, j int) bool { return im.objects[i].Value < im.objects[j].Value })

	if im.dw == nil && len(im.funcs) == 0 && len(im.objects) == 0 {
		f.Close() // nolint:errcheck
		return nil, fmt.Errorf("%s has no debug info or symbol table (stripped binary?)", path)
	}

	im.logger.Debug().
		Int("func_symbols", len(im.funcs)).
		Int("object_symbols", len(im.objects)).
		Bool("dwarf", im.dw != nil).
		Msg("ELF image opened")

	return im, nil
}

// Path returns the file the image was opened from.
func (im *Image) Path() string {
	return im.path
}

// VirtualAddr converts an offset within the ELF file into the image's
// virtual address space using the program headers. This is what makes
// resolution independent of the runtime load bias of PIE binaries.
func (im *Image) VirtualAddr(fileOff uint64) uint64 {
	for _, p := range im.f.Progs {
		if p.Type == elf.PT_LOAD && fileOff >= p.Off && fileOff < p.Off+p.Filesz {
			return fileOff - p.Off + p.Vaddr
		}
	}
	return fileOff
}

// ResolveCode resolves vaddr to at most max inlined frames, innermost first.
// An empty result means the image cannot symbolize the address.
func (im *Image) ResolveCode(vaddr uint64, max int) []Frame {
	if max <= 0 {
		return nil
	}

	im.mu.RLock()
	cached, ok := im.codeCache[vaddr]
	im.mu.RUnlock()
	if ok {
		return truncate(cached, max)
	}

	frames := im.resolveDWARF(vaddr)
	if len(frames) == 0 {
		if fn, ok := im.lookupFunc(vaddr); ok {
			frames = []Frame{{Function: fn}}
		}
	}
	if len(frames) == 0 {
		return nil
	}

	im.mu.Lock()
	im.codeCache[vaddr] = frames
	im.mu.Unlock()

	return truncate(frames, max)
}

// ResolveData resolves vaddr to its containing data symbol.
func (im *Image) ResolveData(vaddr uint64) (DataSym, bool) {
	idx := sort.Search(len(im.objects), func(i int) bool {
		return im.objects[i].Value > vaddr
	})
	if idx == 0 {
		return DataSym{}, false
	}
	sym := im.objects[idx-1]
	if vaddr >= sym.Value+sym.Size {
		return DataSym{}, false
	}
	return DataSym{Name: sym.Name, Start: sym.Value, Size: sym.Size}, true
}

// Flush drops the resolution cache.
func (im *Image) Flush() {
	im.mu.Lock()
	im.codeCache = make(map[uint64][]Frame)
	im.mu.Unlock()
}

// Close releases the underlying file.
func (im *Image) Close() error {
	return im.f.Close()
}

// lookupFunc finds the function symbol containing vaddr.
func (im *Image) lookupFunc(vaddr uint64) (string, bool) {
	idx := sort.Search(len(im.funcs), func(i int) bool {
		return im.funcs[i].Value > vaddr
	})
	if idx == 0 {
		return "", false
	}
	sym := im.funcs[idx-1]
	if sym.Size > 0 && vaddr >= sym.Value+sym.Size {
		return "", false
	}
	return sym.Name, true
}

// inlineSite is one inlined subroutine on the path from the subprogram down
// to the instruction, in the order the DWARF tree nests them (outermost
// first).
type inlineSite struct {
	name     string
	callFile int64
	callLine int64
	callCol  int64
}

// resolveDWARF builds the inline frame chain for pc from DWARF.
func (im *Image) resolveDWARF(pc uint64) []Frame {
	if im.dw == nil {
		return nil
	}

	r := im.dw.Reader()
	cu, err := r.SeekPC(pc)
	if err != nil || cu == nil {
		return nil
	}

	subName, sites, ok := im.findSubprogram(r, pc)
	if !ok {
		return nil
	}

	// Location of the instruction itself, from the line table.
	var files []*dwarf.LineFile
	curFile, curLine, curCol := "", 0, 0
	if lr, err := im.dw.LineReader(cu); err == nil && lr != nil {
		files = lr.Files()
		var le dwarf.LineEntry
		if err := lr.SeekPC(pc, &le); err == nil && le.File != nil {
			curFile, curLine, curCol = le.File.Name, le.Line, le.Column
		}
	}

	fileName := func(idx int64) string {
		if idx >= 0 && idx < int64(len(files)) && files[idx] != nil {
			return files[idx].Name
		}
		return ""
	}

	// Innermost frame carries the line-table position; each enclosing frame
	// carries the call site of the inline it contains.
	frames := make([]Frame, 0, len(sites)+1)
	for i := len(sites) - 1; i >= 0; i-- {
		frames = append(frames, Frame{
			Function: sites[i].name,
			File:     curFile,
			Line:     curLine,
			Column:   curCol,
		})
		curFile = fileName(sites[i].callFile)
		curLine = int(sites[i].callLine)
		curCol = int(sites[i].callCol)
	}
	frames = append(frames, Frame{
		Function: subName,
		File:     curFile,
		Line:     curLine,
		Column:   curCol,
	})

	return frames
}

// findSubprogram positions r inside the compile unit, locates the subprogram
// containing pc and collects the inlined subroutines on the path to pc.
func (im *Image) findSubprogram(r *dwarf.Reader, pc uint64) (string, []inlineSite, bool) {
	var subEntry *dwarf.Entry
	for {
		ent, err := r.Next()
		if err != nil || ent == nil {
			return "", nil, false
		}
		if ent.Tag == dwarf.TagCompileUnit {
			// Ran into the next unit without a match.
			return "", nil, false
		}
		if ent.Tag != dwarf.TagSubprogram {
			continue
		}
		if !im.entryContains(ent, pc) {
			r.SkipChildren()
			continue
		}
		subEntry = ent
		break
	}

	subName := im.entryName(subEntry, 2)
	if subName == "" {
		return "", nil, false
	}

	var sites []inlineSite
	if !subEntry.Children {
		return subName, nil, true
	}

	// Walk the subprogram subtree. Depth bookkeeping relies on the reader
	// emitting a null entry at the end of each children list.
	depth := 0
	for {
		ent, err := r.Next()
		if err != nil || ent == nil {
			break
		}
		if ent.Tag == 0 {
			if depth == 0 {
				break
			}
			depth--
			continue
		}
		if ent.Tag == dwarf.TagInlinedSubroutine && im.entryContains(ent, pc) {
			site := inlineSite{name: im.entryName(ent, 2), callFile: -1}
			if v, ok := ent.Val(dwarf.AttrCallFile).(int64); ok {
				site.callFile = v
			}
			if v, ok := ent.Val(dwarf.AttrCallLine).(int64); ok {
				site.callLine = v
			}
			if v, ok := ent.Val(dwarf.AttrCallColumn).(int64); ok {
				site.callCol = v
			}
			if site.name != "" {
				sites = append(sites, site)
			}
		}
		if ent.Children {
			depth++
		}
	}

	return subName, sites, true
}

// entryContains reports whether pc falls in any of the entry's PC ranges.
func (im *Image) entryContains(ent *dwarf.Entry, pc uint64) bool {
	ranges, err := im.dw.Ranges(ent)
	if err != nil {
		return false
	}
	for _, rng := range ranges {
		if pc >= rng[0] && pc < rng[1] {
			return true
		}
	}
	return false
}

// entryName extracts a subprogram/inline name, chasing abstract origin and
// specification references up to maxHops levels.
func (im *Image) entryName(ent *dwarf.Entry, maxHops int) string {
	if name, ok := ent.Val(dwarf.AttrName).(string); ok {
		return name
	}
	if name, ok := ent.Val(dwarf.AttrLinkageName).(string); ok {
		return name
	}
	if maxHops <= 0 {
		return ""
	}
	for _, attr := range []dwarf.Attr{dwarf.AttrAbstractOrigin, dwarf.AttrSpecification} {
		off, ok := ent.Val(attr).(dwarf.Offset)
		if !ok {
			continue
		}
		r := im.dw.Reader()
		r.Seek(off)
		ref, err := r.Next()
		if err != nil || ref == nil {
			continue
		}
		if name := im.entryName(ref, maxHops-1); name != "" {
			return name
		}
	}
	return ""
}

func truncate(frames []Frame, max int) []Frame {
	if len(frames) > max {
		frames = frames[:max]
	}
	out := make([]Frame, len(frames))
	copy(out, frames)
	return out
}
