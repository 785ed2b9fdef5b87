//go:build linux

package symres

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/symres/internal/demangle"
	"github.com/coral-mesh/symres/internal/elfres"
	"github.com/coral-mesh/symres/internal/modlist"
)

// elfResolver symbolizes the current process in-process: module
// identification from /proc/self/maps, then ELF/DWARF lookup per module.
// Frames are reported innermost-to-outermost. ELF images are opened lazily
// and kept open, so resolution keeps working after the process is sandboxed
// away from the filesystem once PrepareForSandboxing has run.
type elfResolver struct {
	BaseResolver
	logger  zerolog.Logger
	modules *modlist.List

	mu     sync.Mutex
	images map[string]*elfres.Image
	failed map[string]bool
}

func newELFResolver(logger zerolog.Logger) (*elfResolver, error) {
	modules, err := modlist.Self(logger)
	if err != nil {
		return nil, err
	}
	return &elfResolver{
		logger:  logger.With().Str("component", "symres").Logger(),
		modules: modules,
		images:  make(map[string]*elfres.Image),
		failed:  make(map[string]bool),
	}, nil
}

func (r *elfResolver) IsAvailable() bool {
	return len(r.modules.Modules()) > 0
}

func (r *elfResolver) ResolveCode(addr uint64, frames []AddressInfo) int {
	if len(frames) == 0 {
		return 0
	}

	mod, ok := r.modules.Find(addr)
	if !ok {
		return 0
	}
	fileOff := mod.OffsetOf(addr)

	im := r.image(mod.Path)
	if im == nil {
		// Module identified but not symbolizable; still worth a frame.
		frames[0].FillAddressAndModuleInfo(addr, mod.Path, fileOff)
		return 1
	}

	resolved := im.ResolveCode(im.VirtualAddr(fileOff), len(frames))
	if len(resolved) == 0 {
		frames[0].FillAddressAndModuleInfo(addr, mod.Path, fileOff)
		return 1
	}

	for i, f := range resolved {
		frames[i].FillAddressAndModuleInfo(addr, mod.Path, fileOff)
		frames[i].FillSourceLocation(r.Demangle(f.Function), f.File, f.Line, f.Column)
	}
	return len(resolved)
}

func (r *elfResolver) ResolveData(addr uint64, info *DataInfo) bool {
	mod, ok := r.modules.Find(addr)
	if !ok {
		return false
	}
	fileOff := mod.OffsetOf(addr)

	im := r.image(mod.Path)
	if im == nil {
		return false
	}

	vaddr := im.VirtualAddr(fileOff)
	sym, ok := im.ResolveData(vaddr)
	if !ok {
		return false
	}

	info.Address = addr
	info.FillModuleInfo(mod.Path, fileOff)
	// Report the symbol's runtime start, not its link-time address.
	info.FillSymbol(r.Demangle(sym.Name), addr-(vaddr-sym.Start), sym.Size)
	return true
}

func (r *elfResolver) Demangle(name string) string {
	return demangle.Filter(name)
}

// Flush re-reads the module list and drops every per-image cache. Images
// stay open.
func (r *elfResolver) Flush() {
	if err := r.modules.Refresh(); err != nil {
		r.logger.Debug().Err(err).Msg("Module list refresh failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, im := range r.images {
		im.Flush()
	}
	r.failed = make(map[string]bool)
}

// PrepareForSandboxing opens an image for every currently mapped module so
// later Resolve calls need no filesystem access.
func (r *elfResolver) PrepareForSandboxing() {
	seen := make(map[string]bool)
	for _, mod := range r.modules.Modules() {
		if !mod.Executable() || seen[mod.Path] {
			continue
		}
		seen[mod.Path] = true
		r.image(mod.Path)
	}
	r.logger.Debug().Int("image_count", len(seen)).Msg("Images pre-opened for sandboxing")
}

// image returns the opened image for path, opening it on first use. Failed
// opens are remembered until the next Flush.
func (r *elfResolver) image(path string) *elfres.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	if im, ok := r.images[path]; ok {
		return im
	}
	if r.failed[path] {
		return nil
	}

	im, err := elfres.Open(path, r.logger)
	if err != nil {
		r.logger.Debug().Err(err).Str("module", path).Msg("Module not symbolizable")
		r.failed[path] = true
		return nil
	}
	r.images[path] = im
	return im
}
