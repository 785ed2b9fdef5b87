//go:build linux

package symres

import (
	"github.com/rs/zerolog"

	"github.com/coral-mesh/symres/internal/extres"
)

// externalResolver defers symbolization to a helper process, with the
// in-process ELF resolver as fallback when the helper cannot answer. Frame
// order matches the helper's: innermost-to-outermost.
type externalResolver struct {
	*elfResolver
	client *extres.Client
}

func newExternalResolver(fallback *elfResolver, toolPath string, logger zerolog.Logger) *externalResolver {
	return &externalResolver{
		elfResolver: fallback,
		client:      extres.NewClient(toolPath, logger),
	}
}

func (r *externalResolver) IsAvailable() bool {
	return r.client.Available() || r.elfResolver.IsAvailable()
}

func (r *externalResolver) IsExternalAvailable() bool {
	return r.client.Available()
}

func (r *externalResolver) ResolveCode(addr uint64, frames []AddressInfo) int {
	if len(frames) == 0 {
		return 0
	}

	mod, ok := r.modules.Find(addr)
	if !ok {
		return 0
	}
	fileOff := mod.OffsetOf(addr)

	resolved, err := r.client.SymbolizeCode(mod.Path, fileOff, len(frames))
	if err != nil || len(resolved) == 0 {
		return r.elfResolver.ResolveCode(addr, frames)
	}

	for i, f := range resolved {
		frames[i].FillAddressAndModuleInfo(addr, mod.Path, fileOff)
		frames[i].FillSourceLocation(r.Demangle(f.Function), f.File, f.Line, f.Column)
	}
	return len(resolved)
}

func (r *externalResolver) ResolveData(addr uint64, info *DataInfo) bool {
	mod, ok := r.modules.Find(addr)
	if !ok {
		return false
	}
	fileOff := mod.OffsetOf(addr)

	sym, err := r.client.SymbolizeData(mod.Path, fileOff)
	if err != nil {
		return r.elfResolver.ResolveData(addr, info)
	}

	// The helper reports the symbol start in the module's link-time address
	// space; translate it to a runtime address, same as the in-process path.
	start := sym.Start
	if im := r.image(mod.Path); im != nil {
		if vaddr := im.VirtualAddr(fileOff); vaddr >= sym.Start {
			start = addr - (vaddr - sym.Start)
		}
	}

	info.Address = addr
	info.FillModuleInfo(mod.Path, fileOff)
	info.FillSymbol(r.Demangle(sym.Name), start, sym.Size)
	return true
}

// PrepareForSandboxing spawns the helper while process-spawn rights are
// still held, then pre-opens fallback images.
func (r *externalResolver) PrepareForSandboxing() {
	if err := r.client.Start(); err != nil {
		r.logger.Debug().Err(err).Msg("Helper start failed, external resolution disabled")
	}
	r.elfResolver.PrepareForSandboxing()
}
